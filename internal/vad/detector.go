// Package vad implements energy-based speech endpoint detection.
//
// The Detector is a pure state machine: it performs no I/O, spawns no
// goroutines and is driven one frame at a time by its caller. It is not safe
// for concurrent use.
package vad

import (
	"errors"
	"math"
	"time"

	"jarvis/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventNone EventKind = iota
	EventSpeechStarted
	EventSpeechEnded
)

func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventSpeechStarted:
		return "speech-start"
	case EventSpeechEnded:
		return "speech-end"
	default:
		return "unknown"
	}
}

// EndReason tells which end-of-speech condition closed a session.
type EndReason int

const (
	EndSilence EndReason = iota + 1
	EndMaxDuration
)

func (r EndReason) String() string {
	switch r {
	case EndSilence:
		return "silence"
	case EndMaxDuration:
		return "max_duration"
	default:
		return "none"
	}
}

// Event is the result of processing one frame. Utterance and Reason are only
// set when Kind is EventSpeechEnded.
type Event struct {
	Kind      EventKind
	RMS       float64
	Utterance domain.Utterance
	Reason    EndReason
}

type Config struct {
	SampleRate int

	// SpeakingThreshold is the RMS level a frame must exceed to count as speech.
	SpeakingThreshold float64

	// SilenceTimeout ends a session once no loud frame has been seen for longer than this.
	SilenceTimeout time.Duration

	// InitialTimeout caps a session measured from its start, regardless of energy.
	InitialTimeout time.Duration
}

func (c Config) validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, errors.New("vad: sample rate must be > 0"))
	}
	if c.SpeakingThreshold <= 0 || math.IsNaN(c.SpeakingThreshold) {
		errs = append(errs, errors.New("vad: speaking threshold must be > 0"))
	}
	if c.SilenceTimeout <= 0 {
		errs = append(errs, errors.New("vad: silence timeout must be > 0"))
	}
	if c.InitialTimeout <= 0 {
		errs = append(errs, errors.New("vad: initial timeout must be > 0"))
	}
	return errors.Join(errs...)
}

// session exists only while the detector is active.
type session struct {
	start    time.Duration
	lastLoud time.Duration
	frames   [][]float32
	samples  int
}

func (s *session) sinceLoud(now time.Duration) time.Duration  { return now - s.lastLoud }
func (s *session) sinceStart(now time.Duration) time.Duration { return now - s.start }

// endReason decides whether the session must close at time now.
func endReason(cfg Config, s *session, now time.Duration) (EndReason, bool) {
	if s.sinceLoud(now) > cfg.SilenceTimeout {
		return EndSilence, true
	}
	if s.sinceStart(now) > cfg.InitialTimeout && len(s.frames) > 0 {
		return EndMaxDuration, true
	}
	return 0, false
}

type Detector struct {
	cfg      Config
	session  *session
	lastTime time.Duration
}

func New(cfg Config) (*Detector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

func (d *Detector) State() State {
	if d.session != nil {
		return StateActive
	}
	return StateIdle
}

// Reset drops any active session without emitting an event.
func (d *Detector) Reset() {
	d.session = nil
	d.lastTime = 0
}

// Process advances the state machine by one frame.
//
// The frame that triggers speech-start is not buffered; buffering starts with
// the next frame.
func (d *Detector) Process(frame domain.AudioFrame) Event {
	now := frame.Time
	if now < d.lastTime {
		now = d.lastTime
	}
	d.lastTime = now

	level := RMS(frame.Samples)
	loud := level > d.cfg.SpeakingThreshold

	if d.session == nil {
		if !loud {
			return Event{Kind: EventNone, RMS: level}
		}
		d.session = &session{start: now, lastLoud: now}
		return Event{Kind: EventSpeechStarted, RMS: level}
	}

	s := d.session
	s.frames = append(s.frames, frame.Samples)
	s.samples += len(frame.Samples)
	if loud {
		s.lastLoud = now
	}

	reason, done := endReason(d.cfg, s, now)
	if !done {
		return Event{Kind: EventNone, RMS: level}
	}

	d.session = nil
	return Event{
		Kind:      EventSpeechEnded,
		RMS:       level,
		Utterance: d.concat(s, now),
		Reason:    reason,
	}
}

func (d *Detector) concat(s *session, end time.Duration) domain.Utterance {
	samples := make([]float32, 0, s.samples)
	for _, f := range s.frames {
		samples = append(samples, f...)
	}
	return domain.Utterance{
		Samples:    samples,
		SampleRate: d.cfg.SampleRate,
		Frames:     len(s.frames),
		Start:      s.start,
		End:        end,
	}
}

// RMS returns the root-mean-square amplitude of samples, or 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
