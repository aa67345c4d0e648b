package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jarvis/internal/domain"
	"jarvis/internal/vad"
)

// Assistant runs the listen, infer, speak loop. Frames are read, classified and
// turned into replies on a single goroutine; while a turn is running no audio
// is consumed from the source.
type Assistant struct {
	audio    AudioSource
	detector *vad.Detector
	stt      Transcriber
	llm      Responder
	tts      Synthesizer
	history  *History
	logger   *slog.Logger

	observer Observer
	recorder UtteranceRecorder
	apology  string
	greeting string

	state atomic.Int32
	turns atomic.Int64
	hlen  atomic.Int32
}

type Option func(*Assistant)

func WithObserver(o Observer) Option {
	return func(a *Assistant) { a.observer = o }
}

func WithRecorder(r UtteranceRecorder) Option {
	return func(a *Assistant) { a.recorder = r }
}

// WithApology sets a phrase spoken when the model returns no usable reply.
func WithApology(text string) Option {
	return func(a *Assistant) { a.apology = strings.TrimSpace(text) }
}

func NewAssistant(
	audio AudioSource,
	detector *vad.Detector,
	stt Transcriber,
	llm Responder,
	tts Synthesizer,
	history *History,
	logger *slog.Logger,
	opts ...Option,
) *Assistant {
	a := &Assistant{
		audio:    audio,
		detector: detector,
		stt:      stt,
		llm:      llm,
		tts:      tts,
		history:  history,
		logger:   logger,
		observer: NoopObserver{},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// WithGreeting sets a phrase spoken as soon as speech starts. It is never
// added to the history.
func WithGreeting(text string) Option {
	return func(a *Assistant) { a.greeting = strings.TrimSpace(text) }
}

type Status struct {
	Source     string
	State      vad.State
	Turns      int64
	HistoryLen int
}

// Status may be called from any goroutine.
func (a *Assistant) Status() Status {
	return Status{
		Source:     a.audio.Name(),
		State:      vad.State(a.state.Load()),
		Turns:      a.turns.Load(),
		HistoryLen: int(a.hlen.Load()),
	}
}

func (a *Assistant) Run(ctx context.Context) error {
	a.logger.Info("starting audio source", "source", a.audio.Name())
	if err := a.audio.Start(ctx); err != nil {
		return fmt.Errorf("starting audio: %w", err)
	}
	defer func() {
		if err := a.audio.Stop(); err != nil {
			a.logger.Error("stopping audio", "error", err)
		}
	}()

	a.logger.Info("assistant ready, speak to activate")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, overflowed, err := a.audio.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.logger.Info("audio source exhausted")
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("reading frame: %w", err)
		}

		if overflowed {
			a.logger.Warn("audio input overflow, samples were dropped")
			a.observer.CaptureOverflowed(ctx)
		}

		ev := a.detector.Process(frame)
		a.state.Store(int32(a.detector.State()))
		a.handleEvent(ctx, ev)
	}
}

func (a *Assistant) handleEvent(ctx context.Context, ev vad.Event) {
	switch ev.Kind {
	case vad.EventSpeechStarted:
		a.logger.Info("speech detected", "rms", ev.RMS)
		a.observer.SpeechStarted(ctx)
		if a.greeting != "" {
			a.speak(ctx, a.logger, a.greeting)
		}
	case vad.EventSpeechEnded:
		a.takeTurn(ctx, ev.Utterance, ev.Reason)
	}
}

func (a *Assistant) takeTurn(ctx context.Context, utt domain.Utterance, reason vad.EndReason) {
	started := time.Now()
	turnID := uuid.NewString()
	logger := a.logger.With("turn_id", turnID)

	logger.Info("processing utterance",
		"seconds", utt.Duration().Seconds(),
		"frames", utt.Frames,
		"end_reason", reason.String(),
	)

	if a.recorder != nil {
		if err := a.recorder.Record(turnID, utt); err != nil {
			logger.Warn("recording utterance", "error", err)
		}
	}

	a.history.Append(domain.Turn{Role: domain.RoleUser, Content: a.transcribe(ctx, logger, utt)})

	reply := a.infer(ctx, logger, utt)

	// a reply that was never heard does not become part of the conversation
	replied := reply != "" && a.speak(ctx, logger, reply)
	if replied {
		a.history.Append(domain.Turn{Role: domain.RoleAssistant, Content: reply})
	}
	a.hlen.Store(int32(a.history.Len()))

	if !replied {
		if a.apology != "" {
			logger.Info("no usable reply, apologising")
			a.speak(ctx, logger, a.apology)
		} else {
			logger.Info("no usable reply")
		}
	}

	a.turns.Add(1)
	a.observer.TurnCompleted(ctx, utt.Duration(), time.Since(started), replied)
	logger.Info("listening")
}

func (a *Assistant) transcribe(ctx context.Context, logger *slog.Logger, utt domain.Utterance) string {
	start := time.Now()
	text, err := a.stt.Transcribe(ctx, utt)
	a.observer.StageCompleted(ctx, StageTranscribe, time.Since(start), err)
	if err != nil {
		logger.Error("transcribing", "error", err)
		return domain.AudioInputMarker
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return domain.AudioInputMarker
	}
	logger.Info("transcribed", "text", text)
	return text
}

// infer makes exactly one attempt; failures count as an empty reply.
func (a *Assistant) infer(ctx context.Context, logger *slog.Logger, utt domain.Utterance) string {
	req := InferenceRequest{Turns: a.history.Snapshot(), Utterance: &utt}

	start := time.Now()
	reply, err := a.llm.Respond(ctx, req)
	a.observer.StageCompleted(ctx, StageInfer, time.Since(start), err)
	if err != nil {
		logger.Error("inference", "error", err)
		return ""
	}
	return strings.TrimSpace(reply)
}

// speak reports whether the text was played.
func (a *Assistant) speak(ctx context.Context, logger *slog.Logger, text string) bool {
	logger.Info("speaking", "text", text)

	start := time.Now()
	err := a.tts.Speak(ctx, text)
	a.observer.StageCompleted(ctx, StageSynthesize, time.Since(start), err)
	if err != nil {
		logger.Error("synthesis", "error", err)
		return false
	}
	return true
}
