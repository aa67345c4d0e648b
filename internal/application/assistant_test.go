package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"jarvis/internal/application"
	"jarvis/internal/domain"
	"jarvis/internal/vad"
)

const frameSize = 1600

type mockAudioSource struct {
	frames    []domain.AudioFrame
	overflow  map[int]bool
	index     int
	startErr  error
	stopped   bool
	blockTail bool
}

func (m *mockAudioSource) Start(_ context.Context) error { return m.startErr }
func (m *mockAudioSource) Stop() error                   { m.stopped = true; return nil }
func (m *mockAudioSource) Name() string                  { return "mock" }

func (m *mockAudioSource) ReadFrame(ctx context.Context) (domain.AudioFrame, bool, error) {
	if m.index >= len(m.frames) {
		if m.blockTail {
			<-ctx.Done()
			return domain.AudioFrame{}, false, ctx.Err()
		}
		return domain.AudioFrame{}, false, io.EOF
	}
	f := m.frames[m.index]
	over := m.overflow[m.index]
	m.index++
	return f, over, nil
}

type mockResponder struct {
	replies  []string
	errs     []error
	requests []application.InferenceRequest
}

func (m *mockResponder) Respond(_ context.Context, req application.InferenceRequest) (string, error) {
	i := len(m.requests)
	m.requests = append(m.requests, req)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return "", nil
}

type mockSynthesizer struct {
	spoken []string
	err    error
}

func (m *mockSynthesizer) Speak(_ context.Context, text string) error {
	m.spoken = append(m.spoken, text)
	return m.err
}

type mockTranscriber struct {
	text string
	err  error
}

func (m *mockTranscriber) Transcribe(_ context.Context, _ domain.Utterance) (string, error) {
	return m.text, m.err
}

type countingObserver struct {
	application.NoopObserver
	starts    int
	overflows int
	turns     int
	replied   int
}

func (c *countingObserver) SpeechStarted(context.Context)     { c.starts++ }
func (c *countingObserver) CaptureOverflowed(context.Context) { c.overflows++ }

func (c *countingObserver) TurnCompleted(_ context.Context, _, _ time.Duration, replied bool) {
	c.turns++
	if replied {
		c.replied++
	}
}

type recordingRecorder struct {
	ids []string
}

func (r *recordingRecorder) Record(id string, _ domain.Utterance) error {
	r.ids = append(r.ids, id)
	return nil
}

func constFrame(n int, amp float32) domain.AudioFrame {
	samples := make([]float32, frameSize)
	for i := range samples {
		samples[i] = amp
	}
	return domain.AudioFrame{Samples: samples, Time: time.Duration(n) * 100 * time.Millisecond}
}

// speech builds count utterances of 9 loud frames followed by 25 quiet frames each.
func speech(count int) []domain.AudioFrame {
	var frames []domain.AudioFrame
	n := 1
	for u := 0; u < count; u++ {
		for i := 0; i < 9; i++ {
			frames = append(frames, constFrame(n, 0.01))
			n++
		}
		for i := 0; i < 25; i++ {
			frames = append(frames, constFrame(n, 0.001))
			n++
		}
	}
	return frames
}

func newTestAssistant(t *testing.T, src application.AudioSource, stt application.Transcriber, llm application.Responder, tts application.Synthesizer, history *application.History, opts ...application.Option) *application.Assistant {
	t.Helper()
	detector, err := vad.New(vad.Config{
		SampleRate:        16000,
		SpeakingThreshold: 0.005,
		SilenceTimeout:    1500 * time.Millisecond,
		InitialTimeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("vad.New: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return application.NewAssistant(src, detector, stt, llm, tts, history, logger, opts...)
}

func TestAssistant_TakesTurn(t *testing.T) {
	src := &mockAudioSource{frames: speech(1)}
	llm := &mockResponder{replies: []string{"  Join the club!  "}}
	tts := &mockSynthesizer{}
	history := application.NewHistory(10)
	obs := &countingObserver{}

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, tts, history, application.WithObserver(obs))

	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(llm.requests) != 1 {
		t.Fatalf("inference calls: got %d, want 1", len(llm.requests))
	}
	req := llm.requests[0]
	if len(req.Turns) != 1 || req.Turns[0].Role != domain.RoleUser || req.Turns[0].Content != domain.AudioInputMarker {
		t.Errorf("inference turns: got %+v", req.Turns)
	}
	if req.Utterance == nil || req.Utterance.Frames != 24 {
		t.Errorf("inference utterance: got %+v, want 24 frames", req.Utterance)
	}

	if len(tts.spoken) != 1 || tts.spoken[0] != "Join the club!" {
		t.Errorf("spoken: got %q", tts.spoken)
	}

	got := history.Snapshot()
	if len(got) != 2 || got[1].Role != domain.RoleAssistant || got[1].Content != "Join the club!" {
		t.Errorf("history: got %+v", got)
	}

	if !src.stopped {
		t.Error("audio source was not stopped")
	}
	if obs.starts != 1 || obs.turns != 1 || obs.replied != 1 {
		t.Errorf("observer: starts=%d turns=%d replied=%d", obs.starts, obs.turns, obs.replied)
	}
	if st := assistant.Status(); st.Turns != 1 || st.HistoryLen != 2 || st.State != vad.StateIdle {
		t.Errorf("status: got %+v", st)
	}
}

func TestAssistant_EmptyReplySkipsSynthesis(t *testing.T) {
	src := &mockAudioSource{frames: speech(1)}
	llm := &mockResponder{replies: []string{""}}
	tts := &mockSynthesizer{}
	history := application.NewHistory(10)
	history.Append(domain.Turn{Role: domain.RoleUser, Content: "earlier"})
	before := history.Len()

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, tts, history)
	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if history.Len() != before+1 {
		t.Errorf("history length: got %d, want %d", history.Len(), before+1)
	}
	if last := history.Snapshot()[history.Len()-1]; last.Role != domain.RoleUser {
		t.Errorf("last turn role: got %s, want user", last.Role)
	}
	if len(tts.spoken) != 0 {
		t.Errorf("synthesizer called with %q", tts.spoken)
	}
}

func TestAssistant_WhitespaceReplyIsEmpty(t *testing.T) {
	src := &mockAudioSource{frames: speech(1)}
	llm := &mockResponder{replies: []string{" \n\t "}}
	tts := &mockSynthesizer{}
	history := application.NewHistory(10)

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, tts, history)
	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if history.Len() != 1 || len(tts.spoken) != 0 {
		t.Errorf("history %d, spoken %q", history.Len(), tts.spoken)
	}
}

func TestAssistant_ApologyOnEmptyReply(t *testing.T) {
	src := &mockAudioSource{frames: speech(1)}
	llm := &mockResponder{}
	tts := &mockSynthesizer{}
	history := application.NewHistory(10)

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, tts, history,
		application.WithApology("Sorry, could you say that again?"))
	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tts.spoken) != 1 || tts.spoken[0] != "Sorry, could you say that again?" {
		t.Errorf("spoken: got %q", tts.spoken)
	}
	if history.Len() != 1 {
		t.Errorf("apology must not enter history: length %d", history.Len())
	}
}

func TestAssistant_InferenceErrorKeepsListening(t *testing.T) {
	src := &mockAudioSource{frames: speech(2)}
	llm := &mockResponder{
		errs:    []error{errors.New("connection refused"), nil},
		replies: []string{"", "second answer"},
	}
	tts := &mockSynthesizer{}
	history := application.NewHistory(10)

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, tts, history)
	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(llm.requests) != 2 {
		t.Fatalf("inference calls: got %d, want 2 (no retry)", len(llm.requests))
	}
	if len(tts.spoken) != 1 || tts.spoken[0] != "second answer" {
		t.Errorf("spoken: got %q", tts.spoken)
	}
	// user, user, assistant
	if history.Len() != 3 {
		t.Errorf("history length: got %d, want 3", history.Len())
	}
	if n := len(llm.requests[1].Turns); n != 2 {
		t.Errorf("second request turns: got %d, want 2", n)
	}
}

func TestAssistant_SynthesisErrorKeepsListening(t *testing.T) {
	src := &mockAudioSource{frames: speech(2)}
	llm := &mockResponder{replies: []string{"one", "two"}}
	tts := &mockSynthesizer{err: errors.New("device busy")}
	history := application.NewHistory(10)
	obs := &countingObserver{}

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, tts, history, application.WithObserver(obs))
	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tts.spoken) != 2 {
		t.Errorf("speak calls: got %d, want 2", len(tts.spoken))
	}
	// unheard replies are dropped, only the user turns remain
	got := history.Snapshot()
	if len(got) != 2 || got[0].Role != domain.RoleUser || got[1].Role != domain.RoleUser {
		t.Errorf("history: got %+v, want two user turns", got)
	}
	if n := len(llm.requests[1].Turns); n != 2 {
		t.Errorf("second request turns: got %d, want 2", n)
	}
	if obs.turns != 2 || obs.replied != 0 {
		t.Errorf("observer: turns=%d replied=%d, want 2/0", obs.turns, obs.replied)
	}
}

func TestAssistant_GreetsOncePerSession(t *testing.T) {
	src := &mockAudioSource{frames: speech(2)}
	llm := &mockResponder{replies: []string{"one", "two"}}
	tts := &mockSynthesizer{}
	history := application.NewHistory(10)

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, tts, history,
		application.WithGreeting("  Hello! What would you like to know?  "))
	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"Hello! What would you like to know?", "one", "Hello! What would you like to know?", "two"}
	if len(tts.spoken) != len(want) {
		t.Fatalf("spoken: got %q, want %q", tts.spoken, want)
	}
	for i := range want {
		if tts.spoken[i] != want[i] {
			t.Errorf("spoken[%d]: got %q, want %q", i, tts.spoken[i], want[i])
		}
	}

	for _, turn := range history.Snapshot() {
		if turn.Content == want[0] {
			t.Errorf("greeting entered history: %+v", turn)
		}
	}
	if history.Len() != 4 {
		t.Errorf("history length: got %d, want 4", history.Len())
	}
}

func TestAssistant_NoGreetingByDefault(t *testing.T) {
	src := &mockAudioSource{frames: speech(1)}
	tts := &mockSynthesizer{}

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, &mockResponder{replies: []string{"ok"}}, tts, application.NewHistory(10))
	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tts.spoken) != 1 || tts.spoken[0] != "ok" {
		t.Errorf("spoken: got %q", tts.spoken)
	}
}

type statusSynthesizer struct {
	assistant *application.Assistant
	states    []vad.State
}

func (s *statusSynthesizer) Speak(_ context.Context, _ string) error {
	s.states = append(s.states, s.assistant.Status().State)
	return nil
}

func TestAssistant_StatusIdleWhileReplying(t *testing.T) {
	src := &mockAudioSource{frames: speech(1)}
	tts := &statusSynthesizer{}

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, &mockResponder{replies: []string{"ok"}}, tts, application.NewHistory(10))
	tts.assistant = assistant
	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tts.states) != 1 || tts.states[0] != vad.StateIdle {
		t.Errorf("state during playback: got %v, want [idle]", tts.states)
	}
}

func TestAssistant_HistoryStaysBounded(t *testing.T) {
	src := &mockAudioSource{frames: speech(8)}
	llm := &mockResponder{replies: []string{"a", "b", "c", "d", "e", "f", "g", "h"}}
	tts := &mockSynthesizer{}
	history := application.NewHistory(10)

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, tts, history)
	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, req := range llm.requests {
		if len(req.Turns) > 10 {
			t.Errorf("request %d: %d turns, want at most 10", i, len(req.Turns))
		}
	}
	got := history.Snapshot()
	if len(got) != 10 {
		t.Fatalf("history length: got %d, want 10", len(got))
	}
	if got[9].Content != "h" || got[0].Content != domain.AudioInputMarker || got[1].Content != "d" {
		t.Errorf("unexpected surviving turns: %+v", got)
	}
}

func TestAssistant_TranscriptionUsedAsUserContent(t *testing.T) {
	tests := []struct {
		name string
		stt  *mockTranscriber
		want string
	}{
		{"transcribed", &mockTranscriber{text: " what is the club about? "}, "what is the club about?"},
		{"empty transcription", &mockTranscriber{text: ""}, domain.AudioInputMarker},
		{"transcriber error", &mockTranscriber{err: errors.New("model crashed")}, domain.AudioInputMarker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &mockAudioSource{frames: speech(1)}
			llm := &mockResponder{}
			history := application.NewHistory(10)

			assistant := newTestAssistant(t, src, tt.stt, llm, &mockSynthesizer{}, history)
			if err := assistant.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}

			if got := history.Snapshot()[0].Content; got != tt.want {
				t.Errorf("user content: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssistant_OverflowIsNotFatal(t *testing.T) {
	src := &mockAudioSource{frames: speech(1), overflow: map[int]bool{3: true, 20: true}}
	llm := &mockResponder{replies: []string{"ok"}}
	obs := &countingObserver{}
	recorder := &recordingRecorder{}

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, &mockSynthesizer{}, application.NewHistory(10),
		application.WithObserver(obs), application.WithRecorder(recorder))
	if err := assistant.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if obs.overflows != 2 {
		t.Errorf("overflows: got %d, want 2", obs.overflows)
	}
	if obs.turns != 1 {
		t.Errorf("turns: got %d, want 1", obs.turns)
	}
	if len(recorder.ids) != 1 || recorder.ids[0] == "" {
		t.Errorf("recorded ids: got %v", recorder.ids)
	}
}

func TestAssistant_StartErrorIsFatal(t *testing.T) {
	src := &mockAudioSource{startErr: errors.New("no input device")}
	llm := &mockResponder{}

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, &mockSynthesizer{}, application.NewHistory(10))
	err := assistant.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(llm.requests) != 0 {
		t.Error("no inference expected")
	}
}

func TestAssistant_StopsOnCancel(t *testing.T) {
	src := &mockAudioSource{frames: speech(1), blockTail: true}
	llm := &mockResponder{replies: []string{"ok"}}

	assistant := newTestAssistant(t, src, application.MarkerTranscriber{}, llm, &mockSynthesizer{}, application.NewHistory(10))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- assistant.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run: got %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to return")
	}
	if !src.stopped {
		t.Error("audio source was not stopped")
	}
}

func TestInferenceRequest_Empty(t *testing.T) {
	tests := []struct {
		name string
		req  application.InferenceRequest
		want bool
	}{
		{"zero", application.InferenceRequest{}, true},
		{"blank turns", application.InferenceRequest{Turns: []domain.Turn{{Role: domain.RoleUser}}}, true},
		{"empty utterance", application.InferenceRequest{Utterance: &domain.Utterance{}}, true},
		{"text", application.InferenceRequest{Turns: []domain.Turn{{Role: domain.RoleUser, Content: "hi"}}}, false},
		{"audio", application.InferenceRequest{Utterance: &domain.Utterance{Samples: []float32{0.1}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Empty(); got != tt.want {
				t.Errorf("Empty: got %v, want %v", got, tt.want)
			}
		})
	}
}
