package application

import (
	"context"
	"time"
)

type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageInfer      Stage = "infer"
	StageSynthesize Stage = "synthesize"
)

// Observer receives measurements from the turn loop. Calls happen on the
// loop goroutine and must not block.
type Observer interface {
	SpeechStarted(ctx context.Context)
	CaptureOverflowed(ctx context.Context)
	StageCompleted(ctx context.Context, stage Stage, d time.Duration, err error)
	TurnCompleted(ctx context.Context, utterance, total time.Duration, replied bool)
}

type NoopObserver struct{}

func (NoopObserver) SpeechStarted(context.Context) {}

func (NoopObserver) CaptureOverflowed(context.Context) {}

func (NoopObserver) StageCompleted(context.Context, Stage, time.Duration, error) {}

func (NoopObserver) TurnCompleted(context.Context, time.Duration, time.Duration, bool) {}
