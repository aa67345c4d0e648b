package application

import (
	"context"

	"jarvis/internal/domain"
)

// AudioSource produces fixed-size frames from a capture stream.
//
// ReadFrame blocks until one frame is available. The returned bool reports
// that samples were dropped since the previous read. A finite source returns
// io.EOF once exhausted.
type AudioSource interface {
	Start(ctx context.Context) error
	Stop() error
	ReadFrame(ctx context.Context) (domain.AudioFrame, bool, error)
	Name() string
}

// UtteranceRecorder persists captured utterances, e.g. for debugging thresholds.
type UtteranceRecorder interface {
	Record(id string, utt domain.Utterance) error
}
