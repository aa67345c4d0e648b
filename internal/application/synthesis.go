package application

import (
	"context"
	"log/slog"
)

// Synthesizer speaks text and returns once playback has finished.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// NoopSynthesizer logs replies instead of speaking them (text-only deployments).
type NoopSynthesizer struct {
	Logger *slog.Logger
}

func (n *NoopSynthesizer) Speak(_ context.Context, text string) error {
	if n.Logger != nil {
		n.Logger.Info("reply", "text", text)
	}
	return nil
}
