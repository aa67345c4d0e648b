//go:build !whisper
// +build !whisper

package whisper

import (
	"context"
	"fmt"
	"log/slog"

	"jarvis/internal/domain"
)

// Transcriber stub when whisper.cpp is not linked
type Transcriber struct{}

func New(modelPath, language string, logger *slog.Logger) (*Transcriber, error) {
	return nil, fmt.Errorf("whisper transcription not available: rebuild with -tags whisper")
}

func (t *Transcriber) Close() error {
	return nil
}

func (t *Transcriber) Transcribe(_ context.Context, _ domain.Utterance) (string, error) {
	return "", fmt.Errorf("whisper transcription not available")
}
