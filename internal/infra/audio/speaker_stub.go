//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
)

// Speaker stub when portaudio is not available
type Speaker struct {
	logger *slog.Logger
}

func NewSpeaker(logger *slog.Logger) *Speaker {
	return &Speaker{logger: logger}
}

func (s *Speaker) Open() error {
	return fmt.Errorf("speaker not available: rebuild with -tags portaudio")
}

func (s *Speaker) Close() error {
	return nil
}

func (s *Speaker) Play(_ context.Context, _ []int16, _ int) error {
	return fmt.Errorf("speaker not available")
}
