//go:build !malgo
// +build !malgo

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"jarvis/internal/domain"
)

// CaptureSource stub when miniaudio is not available
type CaptureSource struct {
	logger *slog.Logger
}

func NewCaptureSource(sampleRate, frameSize int, logger *slog.Logger) *CaptureSource {
	return &CaptureSource{logger: logger}
}

func (c *CaptureSource) Name() string {
	return "miniaudio"
}

func (c *CaptureSource) Start(_ context.Context) error {
	return fmt.Errorf("miniaudio source not available: rebuild with -tags malgo")
}

func (c *CaptureSource) Stop() error {
	return nil
}

func (c *CaptureSource) ReadFrame(_ context.Context) (domain.AudioFrame, bool, error) {
	return domain.AudioFrame{}, false, fmt.Errorf("miniaudio source not available")
}
