//go:build whisper
// +build whisper

// Package whisper transcribes utterances with the whisper.cpp bindings. The
// static library and headers must be available at link time.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"jarvis/internal/domain"
)

// whisper.cpp only accepts 16 kHz mono input.
const sampleRate = 16000

type Transcriber struct {
	model    whisperlib.Model
	language string
	logger   *slog.Logger
}

func New(modelPath, language string, logger *slog.Logger) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &Transcriber{model: model, language: language, logger: logger}, nil
}

func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe runs one utterance through a fresh context and joins the
// segment texts.
func (t *Transcriber) Transcribe(ctx context.Context, utt domain.Utterance) (string, error) {
	if utt.SampleRate != sampleRate {
		return "", fmt.Errorf("whisper: need %d Hz audio, got %d", sampleRate, utt.SampleRate)
	}
	if len(utt.Samples) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if t.language != "" {
		if err := wctx.SetLanguage(t.language); err != nil {
			t.logger.Warn("whisper: failed to set language, using default", "language", t.language, "error", err)
		}
	}

	if err := wctx.Process(utt.Samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
