// Package piper speaks text by running the Piper TTS command line tool and
// playing the WAV it produces.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"jarvis/internal/infra/audio"
)

// Player plays 16-bit mono PCM and blocks until playback is done.
type Player interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}

type Config struct {
	Binary     string
	ModelPath  string
	ConfigPath string
}

type Synthesizer struct {
	binary     string
	modelPath  string
	configPath string
	player     Player
	logger     *slog.Logger
}

// New fails when the binary is not on PATH or a voice file is missing.
func New(cfg Config, player Player, logger *slog.Logger) (*Synthesizer, error) {
	binary, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("piper binary %q: %w", cfg.Binary, err)
	}

	var errs []error
	for _, path := range []string{cfg.ModelPath, cfg.ConfigPath} {
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, fmt.Errorf("piper voice file: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Synthesizer{
		binary:     binary,
		modelPath:  cfg.ModelPath,
		configPath: cfg.ConfigPath,
		player:     player,
		logger:     logger,
	}, nil
}

func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	out, err := os.CreateTemp("", "jarvis-tts-*.wav")
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.binary,
		"--model", s.modelPath,
		"--config", s.configPath,
		"--output_file", outPath,
	)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running piper: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	f, err := os.Open(outPath)
	if err != nil {
		return fmt.Errorf("opening piper output: %w", err)
	}
	samples, rate, err := audio.DecodeWAV(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decoding piper output: %w", err)
	}

	pcm := make([]int16, len(samples))
	for i, v := range samples {
		pcm[i] = audio.ToPCM16(v)
	}

	s.logger.Debug("synthesized speech", "samples", len(pcm), "sampleRate", rate)
	return s.player.Play(ctx, pcm, rate)
}
