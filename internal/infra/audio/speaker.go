//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const playbackFramesPerBuffer = 1024

// Speaker plays 16-bit mono PCM on the default output device.
type Speaker struct {
	logger *slog.Logger

	mu     sync.Mutex
	opened bool
}

func NewSpeaker(logger *slog.Logger) *Speaker {
	return &Speaker{logger: logger}
}

func (s *Speaker) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}
	s.opened = true
	return nil
}

func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}
	s.opened = false
	return portaudio.Terminate()
}

// Play blocks until all samples have been handed to the device and drained.
func (s *Speaker) Play(ctx context.Context, samples []int16, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return errors.New("speaker is not open")
	}
	if len(samples) == 0 {
		return nil
	}

	buffer := make([]int16, playbackFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buffer), buffer)
	if err != nil {
		return fmt.Errorf("opening output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting output stream: %w", err)
	}

	for off := 0; off < len(samples); off += len(buffer) {
		if err := ctx.Err(); err != nil {
			stream.Abort()
			return err
		}
		n := copy(buffer, samples[off:])
		clear(buffer[n:])
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			stream.Abort()
			return fmt.Errorf("writing to output stream: %w", err)
		}
	}

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("stopping output stream: %w", err)
	}

	s.logger.Debug("playback finished", "samples", len(samples), "sampleRate", sampleRate)
	return nil
}
