//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"jarvis/internal/domain"
)

// MicrophoneSource reads fixed-size frames from the default input device
// using blocking portaudio reads.
type MicrophoneSource struct {
	stream     *portaudio.Stream
	sampleRate int
	frameSize  int
	logger     *slog.Logger

	buffer []float32
}

func NewMicrophoneSource(sampleRate, frameSize int, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		logger:     logger,
	}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Start(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	inputChannels := 1
	outputChannels := 0

	m.buffer = make([]float32, m.frameSize)

	stream, err := portaudio.OpenDefaultStream(
		inputChannels,
		outputChannels,
		float64(m.sampleRate),
		m.frameSize,
		m.buffer,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}

	m.stream = stream

	if err := m.stream.Start(); err != nil {
		m.stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting stream: %w", err)
	}

	m.logger.Info("microphone started", "sampleRate", m.sampleRate, "frameSize", m.frameSize)
	return nil
}

func (m *MicrophoneSource) Stop() error {
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
		m.stream = nil
	}
	return portaudio.Terminate()
}

func (m *MicrophoneSource) ReadFrame(ctx context.Context) (domain.AudioFrame, bool, error) {
	select {
	case <-ctx.Done():
		return domain.AudioFrame{}, false, ctx.Err()
	default:
	}

	overflowed := false
	if err := m.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return domain.AudioFrame{}, false, fmt.Errorf("reading from stream: %w", err)
		}
		overflowed = true
	}

	samples := make([]float32, len(m.buffer))
	copy(samples, m.buffer)

	return domain.AudioFrame{Samples: samples, Time: m.stream.Time()}, overflowed, nil
}
