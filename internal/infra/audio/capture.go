//go:build malgo
// +build malgo

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"jarvis/internal/domain"
)

const captureQueueSize = 32

// CaptureSource records from the default device through miniaudio. The device
// callback cuts incoming samples into frames and queues them; frames that do
// not fit in the queue are dropped and reported as an overflow.
type CaptureSource struct {
	sampleRate int
	frameSize  int
	logger     *slog.Logger

	mctx   *malgo.AllocatedContext
	device *malgo.Device
	frames chan domain.AudioFrame

	// owned by the device callback
	pending  []float32
	consumed int

	overflow atomic.Bool
}

func NewCaptureSource(sampleRate, frameSize int, logger *slog.Logger) *CaptureSource {
	return &CaptureSource{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		logger:     logger,
	}
}

func (c *CaptureSource) Name() string {
	return "miniaudio"
}

func (c *CaptureSource) Start(_ context.Context) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("malgo init: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(c.sampleRate)
	cfg.Alsa.NoMMap = 1

	c.frames = make(chan domain.AudioFrame, captureQueueSize)
	c.pending = c.pending[:0]
	c.consumed = 0

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: c.onData})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("init device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("device start: %w", err)
	}

	c.mctx = mctx
	c.device = device

	c.logger.Info("miniaudio capture started", "sampleRate", c.sampleRate, "frameSize", c.frameSize)
	return nil
}

func (c *CaptureSource) onData(_, input []byte, framecount uint32) {
	for i := 0; i < int(framecount); i++ {
		bits := binary.LittleEndian.Uint32(input[i*4:])
		c.pending = append(c.pending, math.Float32frombits(bits))
	}

	for len(c.pending) >= c.frameSize {
		samples := make([]float32, c.frameSize)
		copy(samples, c.pending[:c.frameSize])
		c.pending = append(c.pending[:0], c.pending[c.frameSize:]...)
		c.consumed += c.frameSize

		frame := domain.AudioFrame{
			Samples: samples,
			Time:    samplesToDuration(c.consumed, c.sampleRate),
		}
		select {
		case c.frames <- frame:
		default:
			c.overflow.Store(true)
		}
	}
}

func (c *CaptureSource) ReadFrame(ctx context.Context) (domain.AudioFrame, bool, error) {
	select {
	case <-ctx.Done():
		return domain.AudioFrame{}, false, ctx.Err()
	case frame := <-c.frames:
		return frame, c.overflow.Swap(false), nil
	}
}

func (c *CaptureSource) Stop() error {
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	if c.mctx != nil {
		err := c.mctx.Uninit()
		c.mctx.Free()
		c.mctx = nil
		return err
	}
	return nil
}
