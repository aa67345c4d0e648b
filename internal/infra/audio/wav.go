package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/youpy/go-wav"

	"jarvis/internal/domain"
)

// WAVReader is what go-wav needs to parse a RIFF stream.
type WAVReader interface {
	io.Reader
	io.ReaderAt
}

// DecodeWAV returns the samples of a mono or stereo WAV as floats in [-1, 1].
// Stereo input is mixed down to mono.
func DecodeWAV(r WAVReader) ([]float32, int, error) {
	reader := wav.NewReader(r)
	format, err := reader.Format()
	if err != nil {
		return nil, 0, fmt.Errorf("wav format: %w", err)
	}

	channels := int(format.NumChannels)
	if channels < 1 || channels > 2 {
		return nil, 0, fmt.Errorf("wav: only mono or stereo supported, got %d channels", channels)
	}

	var out []float32
	for {
		samples, err := reader.ReadSamples()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading wav samples: %w", err)
		}
		for _, s := range samples {
			v := reader.FloatValue(s, 0)
			if channels == 2 {
				v = (v + reader.FloatValue(s, 1)) / 2
			}
			out = append(out, float32(v))
		}
	}
	return out, int(format.SampleRate), nil
}

// EncodeWAV writes samples as 16-bit mono PCM. Values outside [-1, 1] are clipped.
func EncodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	pcm := make([]wav.Sample, len(samples))
	for i, v := range samples {
		pcm[i] = wav.Sample{Values: [2]int{int(ToPCM16(v)), 0}}
	}
	writer := wav.NewWriter(w, uint32(len(pcm)), 1, uint32(sampleRate), 16)
	return writer.WriteSamples(pcm)
}

func ToPCM16(v float32) int16 {
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	return int16(v * 32767)
}

// WAVSource replays a WAV file as if it were a live microphone. A stretch of
// silence is appended so a trailing utterance still reaches its silence timeout.
type WAVSource struct {
	path       string
	sampleRate int
	frameSize  int
	tail       time.Duration
	logger     *slog.Logger

	samples []float32
	pos     int
}

func NewWAVSource(path string, sampleRate, frameSize int, tail time.Duration, logger *slog.Logger) *WAVSource {
	return &WAVSource{
		path:       path,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		tail:       tail,
		logger:     logger,
	}
}

func (s *WAVSource) Name() string {
	return "wav"
}

func (s *WAVSource) Start(_ context.Context) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening wav: %w", err)
	}
	defer f.Close()

	samples, rate, err := DecodeWAV(f)
	if err != nil {
		return err
	}
	if rate != s.sampleRate {
		return fmt.Errorf("wav sample rate %d does not match configured %d", rate, s.sampleRate)
	}

	tail := int(int64(s.tail) * int64(rate) / int64(time.Second))
	total := len(samples) + tail
	if rem := total % s.frameSize; rem != 0 {
		total += s.frameSize - rem
	}

	s.samples = make([]float32, total)
	copy(s.samples, samples)
	s.pos = 0

	s.logger.Info("wav source loaded",
		"path", s.path,
		"seconds", float64(len(samples))/float64(rate),
		"frames", total/s.frameSize,
	)
	return nil
}

func (s *WAVSource) Stop() error {
	s.samples = nil
	return nil
}

// ReadFrame returns io.EOF once the file and its silence tail are exhausted.
func (s *WAVSource) ReadFrame(ctx context.Context) (domain.AudioFrame, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.AudioFrame{}, false, err
	}
	if s.pos >= len(s.samples) {
		return domain.AudioFrame{}, false, io.EOF
	}

	frame := make([]float32, s.frameSize)
	copy(frame, s.samples[s.pos:])
	s.pos += s.frameSize

	return domain.AudioFrame{Samples: frame, Time: samplesToDuration(s.pos, s.sampleRate)}, false, nil
}

func samplesToDuration(n, sampleRate int) time.Duration {
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// WAVRecorder keeps a copy of every captured utterance on disk.
type WAVRecorder struct {
	dir    string
	logger *slog.Logger
}

func NewWAVRecorder(dir string, logger *slog.Logger) (*WAVRecorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating record dir: %w", err)
	}
	return &WAVRecorder{dir: dir, logger: logger}, nil
}

func (r *WAVRecorder) Record(id string, utt domain.Utterance) error {
	path := filepath.Join(r.dir, id+".wav")

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := EncodeWAV(f, utt.Samples, utt.SampleRate); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	r.logger.Debug("utterance recorded", "path", path)
	return nil
}
