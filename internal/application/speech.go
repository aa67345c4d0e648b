package application

import (
	"context"

	"jarvis/internal/domain"
)

type Transcriber interface {
	Transcribe(ctx context.Context, utt domain.Utterance) (string, error)
}

// MarkerTranscriber is used when no speech-to-text engine is configured.
// Every utterance becomes the audio input marker.
type MarkerTranscriber struct{}

func (MarkerTranscriber) Transcribe(_ context.Context, _ domain.Utterance) (string, error) {
	return domain.AudioInputMarker, nil
}
