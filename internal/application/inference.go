package application

import (
	"context"

	"jarvis/internal/domain"
)

// InferenceRequest carries the conversation so far and, when available, the
// raw audio of the utterance that produced the newest user turn.
type InferenceRequest struct {
	Turns     []domain.Turn
	Utterance *domain.Utterance
}

// Empty reports whether the request has nothing a model could answer.
func (r InferenceRequest) Empty() bool {
	if r.Utterance != nil && len(r.Utterance.Samples) > 0 {
		return false
	}
	for _, t := range r.Turns {
		if t.Content != "" {
			return false
		}
	}
	return true
}

// Responder turns a conversation into reply text. An empty reply means the
// model had no usable output; implementations return "" rather than an error
// for empty requests.
type Responder interface {
	Respond(ctx context.Context, req InferenceRequest) (string, error)
}
