package application

import "jarvis/internal/domain"

const DefaultHistorySize = 10

// History is a fixed-capacity FIFO of conversation turns backed by a ring
// buffer. Once full, each append evicts the oldest turn. It is owned by the
// Assistant and not safe for concurrent use.
type History struct {
	turns []domain.Turn
	head  int
	size  int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{turns: make([]domain.Turn, capacity)}
}

func (h *History) Append(t domain.Turn) {
	idx := (h.head + h.size) % len(h.turns)
	h.turns[idx] = t
	if h.size < len(h.turns) {
		h.size++
		return
	}
	h.head = (h.head + 1) % len(h.turns)
}

// Snapshot returns a copy of the turns, oldest first.
func (h *History) Snapshot() []domain.Turn {
	out := make([]domain.Turn, h.size)
	for i := range out {
		out[i] = h.turns[(h.head+i)%len(h.turns)]
	}
	return out
}

func (h *History) Len() int { return h.size }

func (h *History) Cap() int { return len(h.turns) }
