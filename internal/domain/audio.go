package domain

import "time"

// AudioFrame is a fixed-size block of mono float32 samples in [-1, 1].
// Time is the capture stream clock when the frame was read.
type AudioFrame struct {
	Samples []float32
	Time    time.Duration
}

// Utterance is the audio buffered during one speech session.
type Utterance struct {
	Samples    []float32
	SampleRate int
	Frames     int
	Start      time.Duration
	End        time.Duration
}

func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}
