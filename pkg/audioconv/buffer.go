package audioconv

import "time"

// Buffer is mono float32 PCM in [-1, 1] at SampleRate.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

func (b Buffer) Len() int { return len(b.Samples) }

func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}
