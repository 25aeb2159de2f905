package audioconv

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	pcmFormat  = 1
	pcmDepth   = 16
	pcmMaxBase = 32767
)

// WriteWAV stores buf as a 16-bit PCM mono WAVE file at path.
func WriteWAV(path string, buf Buffer) (err error) {
	if buf.SampleRate <= 0 {
		return fmt.Errorf("write wav %s: invalid sample rate %d", path, buf.SampleRate)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc := wav.NewEncoder(f, buf.SampleRate, pcmDepth, 1, pcmFormat)

	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		Data:           float32ToPCM16(buf.Samples),
		SourceBitDepth: pcmDepth,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("write wav %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav %s: %w", path, err)
	}

	return nil
}

func float32ToPCM16(in []float32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		x := clamp(float64(v), -1.0, 1.0)
		out[i] = int(math.Round(x * pcmMaxBase))
	}
	return out
}
