package audio

import (
	"context"
	"time"

	"voxline/pkg/audioconv"
)

// Capturer is satisfied by Recorder and FileSource.
type Capturer interface {
	Capture(ctx context.Context, device int, duration time.Duration, sampleRate int) (audioconv.Buffer, error)
}

// FileSource replays an existing recording instead of opening a device. The
// device, duration and rate of a Capture call are ignored; the file's own
// rate is returned.
type FileSource struct {
	Path string
}

func (f FileSource) Capture(ctx context.Context, _ int, _ time.Duration, _ int) (audioconv.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return audioconv.Buffer{}, err
	}
	return audioconv.Decode(f.Path, audioconv.Options{})
}
