package audio

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"voxline/pkg/audioconv"
)

func TestFrameRMS(t *testing.T) {
	if got := frameRMS(nil); got != 0 {
		t.Errorf("frameRMS(nil) = %v", got)
	}
	if got := frameRMS([]float32{0.5, -0.5, 0.5, -0.5}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("frameRMS = %v, want 0.5", got)
	}
}

func TestDeviceErrorUnwrap(t *testing.T) {
	err := error(&DeviceError{Device: 11, Err: errNoInput})

	if !errors.Is(err, errNoInput) {
		t.Error("DeviceError does not unwrap")
	}
	if err.Error() != "input device 11: device has no input channels" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	in := audioconv.Buffer{Samples: make([]float32, 4800), SampleRate: 48000}
	if err := audioconv.WriteWAV(path, in); err != nil {
		t.Fatal(err)
	}

	var c Capturer = FileSource{Path: path}
	buf, err := c.Capture(context.Background(), 3, time.Second, 16000)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if buf.SampleRate != 48000 || buf.Len() != 4800 {
		t.Errorf("got %d samples at %d Hz", buf.Len(), buf.SampleRate)
	}
}
