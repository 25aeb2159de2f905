package audio

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"

	"voxline/pkg/audioconv"
)

const (
	framesPerBuffer = 1024
	silenceRMS      = 0.003
)

// DeviceError reports an input device that cannot be used for capture.
type DeviceError struct {
	Device int
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Device < 0 {
		return fmt.Sprintf("default input device: %v", e.Err)
	}
	return fmt.Sprintf("input device %d: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

var errNoInput = errors.New("device has no input channels")

// Recorder captures mono audio through portaudio. Init must be called once
// before Capture and Close once after the last capture.
type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// Capture records duration of mono float32 audio at sampleRate from the
// device with index device, or from the default input when device < 0. It
// blocks until the take is complete or ctx is cancelled.
func (r *Recorder) Capture(ctx context.Context, device int, duration time.Duration, sampleRate int) (audioconv.Buffer, error) {
	if sampleRate <= 0 || duration <= 0 {
		return audioconv.Buffer{}, fmt.Errorf("invalid capture request: %v at %d Hz", duration, sampleRate)
	}

	info, err := inputDevice(device)
	if err != nil {
		return audioconv.Buffer{}, &DeviceError{Device: device, Err: err}
	}

	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = framesPerBuffer

	buf := make([]float32, framesPerBuffer)

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return audioconv.Buffer{}, &DeviceError{Device: device, Err: err}
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return audioconv.Buffer{}, &DeviceError{Device: device, Err: err}
	}
	defer stream.Stop()

	total := int(math.Round(duration.Seconds() * float64(sampleRate)))
	out := make([]float32, 0, total+framesPerBuffer)

	log.Info("Recording", "device", info.Name, "duration", duration, "rate", sampleRate)

	for len(out) < total {
		if err := ctx.Err(); err != nil {
			return audioconv.Buffer{}, err
		}

		if err := stream.Read(); err != nil {
			// overflow only means frames were dropped, keep going
			if errors.Is(err, portaudio.InputOverflowed) {
				log.Warn("Input overflowed", "device", info.Name)
			} else {
				return audioconv.Buffer{}, &DeviceError{Device: device, Err: err}
			}
		}

		out = append(out, buf...)
	}
	out = out[:total]

	rms := frameRMS(out)
	if rms < silenceRMS {
		log.Warn("Capture looks silent", "rms", rms)
	} else {
		log.Debug("Captured", "samples", len(out), "rms", rms)
	}

	return audioconv.Buffer{Samples: out, SampleRate: sampleRate}, nil
}

func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("index out of range, %d devices available", len(devices))
	}

	d := devices[index]
	if d.MaxInputChannels < 1 {
		return nil, errNoInput
	}
	return d, nil
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
