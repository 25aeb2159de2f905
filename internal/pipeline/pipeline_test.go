package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voxline/internal/config"
	"voxline/pkg/audioconv"
	"voxline/pkg/proc"
)

type fakeCapturer struct {
	buf audioconv.Buffer
	err error
}

func (f *fakeCapturer) Capture(ctx context.Context, _ int, _ time.Duration, _ int) (audioconv.Buffer, error) {
	return f.buf, f.err
}

type fakeSpeech struct {
	t       *testing.T
	raw     string
	err     error
	gotPath string
	gotWAV  audioconv.Buffer
}

func (f *fakeSpeech) Transcribe(ctx context.Context, wavPath string) (string, error) {
	f.gotPath = wavPath
	b, err := audioconv.Decode(wavPath, audioconv.Options{})
	if err != nil {
		f.t.Errorf("decode handoff file: %v", err)
	}
	f.gotWAV = b
	return f.raw, f.err
}

type fakeGenerator struct {
	chunks  []string
	err     error
	block   bool
	calls   int
	gotText string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	f.calls++
	f.gotText = prompt
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	var reply string
	for _, c := range f.chunks {
		reply += c
		if onChunk != nil {
			onChunk(c)
		}
	}
	return reply, f.err
}

func tone(seconds float64, rate int) audioconv.Buffer {
	n := int(seconds * float64(rate))
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return audioconv.Buffer{Samples: s, SampleRate: rate}
}

func audioConfig() config.AudioConfig {
	a := config.Default().Audio
	a.Duration = 500 * time.Millisecond
	return a
}

const mockTranscript = `whisper_init_from_file_with_params_no_state: loading model from 'ggml-tiny.en.bin'
system_info: n_threads = 4 / 8 | AVX = 1

[00:00:00.000 --> 00:00:02.000]   What time
[00:00:02.000 --> 00:00:03.500]   is it?
whisper_print_timings:     total time =   812.52 ms
`

func TestRunEndToEnd(t *testing.T) {
	speech := &fakeSpeech{t: t, raw: mockTranscript}
	gen := &fakeGenerator{chunks: []string{"It is ", "half past ", "noon."}}
	var out bytes.Buffer

	r := New(audioConfig(), Deps{
		Capturer:  &fakeCapturer{buf: tone(0.5, 48000)},
		Speech:    speech,
		Generator: gen,
		Out:       &out,
	})

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Reply != "It is half past noon." {
		t.Errorf("reply = %q", res.Reply)
	}
	if out.String() != res.Reply {
		t.Errorf("displayed %q, want %q", out.String(), res.Reply)
	}
	if gen.gotText != "What time is it?" || res.Utterance != gen.gotText {
		t.Errorf("prompt = %q, utterance = %q", gen.gotText, res.Utterance)
	}
	if res.Captured != 24000 || res.Resampled != 8000 {
		t.Errorf("captured %d, resampled %d", res.Captured, res.Resampled)
	}
	if speech.gotWAV.SampleRate != 16000 || speech.gotWAV.Len() != 8000 {
		t.Errorf("engine got %d samples at %d Hz", speech.gotWAV.Len(), speech.gotWAV.SampleRate)
	}
	if _, err := os.Stat(filepath.Dir(speech.gotPath)); !os.IsNotExist(err) {
		t.Errorf("temp dir %s not removed: %v", filepath.Dir(speech.gotPath), err)
	}
}

func TestRunNoSpeechSkipsGeneration(t *testing.T) {
	speech := &fakeSpeech{t: t, raw: "whisper_init: loading\nsystem_info: x\n\n"}
	gen := &fakeGenerator{chunks: []string{"should not run"}}

	r := New(audioConfig(), Deps{
		Capturer:  &fakeCapturer{buf: tone(0.2, 48000)},
		Speech:    speech,
		Generator: gen,
	})

	res, err := r.Run(context.Background())
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times", gen.calls)
	}
	if res.Utterance != "" {
		t.Errorf("utterance = %q", res.Utterance)
	}
	if _, err := os.Stat(speech.gotPath); !os.IsNotExist(err) {
		t.Errorf("handoff file left behind: %v", err)
	}
}

func TestRunCancelledDuringGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	speech := &fakeSpeech{t: t, raw: "hello"}
	gen := &fakeGenerator{block: true}

	r := New(audioConfig(), Deps{
		Capturer:  &fakeCapturer{buf: tone(0.2, 48000)},
		Speech:    speech,
		Generator: gen,
		Out:       &bytes.Buffer{},
	})

	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := r.Run(ctx)
	if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want ErrCancelled wrapping context.Canceled", err)
	}
	if _, err := os.Stat(filepath.Dir(speech.gotPath)); !os.IsNotExist(err) {
		t.Errorf("temp dir not removed after cancel: %v", err)
	}
}

func TestRunCancelledDuringCapture(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(audioConfig(), Deps{
		Capturer:  &fakeCapturer{err: context.Canceled},
		Speech:    &fakeSpeech{t: t},
		Generator: &fakeGenerator{},
	})

	_, err := r.Run(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestRunPropagatesEngineErrors(t *testing.T) {
	perr := &proc.Error{Bin: "whisper", ExitCode: 1}

	r := New(audioConfig(), Deps{
		Capturer:  &fakeCapturer{buf: tone(0.2, 48000)},
		Speech:    &fakeSpeech{t: t, err: perr},
		Generator: &fakeGenerator{},
	})

	_, err := r.Run(context.Background())

	var got *proc.Error
	if !errors.As(err, &got) || got != perr {
		t.Fatalf("err = %v, want the engine's proc.Error", err)
	}
	if errors.Is(err, ErrCancelled) {
		t.Error("engine failure reported as cancellation")
	}
}

func TestRunResampleError(t *testing.T) {
	r := New(audioConfig(), Deps{
		Capturer:  &fakeCapturer{buf: audioconv.Buffer{SampleRate: 48000}},
		Speech:    &fakeSpeech{t: t},
		Generator: &fakeGenerator{},
	})

	if _, err := r.Run(context.Background()); !errors.Is(err, audioconv.ErrResample) {
		t.Fatalf("err = %v, want ErrResample", err)
	}
}

func TestRunKeepFiles(t *testing.T) {
	cfg := audioConfig()
	cfg.KeepFiles = true
	cfg.KeepDir = filepath.Join(t.TempDir(), "takes")

	r := New(cfg, Deps{
		Capturer:  &fakeCapturer{buf: tone(0.2, 48000)},
		Speech:    &fakeSpeech{t: t, raw: "hi"},
		Generator: &fakeGenerator{chunks: []string{"hello"}},
	})

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"voxline_raw.wav", "voxline_resampled.wav"} {
		if _, err := os.Stat(filepath.Join(cfg.KeepDir, name)); err != nil {
			t.Errorf("%s not kept: %v", name, err)
		}
	}
}
