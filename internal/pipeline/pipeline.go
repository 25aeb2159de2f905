// Package pipeline runs one capture -> transcribe -> reply round.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	"voxline/internal/config"
	"voxline/pkg/audioconv"
	"voxline/pkg/transcript"
)

var (
	// ErrNoSpeech is returned when the transcript is empty; generation is
	// skipped in that case.
	ErrNoSpeech = errors.New("no usable speech recognized")

	// ErrCancelled wraps every error caused by the run's context ending.
	ErrCancelled = errors.New("cancelled")
)

type Capturer interface {
	Capture(ctx context.Context, device int, duration time.Duration, sampleRate int) (audioconv.Buffer, error)
}

// SpeechEngine returns the raw text an engine printed for a wav file.
type SpeechEngine interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// GenerationEngine returns the full reply to prompt and passes every
// fragment to onChunk (which may be nil) as it arrives.
type GenerationEngine interface {
	Generate(ctx context.Context, prompt string, onChunk func(string)) (string, error)
}

type Deps struct {
	Capturer  Capturer
	Speech    SpeechEngine
	Generator GenerationEngine
	Filter    transcript.Filter
	Out       io.Writer // reply chunks are echoed here, nil = quiet
}

type Result struct {
	Utterance string
	Reply     string
	Captured  int // samples at the source rate
	Resampled int // samples at the target rate
	Duration  time.Duration
}

type Runner struct {
	cfg  config.AudioConfig
	deps Deps
}

func New(cfg config.AudioConfig, deps Deps) *Runner {
	return &Runner{cfg: cfg, deps: deps}
}

// Run performs one round. Intermediate wav files live in a private
// directory that is removed on every return path unless KeepFiles is set.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	start := time.Now()
	defer func() {
		if err != nil && ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
		}
	}()

	buf, err := r.deps.Capturer.Capture(ctx, r.cfg.Device, r.cfg.Duration, r.cfg.SourceRate)
	if err != nil {
		return res, fmt.Errorf("capture: %w", err)
	}
	res.Captured = buf.Len()
	log.Info("Recorded", "samples", buf.Len(), "rate", buf.SampleRate, "duration", buf.Duration())

	resampled, err := audioconv.Resample(buf, r.cfg.TargetRate)
	if err != nil {
		return res, err
	}
	res.Resampled = resampled.Len()
	log.Debug("Resampled", "from", buf.SampleRate, "to", resampled.SampleRate, "samples", resampled.Len())

	dir, cleanup, err := r.workDir()
	if err != nil {
		return res, err
	}
	defer cleanup()

	rawPath := filepath.Join(dir, "voxline_raw.wav")
	if err := audioconv.WriteWAV(rawPath, buf); err != nil {
		return res, fmt.Errorf("save capture: %w", err)
	}

	procPath := filepath.Join(dir, "voxline_resampled.wav")
	if err := audioconv.WriteWAV(procPath, resampled); err != nil {
		return res, fmt.Errorf("save resampled: %w", err)
	}

	raw, err := r.deps.Speech.Transcribe(ctx, procPath)
	if err != nil {
		return res, fmt.Errorf("transcribe: %w", err)
	}

	res.Utterance = r.deps.Filter.Apply(raw)
	if res.Utterance == "" {
		log.Warn("No speech recognized")
		return res, ErrNoSpeech
	}
	log.Info("Transcribed", "text", res.Utterance)

	var onChunk func(string)
	if r.deps.Out != nil {
		rl := newRelay(r.deps.Out)
		defer rl.close()
		onChunk = rl.push
	}

	res.Reply, err = r.deps.Generator.Generate(ctx, res.Utterance, onChunk)
	if err != nil {
		return res, fmt.Errorf("generate: %w", err)
	}

	res.Duration = time.Since(start)
	log.Info("Reply complete", "bytes", len(res.Reply), "took", res.Duration)

	return res, nil
}

func (r *Runner) workDir() (string, func(), error) {
	if r.cfg.KeepFiles {
		dir := r.cfg.KeepDir
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, fmt.Errorf("keep dir: %w", err)
		}
		return dir, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "voxline-*")
	if err != nil {
		return "", nil, fmt.Errorf("temp dir: %w", err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("Failed to remove temp files", "dir", dir, "err", err)
			return
		}
		log.Debug("Removed temp files", "dir", dir)
	}, nil
}
