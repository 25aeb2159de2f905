// Package stt runs the whisper.cpp command line binary.
package stt

import (
	"context"
	"fmt"
	"strconv"

	"voxline/pkg/proc"
)

// WhisperCLI runs the whisper.cpp command line binary on a wav file.
type WhisperCLI struct {
	Bin      string
	Model    string
	Threads  int    // 0 = binary default
	Language string // "" = binary default
}

func NewWhisperCLI(bin, model string) *WhisperCLI {
	return &WhisperCLI{Bin: bin, Model: model}
}

// Args returns the command line used for wavPath.
func (w *WhisperCLI) Args(wavPath string) []string {
	args := []string{"-m", w.Model, "-f", wavPath, "-nt"}
	if w.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.Threads))
	}
	if w.Language != "" {
		args = append(args, "-l", w.Language)
	}
	return args
}

// Transcribe returns the raw stdout of the binary. It still carries the
// engine's log lines and timestamps.
func (w *WhisperCLI) Transcribe(ctx context.Context, wavPath string) (string, error) {
	out, err := proc.Output(ctx, w.Bin, w.Args(wavPath)...)
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	return out, nil
}
