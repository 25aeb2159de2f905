package stt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"voxline/pkg/proc"
	"voxline/pkg/transcript"
)

func fakeWhisper(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whisper-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWhisperCLIArgs(t *testing.T) {
	w := &WhisperCLI{Bin: "whisper", Model: "ggml-tiny.en.bin", Threads: 4, Language: "en"}

	got := w.Args("in.wav")
	want := []string{"-m", "ggml-tiny.en.bin", "-f", "in.wav", "-nt", "-t", "4", "-l", "en"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Args = %v, want %v", got, want)
	}
}

func TestWhisperCLITranscribe(t *testing.T) {
	bin := fakeWhisper(t, `
echo "whisper_init_from_file: loading model from '$2'"
echo "system_info: n_threads = 4 / 8"
echo ""
echo "[00:00:00.000 --> 00:00:02.000]   Hello there."
echo "whisper_print_timings: total time = 12.3 ms"
echo "file=$4" >&2`)

	w := NewWhisperCLI(bin, "model.bin")
	raw, err := w.Transcribe(context.Background(), "clip.wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !strings.Contains(raw, "loading model from 'model.bin'") {
		t.Errorf("raw output lost model arg: %q", raw)
	}
	if got := transcript.Clean(raw); got != "Hello there." {
		t.Errorf("cleaned = %q", got)
	}
}

func TestWhisperCLIFailure(t *testing.T) {
	bin := fakeWhisper(t, `echo "error: failed to open 'clip.wav'" >&2; exit 2`)

	_, err := NewWhisperCLI(bin, "model.bin").Transcribe(context.Background(), "clip.wav")

	var perr *proc.Error
	if !errors.As(err, &perr) || perr.ExitCode != 2 {
		t.Fatalf("err = %v, want proc.Error with exit 2", err)
	}
}
