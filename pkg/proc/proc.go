// Package proc runs external engine binaries and captures their output.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os/exec"
	"strings"
	"time"
)

// Error is returned when an engine binary is missing or exits non-zero.
type Error struct {
	Bin      string
	ExitCode int // -1 when the process never ran
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("%s: %v", e.Bin, e.Err)
	}
	msg := fmt.Sprintf("%s: exit status %d", e.Bin, e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// waitDelay bounds how long Output waits for pipes held open by children of
// a killed engine.
const waitDelay = 2 * time.Second

// Output runs bin with args and returns its stdout. Cancelling ctx kills the
// process and the context error is returned as is.
func Output(ctx context.Context, bin string, args ...string) (string, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return "", &Error{Bin: bin, ExitCode: -1, Err: err}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	log.Debug("Running engine", "bin", bin, "args", args)

	err := cmd.Run()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		perr := &Error{Bin: bin, ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		return "", perr
	}

	log.Debug("Engine finished", "bin", bin, "took", time.Since(start), "stdout_bytes", stdout.Len())

	return stdout.String(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
