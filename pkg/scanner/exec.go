package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"
)

// execute runs the scanner to completion. Every failure comes back wrapped
// in ErrScan with the most useful detail the process left behind: a
// deadline, a missing executable, or the last line of stderr with the exit
// code. stdout is not kept since the report goes to --output.
func execute(ctx context.Context, binary string, args []string) (time.Duration, error) {
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if err == nil {
		return elapsed, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return elapsed, fmt.Errorf("%w: %s timed out after %s", ErrScan, binary, elapsed.Round(time.Millisecond))
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return elapsed, fmt.Errorf("%w: %s executable not found", ErrScan, binary)
	case errors.As(err, &exitErr):
		return elapsed, fmt.Errorf("%w: %s exited with %d: %s", ErrScan, binary, exitErr.ExitCode(), lastLine(stderr.String()))
	default:
		return elapsed, fmt.Errorf("%w: %v", ErrScan, err)
	}
}

// trivy logs progress on stderr, the reason for a failure is at the end
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
