package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// runTool executes an external binary, mapping the failure modes the
// converters care about: a missing binary is tool-unavailable, a
// cancelled deadline is a timeout, anything else carries the tool's
// stderr as a processing error.
func runTool(ctx context.Context, bin string, args ...string) error {
	_, err := runToolOutput(ctx, bin, args...)
	return err
}

// runToolIn is runTool with an explicit working directory, for tools
// that resolve arguments relative to it.
func runToolIn(ctx context.Context, dir, bin string, args ...string) error {
	_, err := runToolOutputIn(ctx, dir, bin, args...)
	return err
}

// runToolOutput behaves like runTool but captures stdout for tools that
// emit their result there (tesseract with the "stdout" sink).
func runToolOutput(ctx context.Context, bin string, args ...string) ([]byte, error) {
	return runToolOutputIn(ctx, "", bin, args...)
}

func runToolOutputIn(ctx context.Context, dir, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	var execErr *exec.Error
	if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
		return nil, ToolUnavailable(fmt.Sprintf("%s is not installed", bin), err)
	}
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, Timeout(fmt.Sprintf("%s exceeded the job deadline", bin), err)
		}
		return nil, Timeout(fmt.Sprintf("%s cancelled", bin), err)
	}

	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = err.Error()
	}
	return nil, ProcessingError(fmt.Sprintf("%s failed: %s", bin, truncate(msg, 512)), err)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
