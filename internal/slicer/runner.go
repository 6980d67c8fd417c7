package slicer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"
)

// RunResult is the observed outcome of one slicer invocation. Both
// streams are captured in full; only logging truncates them.
type RunResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Started  time.Time
	Stopped  time.Time
}

// Run executes the invocation with the working directory set to dir and
// waits for process exit. A non-zero exit code is not an error here:
// the orchestrator classifies it. The returned error covers failures to
// start the process at all.
func Run(ctx context.Context, inv Invocation, dir string) (RunResult, error) {
	args := inv.Args()
	slog.DebugContext(ctx, "executing slicer", "path", inv.CLIPath, "args", args, "dir", dir)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, inv.CLIPath, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := RunResult{Started: time.Now().UTC()}
	err := cmd.Run()
	res.Stopped = time.Now().UTC()
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, err
	}

	slog.DebugContext(ctx, "slicer finished",
		"exit_code", res.ExitCode,
		"duration", res.Stopped.Sub(res.Started),
		"stdout", truncate(res.Stdout, 500),
		"stderr", truncate(res.Stderr, 500),
	)
	return res, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
