package anchor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// runResult carries one toolchain invocation's outcome.
type runResult struct {
	ExitCode  int
	Output    string // combined stdout+stderr, capped
	Truncated bool
}

// run invokes the toolchain binary in dir, captures combined output up to
// the configured cap, and appends everything captured to build.log in the
// workspace. The context bounds the whole invocation.
func (b *Builder) run(ctx context.Context, dir string, args ...string) (*runResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.bin, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	b.log.Debugw("running toolchain", "bin", b.bin, "args", args, "dir", dir)
	err := cmd.Run()

	output := out.String()
	truncated := false
	if len(output) > b.outputCap {
		output = output[:b.outputCap] + "\n...[truncated]"
		truncated = true
	}

	b.appendBuildLog(dir, args, output)

	res := &runResult{Output: output, Truncated: truncated}
	if err == nil {
		return res, nil
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.ExitCode = -1
		return res, fmt.Errorf("%s %s timed out after %s", b.bin, strings.Join(args, " "), b.timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, err
	}

	// The binary could not be started at all (missing, not executable).
	res.ExitCode = -1
	return res, fmt.Errorf("starting %s: %w", b.bin, err)
}

// appendBuildLog keeps a per-workspace record of toolchain invocations.
// Best effort: a failed log write never fails the build.
func (b *Builder) appendBuildLog(dir string, args []string, output string) {
	f, err := os.OpenFile(filepath.Join(dir, "build.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		b.log.Debugw("cannot open build.log", "dir", dir, "err", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "$ %s %s\n%s\n", b.bin, strings.Join(args, " "), output)
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
