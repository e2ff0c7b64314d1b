// Package wildcat drives the external debris-flow model as a command line
// tool. The model is opaque: the pipeline observes only its exit status, its
// stderr and the files it leaves in the project directory.
package wildcat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrOutOfMemory marks a model run that died from memory exhaustion. The
// batch orchestrator counts these separately from other failures.
var ErrOutOfMemory = errors.New("model ran out of memory")

const DefaultBinary = "wildcat"

// oomExitCode is what a shell reports for a child killed by the kernel OOM
// killer (128+SIGKILL).
const oomExitCode = 137

// memoryMarkers are stderr fragments that identify a memory-exhaustion
// failure regardless of the exit code.
var memoryMarkers = []string{
	"memoryerror",
	"out of memory",
	"cannot allocate memory",
	"bad_alloc",
}

// Runner is the model adapter consumed by the project initializer and the
// assessment runner.
type Runner interface {
	Initialize(ctx context.Context, projectDir string) error
	Preprocess(ctx context.Context, projectDir string) error
	Assess(ctx context.Context, projectDir string) error
	Export(ctx context.Context, projectDir string, format string) error
}

// CLI runs the model binary with one subcommand per pipeline stage.
type CLI struct {
	binary string
}

var _ Runner = (*CLI)(nil)

func NewCLI(binary string) *CLI {
	if binary == "" {
		binary = DefaultBinary
	}
	return &CLI{binary: binary}
}

// Available reports whether the model binary can be found on PATH.
func (c *CLI) Available() error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return fmt.Errorf("model binary %s not found: %w", c.binary, err)
	}
	return nil
}

func (c *CLI) Initialize(ctx context.Context, projectDir string) error {
	return c.run(ctx, "initialize", projectDir)
}

func (c *CLI) Preprocess(ctx context.Context, projectDir string) error {
	return c.run(ctx, "preprocess", projectDir)
}

func (c *CLI) Assess(ctx context.Context, projectDir string) error {
	return c.run(ctx, "assess", projectDir)
}

func (c *CLI) Export(ctx context.Context, projectDir string, format string) error {
	return c.run(ctx, "export", projectDir, "--format", format)
}

func (c *CLI) run(ctx context.Context, stage string, args ...string) error {
	cmd := exec.CommandContext(ctx, c.binary, append([]string{stage}, args...)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err == nil {
		zap.S().Named("wildcat").Debugw("stage finished",
			"stage", stage, "duration_s", time.Since(start).Seconds())
		return nil
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%s %s: %w", c.binary, stage, ctx.Err())
	}

	detail := lastLine(stderr.String())
	if isOutOfMemory(err, stderr.String()) {
		if detail != "" {
			return fmt.Errorf("%s %s: %s: %w", c.binary, stage, detail, ErrOutOfMemory)
		}
		return fmt.Errorf("%s %s: %w", c.binary, stage, ErrOutOfMemory)
	}

	if detail != "" {
		return fmt.Errorf("%s %s: %v: %s", c.binary, stage, err, detail)
	}
	return fmt.Errorf("%s %s: %w", c.binary, stage, err)
}

func isOutOfMemory(err error, stderr string) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == oomExitCode {
			return true
		}
		// killed by a signal with no cancellation in play: the kernel OOM
		// killer is the usual sender
		if strings.Contains(exitErr.String(), "signal: killed") {
			return true
		}
	}

	lower := strings.ToLower(stderr)
	for _, marker := range memoryMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// lastLine returns the last non-empty stderr line, truncated to keep error
// messages readable.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if len(line) > 200 {
			line = line[:200]
		}
		return line
	}
	return ""
}
