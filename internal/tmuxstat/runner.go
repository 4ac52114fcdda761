// Package tmuxstat pushes rendered status lines into a tmux user option
// and watches the active pane so focus follows the user around.
package tmuxstat

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes tmux commands. The production implementation shells out
// to the tmux binary; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, args ...string) error
	Output(ctx context.Context, args ...string) (string, error)
}

type execRunner struct {
	bin string
}

// NewRunner returns a Runner backed by the tmux binary on PATH.
func NewRunner() Runner {
	return execRunner{bin: "tmux"}
}

func (r execRunner) Run(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, r.bin, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("tmux %s: %w (output: %s)", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r execRunner) Output(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, r.bin, args...).Output()
	if err != nil {
		return "", fmt.Errorf("tmux %s: %w", args[0], err)
	}
	return string(out), nil
}
