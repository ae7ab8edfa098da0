// Package executil runs one-off processes outside of a terminal session.
package executil

import (
	"context"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"strings"
)

// Command describes a process to run.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  map[string]string // added to the inherited environment
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Executor runs commands and returns their combined output.
type Executor interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// RealExecutor runs commands with os/exec.
type RealExecutor struct{}

var _ Executor = RealExecutor{}

func (RealExecutor) Run(ctx context.Context, cmd Command) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(c.Environ(), EnvList(cmd.Env)...)
	}

	out, err := c.CombinedOutput()
	if err != nil {
		if cmd.Dir != "" {
			return out, fmt.Errorf("run %s in %s: %w", cmd, cmd.Dir, err)
		}
		return out, fmt.Errorf("run %s: %w", cmd, err)
	}
	return out, nil
}

// EnvList renders env as KEY=VALUE pairs sorted by key.
func EnvList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}
