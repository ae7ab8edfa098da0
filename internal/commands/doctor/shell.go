package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hay-kot/conch/internal/core/config"
	"github.com/hay-kot/conch/pkg/executil"
)

const shellProbeTimeout = 5 * time.Second

// ShellCheck verifies the local shell can be found and started with the
// environment sessions give it.
type ShellCheck struct {
	cfg    config.ShellConfig
	runner executil.Executor
}

func NewShellCheck(cfg config.ShellConfig, runner executil.Executor) *ShellCheck {
	return &ShellCheck{cfg: cfg, runner: runner}
}

func (c *ShellCheck) Name() string {
	return "Local Shell"
}

func (c *ShellCheck) Run(ctx context.Context) Result {
	r := Result{Name: c.Name()}

	resolved, err := exec.LookPath(c.cfg.Path)
	if err != nil {
		r.fail("Shell found", fmt.Sprintf("%s not found in PATH", c.cfg.Path))
		return r
	}
	r.pass("Shell found", resolved)

	ctx, cancel := context.WithTimeout(ctx, shellProbeTimeout)
	defer cancel()

	env := map[string]string{"TERM": c.cfg.Term}
	for k, v := range c.cfg.Env {
		env[k] = v
	}

	out, err := c.runner.Run(ctx, executil.Command{
		Name: resolved,
		Args: []string{"-c", "exit 0"},
		Dir:  c.cfg.Dir,
		Env:  env,
	})
	if err != nil {
		detail := err.Error()
		if msg := strings.TrimSpace(string(out)); msg != "" {
			detail += ": " + msg
		}
		r.fail("Shell starts", detail)
		return r
	}

	r.pass("Shell starts", "")
	return r
}
