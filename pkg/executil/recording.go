package executil

import (
	"context"
	"sync"
)

// Response is what RecordingExecutor returns for a command name.
type Response struct {
	Output []byte
	Err    error
}

// RecordingExecutor records commands instead of running them. Commands with
// no entry in Responses succeed with no output.
type RecordingExecutor struct {
	Responses map[string]Response

	mu       sync.Mutex
	commands []Command
}

var _ Executor = (*RecordingExecutor)(nil)

func (e *RecordingExecutor) Run(ctx context.Context, cmd Command) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.commands = append(e.commands, cmd)
	resp := e.Responses[cmd.Name]
	return resp.Output, resp.Err
}

// Recorded returns a copy of the commands run so far.
func (e *RecordingExecutor) Recorded() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Command(nil), e.commands...)
}
