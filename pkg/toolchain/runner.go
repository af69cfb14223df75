package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Runner executes an external program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError is returned when a command exits with a non-zero status.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command '%s' finished with exit code %d: %s", e.Command, e.ExitCode, strings.TrimSpace(e.Stderr))
}

type execRunner struct {
	logger  hclog.Logger
	timeout time.Duration
}

// NewExecRunner returns a runner executing programs directly, without a shell.
// A zero timeout means no limit besides the context.
func NewExecRunner(logger hclog.Logger, timeout time.Duration) Runner {
	return &execRunner{logger: logger, timeout: timeout}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	commandLine := strings.Join(append([]string{name}, args...), " ")
	r.logger.Debug("running command", "command", commandLine)

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	if err := cmd.Run(); err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			return stdout.Bytes(), &CommandError{
				Command:  commandLine,
				ExitCode: exitError.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return stdout.Bytes(), fmt.Errorf("failed running command '%s': %v", commandLine, err)
	}
	r.logger.Debug("command finished", "command", name, "duration", time.Since(started).String())
	return stdout.Bytes(), nil
}
