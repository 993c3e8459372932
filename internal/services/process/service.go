// Package process runs child processes and streams their output into log channels.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fgeck/bakeup/internal/logging"
	"github.com/fgeck/bakeup/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultShell interprets shell commands.
const DefaultShell = "/bin/sh"

// Service defines the interface for running child processes.
type Service interface {
	Run(ctx context.Context, cmd models.Command, env models.Environment) (*models.ProcessResult, error)
}

// Impl implements the Service interface.
type Impl struct {
	registry *logging.Registry
	shell    string
}

// New creates a new process service logging through registry.
func New(registry *logging.Registry) *Impl {
	return NewWithShell(registry, DefaultShell)
}

// NewWithShell creates a new process service with a custom shell.
func NewWithShell(registry *logging.Registry, shell string) *Impl {
	return &Impl{
		registry: registry,
		shell:    shell,
	}
}

// ProgramName returns the log channel name for cmd: the base name of the
// executable, or of the first word of a shell script.
func ProgramName(cmd models.Command) string {
	if len(cmd.Args) == 0 {
		return ""
	}
	first := cmd.Args[0]
	if cmd.Shell {
		fields := strings.Fields(first)
		if len(fields) == 0 {
			return filepath.Base(DefaultShell)
		}
		first = fields[0]
	}
	return filepath.Base(first)
}

// Run executes cmd with env as its complete environment. stdout lines are
// logged at info level and stderr lines at warn level on the program's
// channel. Both streams are drained concurrently and Run returns once the
// child has exited and both streams are exhausted.
//
// A non-zero exit status is reported in the result, not as an error.
func (s *Impl) Run(ctx context.Context, cmd models.Command, env models.Environment) (*models.ProcessResult, error) {
	if len(cmd.Args) == 0 {
		return nil, errors.New("empty command")
	}

	name := ProgramName(cmd)
	logger := s.registry.Get(name)
	result := &models.ProcessResult{Program: name, ExitCode: -1}

	var c *exec.Cmd
	if cmd.Shell {
		c = exec.CommandContext(ctx, s.shell, "-c", cmd.Args[0])
	} else {
		c = exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	}
	c.Env = env.Slice()
	// Own process group: cancellation must also kill whatever a hook
	// script spawned, or those would hold the pipes open.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}

	stdout, err := c.StdoutPipe()
	if err != nil {
		return result, fmt.Errorf("failed to open stdout of %s: %w", name, err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return result, fmt.Errorf("failed to open stderr of %s: %w", name, err)
	}

	start := time.Now()
	if err := c.Start(); err != nil {
		return result, fmt.Errorf("failed to start %s: %w", name, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		return drain(stdout, logger, zerolog.InfoLevel)
	})
	g.Go(func() error {
		return drain(stderr, logger, zerolog.WarnLevel)
	})
	drainErr := g.Wait()

	waitErr := c.Wait()
	result.Duration = time.Since(start)
	result.ExitCode = c.ProcessState.ExitCode()

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if drainErr != nil {
		return result, fmt.Errorf("failed to read output of %s: %w", name, drainErr)
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result, fmt.Errorf("failed to wait for %s: %w", name, waitErr)
	}

	return result, nil
}

// drain logs every line of r at level until EOF.
func drain(r io.Reader, logger zerolog.Logger, level zerolog.Level) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			logger.WithLevel(level).Msg(strings.TrimRight(line, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
