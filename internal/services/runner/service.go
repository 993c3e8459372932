// Package runner orchestrates the backup workflow.
package runner

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/bakeup/internal/logging"
	"github.com/fgeck/bakeup/internal/models"
	"github.com/fgeck/bakeup/internal/services/command"
	"github.com/fgeck/bakeup/internal/services/process"
	"github.com/fgeck/bakeup/internal/services/ssh"
	"github.com/fgeck/bakeup/internal/services/telegram"
	"github.com/fgeck/bakeup/internal/services/vars"
	"github.com/fgeck/bakeup/internal/services/wol"
	"github.com/rs/zerolog"
)

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, cfg models.Config) (*models.RunResult, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	processSvc  process.Service
	varsSvc     vars.Service
	wolSvc      wol.Service
	sshSvc      ssh.Service
	telegramSvc telegram.Service
	logger      zerolog.Logger
}

// New creates a new runner service. Child process output goes to the
// registry's per-program channels, everything else to the default channel.
func New(registry *logging.Registry) *Impl {
	logger := registry.Default()
	return &Impl{
		processSvc:  process.New(registry),
		varsSvc:     vars.New(logger),
		wolSvc:      wol.New(logger),
		sshSvc:      ssh.New(logger),
		telegramSvc: telegram.New(logger),
		logger:      logger,
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	processSvc process.Service,
	varsSvc vars.Service,
	wolSvc wol.Service,
	sshSvc ssh.Service,
	telegramSvc telegram.Service,
) *Impl {
	return &Impl{
		processSvc:  processSvc,
		varsSvc:     varsSvc,
		wolSvc:      wolSvc,
		sshSvc:      sshSvc,
		telegramSvc: telegramSvc,
		logger:      logger,
	}
}

// Run executes the before-all hooks, every job in order and the after-all
// hooks. Failing commands are logged and the run carries on; only a
// cancelled context stops it early.
func (s *Impl) Run(ctx context.Context, cfg models.Config) (*models.RunResult, error) {
	result := &models.RunResult{StartTime: time.Now()}

	if cfg.WOL != nil {
		s.wake(ctx, cfg.WOL)
	}

	runErr := s.runAll(ctx, cfg, result)

	if cfg.SSHShutdown != nil && runErr == nil {
		s.shutdown(ctx, cfg.SSHShutdown)
	}

	result.Duration = time.Since(result.StartTime)

	if cfg.Telegram != nil {
		// still report when the run was interrupted
		s.sendNotification(context.WithoutCancel(ctx), *cfg.Telegram, result, runErr)
	}

	return result, runErr
}

func (s *Impl) runAll(ctx context.Context, cfg models.Config, result *models.RunResult) error {
	failed, err := s.runScript(ctx, "before-all", cfg.BeforeAll, cfg.BaseEnv)
	result.FailedCommands += failed
	if err != nil {
		return err
	}

	for i, job := range cfg.Backups {
		jobResult, err := s.runJob(ctx, cfg, job, i+1)
		result.Jobs = append(result.Jobs, jobResult)
		result.FailedCommands += jobResult.FailedCommands
		if err != nil {
			return err
		}
	}

	failed, err = s.runScript(ctx, "after-all", cfg.AfterAll, cfg.BaseEnv)
	result.FailedCommands += failed
	return err
}

func (s *Impl) runJob(ctx context.Context, cfg models.Config, job models.Job, index int) (result models.JobResult, err error) {
	start := time.Now()
	result = models.JobResult{
		Index:        index,
		Source:       job.Source,
		SyncExitCode: -1,
	}
	defer func() { result.Duration = time.Since(start) }()

	s.logger.Info().Msgf("Executing backup #%d", index)

	// Each job gets its own copy, overrides never leak into other jobs.
	env := cfg.BaseEnv.Merge(job.Environment)

	failed, err := s.runScript(ctx, "before", job.Before, env)
	result.FailedCommands += failed
	if err != nil {
		return result, err
	}

	code, err := s.sync(ctx, cfg, job, env, &result)
	result.SyncExitCode = code
	if code != 0 {
		result.FailedCommands++
	}
	if err != nil {
		return result, err
	}

	failed, err = s.runScript(ctx, "after", job.After, env)
	result.FailedCommands += failed
	if err != nil {
		return result, err
	}

	s.logger.Info().Msgf("Done executing backup #%d", index)
	return result, nil
}

func (s *Impl) sync(
	ctx context.Context,
	cfg models.Config,
	job models.Job,
	env models.Environment,
	result *models.JobResult,
) (int, error) {
	backend := job.Backend
	if backend == "" {
		backend = cfg.Backend
	}
	profile, err := command.ProfileFor(backend)
	if err != nil {
		s.logger.Error().Err(err).Msg("Skipping backup")
		return -1, nil
	}

	args := command.NewBuilder(profile, s.varsSvc).Build(job)
	result.Dest = args[len(args)-1]

	// no fields on these lines, the command must read exactly as run
	s.logger.Info().Msg("Performing backup")
	s.logger.Info().Msg(strings.Join(args, " "))
	code, err := s.exec(ctx, models.ExecCommand(args...), env)
	s.logger.Info().Msg("Backup done")
	return code, err
}

// runScript runs the hook commands one after another and returns how
// many of them failed.
func (s *Impl) runScript(
	ctx context.Context,
	name string,
	cmds []models.Command,
	env models.Environment,
) (int, error) {
	if len(cmds) == 0 {
		return 0, nil
	}

	s.logger.Info().Msgf("Executing '%s' script", name)
	failed := 0
	for _, cmd := range cmds {
		code, err := s.exec(ctx, cmd, env)
		if code != 0 {
			failed++
		}
		if err != nil {
			return failed, err
		}
	}
	s.logger.Info().Msgf("Done executing '%s' script", name)
	return failed, nil
}

// exec runs cmd and returns its exit code, or -1 if it could not be started.
// The returned error is non-nil only when ctx is done.
func (s *Impl) exec(ctx context.Context, cmd models.Command, env models.Environment) (int, error) {
	res, err := s.processSvc.Run(ctx, cmd, env)
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Command could not be run")
		return -1, nil
	}
	if res.ExitCode != 0 {
		s.logger.Warn().
			Str("program", res.Program).
			Int("exit_code", res.ExitCode).
			Msg("Command exited with non-zero status")
	}
	return res.ExitCode, nil
}

func (s *Impl) wake(ctx context.Context, cfg *models.WOLConfig) {
	result, err := s.wolSvc.Wake(ctx, *cfg)
	if err == nil {
		err = result.Error
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Wake-on-LAN failed, continuing")
		return
	}
	if !result.TargetReady {
		s.logger.Warn().Msg("Backup target did not become ready, continuing")
		return
	}

	s.logger.Info().
		Dur("wait_duration", result.WaitDuration).
		Msg("Backup target is ready")
}

func (s *Impl) shutdown(ctx context.Context, cfg *models.SSHShutdownConfig) {
	result, err := s.sshSvc.Shutdown(ctx, *cfg)
	if err == nil {
		err = result.Error
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("SSH shutdown failed")
		return
	}

	s.logger.Info().
		Bool("command_run", result.CommandRun).
		Str("output", strings.TrimSpace(result.Output)).
		Msg("Shutdown command sent")
}

func (s *Impl) sendNotification(ctx context.Context, cfg models.TelegramConfig, result *models.RunResult, runErr error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	msg := models.TelegramMessage{
		Success:        runErr == nil && result.Success(),
		Host:           host,
		StartTime:      result.StartTime,
		Duration:       result.Duration,
		FailedCommands: result.FailedCommands,
		Jobs:           result.Jobs,
	}
	if runErr != nil {
		msg.ErrorMessage = fmt.Sprintf("run interrupted: %v", runErr)
	}

	sent, err := s.telegramSvc.SendNotification(ctx, cfg, msg)
	if err == nil {
		err = sent.Error
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to send Telegram report")
		return
	}

	s.logger.Info().Msg("Telegram report sent")
}
