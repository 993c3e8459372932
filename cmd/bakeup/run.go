package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/bakeup/internal/config"
	"github.com/fgeck/bakeup/internal/services/runner"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute every configured backup",
	Long: `Execute the complete backup workflow:
1. Wake-on-LAN (if configured)
2. before-all hooks
3. For every backup, in order: before hooks, sync, after hooks
4. after-all hooks
5. SSH shutdown (if configured)
6. Telegram report (if configured)`,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	logger := registry.Default()

	path := configFile()
	if path == "" {
		return errors.New("config file is required")
	}

	logger.Info().Msg("Loading configuration file...")
	cfg, err := config.NewParser().LoadFile(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	logger.Info().Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := runner.New(registry).Run(ctx, *cfg)
	if err != nil {
		return err
	}

	logger.Info().
		Int("backups", len(result.Jobs)).
		Int("failed_commands", result.FailedCommands).
		Dur("duration", result.Duration).
		Msg("Run finished")
	return nil
}
