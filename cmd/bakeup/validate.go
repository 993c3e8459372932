package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fgeck/bakeup/internal/config"
	"github.com/fgeck/bakeup/internal/models"
	"github.com/fgeck/bakeup/internal/services/command"
	"github.com/fgeck/bakeup/internal/services/ssh"
	"github.com/fgeck/bakeup/internal/services/vars"
	"github.com/fgeck/bakeup/internal/services/wol"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file and print the commands a run would execute, without executing anything.`,
	RunE:  validateConfig,
}

var checkTarget bool

func init() {
	validateCmd.Flags().BoolVar(&checkTarget, "check-target", false, "also test the SSH connection to the backup target")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	path := configFile()
	if path == "" {
		return errors.New("config file is required")
	}

	cfg, err := config.NewParser().LoadFile(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	substituter := vars.New(registry.Default())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Default backend: %s\n", cfg.Backend)
	printHooks(cmd, "before-all", cfg.BeforeAll)

	for i, job := range cfg.Backups {
		backend := job.Backend
		if backend == "" {
			backend = cfg.Backend
		}
		profile, err := command.ProfileFor(backend)
		if err != nil {
			return err
		}

		fmt.Fprintln(out)
		fmt.Fprintf(out, "Backup #%d:\n", i+1)
		printHooks(cmd, "  before", job.Before)
		fmt.Fprintf(out, "  sync: %s\n", strings.Join(command.NewBuilder(profile, substituter).Build(job), " "))
		printHooks(cmd, "  after", job.After)
		if len(job.Environment) > 0 {
			fmt.Fprintf(out, "  environment overrides: %d\n", len(job.Environment))
		}
	}

	fmt.Fprintln(out)
	printHooks(cmd, "after-all", cfg.AfterAll)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Optional Features:")
	if cfg.WOL != nil {
		addr, mac, err := wol.ResolveTarget(*cfg.WOL)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  Wake-on-LAN: %s via %s\n", mac, addr)
	} else {
		fmt.Fprintln(out, "  Wake-on-LAN: false")
	}
	fmt.Fprintf(out, "  SSH Shutdown: %v\n", cfg.SSHShutdown != nil)
	fmt.Fprintf(out, "  Telegram: %v\n", cfg.Telegram != nil)

	if checkTarget && cfg.SSHShutdown != nil {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		result, err := ssh.New(registry.Default()).TestConnection(ctx, *cfg.SSHShutdown)
		if err == nil {
			err = result.Error
		}
		if err != nil {
			return fmt.Errorf("backup target unreachable: %w", err)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "SSH connection to %s: OK\n", cfg.SSHShutdown.Host)
	}

	return nil
}

func printHooks(cmd *cobra.Command, name string, hooks []models.Command) {
	for _, hook := range hooks {
		if hook.Shell {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: sh -c %q\n", name, hook.Args[0])
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, strings.Join(hook.Args, " "))
	}
}
