package main

import (
	"os"
	"strings"

	"github.com/fgeck/bakeup/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

// registry is set up before any subcommand runs.
var registry *logging.Registry

var rootCmd = &cobra.Command{
	Use:   "bakeup",
	Short: "A configuration-driven rsync/rclone backup orchestrator",
	Long: `bakeup reads a list of backup jobs and runs them one after another:
  - before-all hooks
  - for every job: before hooks, rsync or rclone, after hooks
  - after-all hooks

Failing hooks and sync runs are logged and the run continues.
Use as a one-shot command with an external scheduler (cron, systemd timer, etc.)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (required, or BAKEUP_CONFIG)")
	rootCmd.PersistentFlags().Bool("json", false, "output logs in JSON format")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.SetEnvPrefix("bakeup")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func setupLogging() {
	if viper.GetBool("json") {
		registry = logging.NewJSONRegistry(os.Stdout)
		return
	}
	registry = logging.NewRegistry(os.Stdout)
}

func configFile() string {
	return viper.GetString("config")
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		if registry == nil {
			setupLogging()
		}
		logFailure(registry, err)
	}
	return err
}

func logFailure(reg *logging.Registry, err error) {
	logger := reg.Default()
	logger.Error().Err(err).Msg("bakeup failed")
}
