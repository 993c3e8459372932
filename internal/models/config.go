// Package models contains the data structures used throughout bakeup.
package models

// Config holds the complete configuration for a backup run.
type Config struct {
	BeforeAll   []Command
	AfterAll    []Command
	Environment Environment // config-level overrides as written in the file
	BaseEnv     Environment // inherited process environment overlaid with Environment
	Backend     string      // default backend profile for jobs, e.g. "rsync"
	Backups     []Job

	WOL         *WOLConfig         // nil if not configured
	SSHShutdown *SSHShutdownConfig // nil if not configured
	Telegram    *TelegramConfig    // nil if not configured
}

// Job is a single source to destination synchronization unit.
type Job struct {
	Source              string
	Dest                string // may contain a date token
	Before              []Command
	After               []Command
	DryRun              bool
	Excludes            []string
	Includes            []string
	Filters             []string
	AdditionalArguments []string
	BwLimit             string
	BackupDir           string // may contain a date token
	Checksum            bool
	Environment         Environment
	Backend             string // overrides Config.Backend when set
}

// Command is a hook or tool invocation.
// When Shell is true, Args holds exactly one element which is handed to sh -c.
type Command struct {
	Args  []string
	Shell bool
}

// ShellCommand returns a Command interpreted by the shell.
func ShellCommand(script string) Command {
	return Command{Args: []string{script}, Shell: true}
}

// ExecCommand returns a Command executed without a shell.
func ExecCommand(args ...string) Command {
	return Command{Args: args}
}
