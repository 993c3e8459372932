package models

import "time"

// ProcessResult holds the outcome of a single child process.
type ProcessResult struct {
	Program  string
	ExitCode int
	Duration time.Duration
}

// JobResult holds the outcome of a single backup job.
type JobResult struct {
	Index          int // 1-based
	Source         string
	Dest           string // after date substitution
	SyncExitCode   int    // -1 if the sync tool could not be started
	FailedCommands int    // hooks and sync invocations that failed or could not start
	Duration       time.Duration
}

// RunResult holds the outcome of a complete run.
type RunResult struct {
	StartTime      time.Time
	Duration       time.Duration
	Jobs           []JobResult
	FailedCommands int // including before-all and after-all hooks
}

// Success reports whether every command of the run exited with status 0.
func (r *RunResult) Success() bool {
	return r.FailedCommands == 0
}
