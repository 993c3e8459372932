package models

import "time"

// The backup target is the machine holding the destinations. bakeup can
// wake it before the first job and power it down after the last one.

// WOLConfig holds Wake-on-LAN settings for the backup target.
type WOLConfig struct {
	MACAddress    string
	BroadcastIP   string
	Port          int           // UDP port for the magic packet, usually 9
	PollURL       string        // polled until the target answers; empty skips polling
	Timeout       time.Duration // max time to wait for PollURL
	PollInterval  time.Duration
	StabilizeWait time.Duration // extra wait after the target answers
}

// WOLResult holds the result of a wake attempt.
type WOLResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}

// SSHShutdownConfig holds the settings used to power the target down.
type SSHShutdownConfig struct {
	Host          string
	Port          int
	Username      string
	KeyPath       string
	PrivateKey    []byte // read from KeyPath when nil
	ShutdownDelay int    // minutes
	OS            string // "linux" (default) or "windows"
	Command       string // overrides the OS-specific shutdown command
}

// SSHResult holds the result of a remote command.
type SSHResult struct {
	CommandRun bool
	Output     string
	Error      error
}
