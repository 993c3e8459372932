package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a run report.
type TelegramMessage struct {
	Success        bool
	Host           string
	StartTime      time.Time
	Duration       time.Duration
	FailedCommands int
	Jobs           []JobResult

	// Set when the run was aborted, e.g. by a signal.
	ErrorMessage string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
