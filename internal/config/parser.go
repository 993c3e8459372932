// Package config provides configuration file parsing.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fgeck/bakeup/internal/models"
	"github.com/fgeck/bakeup/internal/services/command"
	"gopkg.in/yaml.v3"
)

// ErrConfig is wrapped by every error caused by an unreadable, malformed or
// incomplete configuration.
var ErrConfig = errors.New("invalid configuration")

// Parser handles configuration file parsing.
// YAML and JSON documents are both accepted.
type Parser struct {
	environ func() []string
}

// NewParser creates a new configuration parser that snapshots the process
// environment at load time.
func NewParser() *Parser {
	return NewParserWithEnviron(os.Environ)
}

// NewParserWithEnviron creates a parser with a custom environment source (for testing).
func NewParserWithEnviron(environ func() []string) *Parser {
	return &Parser{environ: environ}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file: %w", ErrConfig, err)
	}

	return p.parse(data)
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	return p.parse([]byte(content))
}

// hook accepts either a shell string or a list of arguments.
type hook models.Command

func (h *hook) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var script string
		if err := node.Decode(&script); err != nil {
			return err
		}
		*h = hook(models.ShellCommand(script))
	case yaml.SequenceNode:
		var args []string
		if err := node.Decode(&args); err != nil {
			return err
		}
		*h = hook(models.ExecCommand(args...))
	default:
		return fmt.Errorf("line %d: hook must be a string or a list of strings", node.Line)
	}
	return nil
}

func (h *hook) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.HasPrefix(data, []byte(`"`)):
		var script string
		if err := json.Unmarshal(data, &script); err != nil {
			return err
		}
		*h = hook(models.ShellCommand(script))
	case bytes.HasPrefix(data, []byte("[")):
		var args []string
		if err := json.Unmarshal(data, &args); err != nil {
			return err
		}
		*h = hook(models.ExecCommand(args...))
	default:
		return errors.New("hook must be a string or a list of strings")
	}
	return nil
}

// duration is written as a Go duration string such as "5m" or "30s".
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string such as \"5m\": %w", err)
	}
	return d.set(s)
}

func (d *duration) set(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

type rawJob struct {
	Source              string            `json:"source" yaml:"source"`
	Dest                string            `json:"dest" yaml:"dest"`
	Before              []hook            `json:"before" yaml:"before"`
	After               []hook            `json:"after" yaml:"after"`
	DryRun              bool              `json:"dry-run" yaml:"dry-run"`
	Excludes            []string          `json:"excludes" yaml:"excludes"`
	Exceptions          []string          `json:"exceptions" yaml:"exceptions"` // older spelling of excludes
	Includes            []string          `json:"includes" yaml:"includes"`
	Filters             []string          `json:"filters" yaml:"filters"`
	AdditionalArguments []string          `json:"additional-arguments" yaml:"additional-arguments"`
	BwLimit             string            `json:"bwlimit" yaml:"bwlimit"`
	BackupDir           string            `json:"backup-dir" yaml:"backup-dir"`
	Checksum            bool              `json:"checksum" yaml:"checksum"`
	Environment         map[string]string `json:"environment" yaml:"environment"`
	Backend             string            `json:"backend" yaml:"backend"`
}

type rawWOL struct {
	MACAddress    string   `json:"mac-address" yaml:"mac-address"`
	BroadcastIP   string   `json:"broadcast-ip" yaml:"broadcast-ip"`
	Port          int      `json:"port" yaml:"port"`
	PollURL       string   `json:"poll-url" yaml:"poll-url"`
	Timeout       duration `json:"timeout" yaml:"timeout"`
	PollInterval  duration `json:"poll-interval" yaml:"poll-interval"`
	StabilizeWait duration `json:"stabilize-wait" yaml:"stabilize-wait"`
}

type rawSSHShutdown struct {
	Host          string `json:"host" yaml:"host"`
	Port          int    `json:"port" yaml:"port"`
	Username      string `json:"username" yaml:"username"`
	KeyPath       string `json:"key-path" yaml:"key-path"`
	ShutdownDelay int    `json:"shutdown-delay" yaml:"shutdown-delay"`
	OS            string `json:"os" yaml:"os"`
	Command       string `json:"command" yaml:"command"`
}

type rawTelegram struct {
	BotToken string `json:"bot-token" yaml:"bot-token"`
	ChatID   string `json:"chat-id" yaml:"chat-id"`
}

type rawConfig struct {
	BeforeAll   []hook            `json:"before-all" yaml:"before-all"`
	AfterAll    []hook            `json:"after-all" yaml:"after-all"`
	Environment map[string]string `json:"environment" yaml:"environment"`
	Backend     string            `json:"backend" yaml:"backend"`
	Backups     []rawJob          `json:"backups" yaml:"backups"`
	WOL         *rawWOL           `json:"wake-on-lan" yaml:"wake-on-lan"`
	SSHShutdown *rawSSHShutdown   `json:"ssh-shutdown" yaml:"ssh-shutdown"`
	Telegram    *rawTelegram      `json:"telegram" yaml:"telegram"`
}

// decode reads a JSON object with encoding/json and anything else as YAML.
func decode(data []byte) (rawConfig, error) {
	var raw rawConfig
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		err := json.Unmarshal(data, &raw)
		return raw, err
	}
	err := yaml.Unmarshal(data, &raw)
	return raw, err
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse(data []byte) (*models.Config, error) {
	raw, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing config: %w", ErrConfig, err)
	}

	if raw.Backups == nil {
		return nil, fmt.Errorf("%w: backups is required", ErrConfig)
	}

	cfg := &models.Config{
		Environment: models.Environment(raw.Environment),
		Backend:     raw.Backend,
	}
	if cfg.Backend == "" {
		cfg.Backend = command.DefaultBackend
	}
	if _, err := command.ProfileFor(cfg.Backend); err != nil {
		return nil, fmt.Errorf("%w: backend: %w", ErrConfig, err)
	}

	if cfg.BeforeAll, err = toCommands("before-all", raw.BeforeAll); err != nil {
		return nil, err
	}
	if cfg.AfterAll, err = toCommands("after-all", raw.AfterAll); err != nil {
		return nil, err
	}

	// The inherited environment is captured once; later changes do not propagate.
	cfg.BaseEnv = models.EnvironmentFromSlice(p.environ()).Merge(cfg.Environment)

	cfg.Backups = make([]models.Job, 0, len(raw.Backups))
	for i, rj := range raw.Backups {
		field := fmt.Sprintf("backups[%d]", i)

		if rj.Source == "" {
			return nil, fmt.Errorf("%w: %s.source is required", ErrConfig, field)
		}
		if rj.Dest == "" {
			return nil, fmt.Errorf("%w: %s.dest is required", ErrConfig, field)
		}
		if rj.Backend != "" {
			if _, err := command.ProfileFor(rj.Backend); err != nil {
				return nil, fmt.Errorf("%w: %s.backend: %w", ErrConfig, field, err)
			}
		}

		job := models.Job{
			Source:              rj.Source,
			Dest:                rj.Dest,
			DryRun:              rj.DryRun,
			Excludes:            append(rj.Excludes, rj.Exceptions...),
			Includes:            rj.Includes,
			Filters:             rj.Filters,
			AdditionalArguments: rj.AdditionalArguments,
			BwLimit:             rj.BwLimit,
			BackupDir:           rj.BackupDir,
			Checksum:            rj.Checksum,
			Environment:         models.Environment(rj.Environment),
			Backend:             rj.Backend,
		}
		if job.Before, err = toCommands(field+".before", rj.Before); err != nil {
			return nil, err
		}
		if job.After, err = toCommands(field+".after", rj.After); err != nil {
			return nil, err
		}

		cfg.Backups = append(cfg.Backups, job)
	}

	// Parse optional Wake-on-LAN config.
	if raw.WOL != nil {
		cfg.WOL = &models.WOLConfig{
			MACAddress:    raw.WOL.MACAddress,
			BroadcastIP:   raw.WOL.BroadcastIP,
			Port:          raw.WOL.Port,
			PollURL:       raw.WOL.PollURL,
			Timeout:       time.Duration(raw.WOL.Timeout),
			PollInterval:  time.Duration(raw.WOL.PollInterval),
			StabilizeWait: time.Duration(raw.WOL.StabilizeWait),
		}

		if cfg.WOL.MACAddress == "" {
			return nil, fmt.Errorf("%w: wake-on-lan.mac-address is required when wake-on-lan is configured", ErrConfig)
		}

		// Set defaults.
		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Port == 0 {
			cfg.WOL.Port = 9
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 5 * time.Minute
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 10 * time.Second
		}
		if cfg.WOL.StabilizeWait == 0 {
			cfg.WOL.StabilizeWait = 10 * time.Second
		}
	}

	// Parse optional SSH shutdown config.
	if raw.SSHShutdown != nil {
		cfg.SSHShutdown = &models.SSHShutdownConfig{
			Host:          raw.SSHShutdown.Host,
			Port:          raw.SSHShutdown.Port,
			Username:      raw.SSHShutdown.Username,
			KeyPath:       os.ExpandEnv(raw.SSHShutdown.KeyPath),
			ShutdownDelay: raw.SSHShutdown.ShutdownDelay,
			OS:            raw.SSHShutdown.OS,
			Command:       raw.SSHShutdown.Command,
		}

		if cfg.SSHShutdown.Host == "" {
			return nil, fmt.Errorf("%w: ssh-shutdown.host is required when ssh-shutdown is configured", ErrConfig)
		}
		if cfg.SSHShutdown.KeyPath == "" {
			return nil, fmt.Errorf("%w: ssh-shutdown.key-path is required when ssh-shutdown is configured", ErrConfig)
		}
		if cfg.SSHShutdown.Port == 0 {
			cfg.SSHShutdown.Port = 22
		}
		if cfg.SSHShutdown.Username == "" {
			cfg.SSHShutdown.Username = "root"
		}
		if cfg.SSHShutdown.OS == "" {
			cfg.SSHShutdown.OS = "linux"
		}
		validOS := map[string]bool{"linux": true, "windows": true}
		if !validOS[cfg.SSHShutdown.OS] {
			return nil, fmt.Errorf("%w: ssh-shutdown.os must be one of: linux, windows", ErrConfig)
		}
	}

	// Parse optional Telegram config.
	if raw.Telegram != nil {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: os.ExpandEnv(raw.Telegram.BotToken),
			ChatID:   os.ExpandEnv(raw.Telegram.ChatID),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("%w: telegram.bot-token is required when telegram is configured", ErrConfig)
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("%w: telegram.chat-id is required when telegram is configured", ErrConfig)
		}
	}

	return cfg, nil
}

func toCommands(field string, hooks []hook) ([]models.Command, error) {
	cmds := make([]models.Command, 0, len(hooks))
	for i, h := range hooks {
		cmd := models.Command(h)
		if len(cmd.Args) == 0 || cmd.Args[0] == "" {
			return nil, fmt.Errorf("%w: %s[%d] is empty", ErrConfig, field, i)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", ErrConfig)
	}

	if cfg.Backups == nil {
		return fmt.Errorf("%w: backups is required", ErrConfig)
	}

	if _, err := command.ProfileFor(cfg.Backend); err != nil {
		return fmt.Errorf("%w: backend: %w", ErrConfig, err)
	}

	for i, job := range cfg.Backups {
		if job.Source == "" {
			return fmt.Errorf("%w: backups[%d].source is required", ErrConfig, i)
		}
		if job.Dest == "" {
			return fmt.Errorf("%w: backups[%d].dest is required", ErrConfig, i)
		}
		if _, err := command.ProfileFor(job.Backend); job.Backend != "" && err != nil {
			return fmt.Errorf("%w: backups[%d].backend: %w", ErrConfig, i, err)
		}
	}

	return nil
}
