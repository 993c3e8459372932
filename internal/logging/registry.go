// Package logging provides named log channels.
//
// Every program bakeup runs gets its own channel, keyed by the program's
// base name, so that output reads as "<name> - <LEVEL> - <message>".
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ChannelFieldName is the field carrying the channel name on every event.
const ChannelFieldName = "channel"

// DefaultChannel is the channel used by bakeup itself.
const DefaultChannel = "bakeup"

// Registry hands out one logger per channel name. Loggers are created on
// first use and cached; a name never gets a second logger.
// A Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	base    zerolog.Logger
	loggers map[string]zerolog.Logger
}

// NewRegistry creates a registry that writes human-readable lines to out.
func NewRegistry(out io.Writer) *Registry {
	return NewRegistryWithLogger(zerolog.New(ConsoleWriter(out)))
}

// NewJSONRegistry creates a registry that writes one JSON object per line to out.
func NewJSONRegistry(out io.Writer) *Registry {
	return NewRegistryWithLogger(zerolog.New(zerolog.SyncWriter(out)).With().Timestamp().Logger())
}

// NewRegistryWithLogger creates a registry deriving every channel from base.
func NewRegistryWithLogger(base zerolog.Logger) *Registry {
	return &Registry{
		base:    base,
		loggers: make(map[string]zerolog.Logger),
	}
}

// Get returns the logger for name, creating it if absent.
func (r *Registry) Get(name string) zerolog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if logger, ok := r.loggers[name]; ok {
		return logger
	}
	logger := r.base.With().Str(ChannelFieldName, name).Logger()
	r.loggers[name] = logger
	return logger
}

// Default returns the bakeup channel.
func (r *Registry) Default() zerolog.Logger {
	return r.Get(DefaultChannel)
}

// Names returns the channel names created so far, in no particular order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.loggers))
	for name := range r.loggers {
		names = append(names, name)
	}
	return names
}

// ConsoleWriter formats events as "<channel> - <LEVEL> - <message>".
// Extra fields follow the message as key=value pairs.
func ConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:           zerolog.SyncWriter(out),
		NoColor:       true,
		PartsOrder:    []string{ChannelFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FieldsExclude: []string{ChannelFieldName},
		FormatLevel: func(i interface{}) string {
			return "- " + levelName(i) + " -"
		},
		FormatFieldValue: func(i interface{}) string {
			return fmt.Sprintf("%v", i)
		},
	}
}

func levelName(i interface{}) string {
	s, ok := i.(string)
	if !ok {
		return "INFO"
	}
	if s == zerolog.LevelWarnValue {
		return "WARNING"
	}
	return strings.ToUpper(s)
}
