// Package vars resolves template tokens embedded in destination strings.
package vars

import (
	"regexp"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/rs/zerolog"
)

// datePattern matches {{date?<strftime pattern>}}.
var datePattern = regexp.MustCompile(`\{\{date\?(.*?)\}\}`)

// Service defines the interface for variable substitution.
type Service interface {
	Now() time.Time
	Substitute(s string) string
	SubstituteAt(s string, t time.Time) string
}

// Impl implements the Service interface.
type Impl struct {
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a substituter using the wall clock.
func New(logger zerolog.Logger) *Impl {
	return NewWithClock(logger, time.Now)
}

// NewWithClock creates a substituter with a custom clock (for testing).
func NewWithClock(logger zerolog.Logger, now func() time.Time) *Impl {
	return &Impl{
		now:    now,
		logger: logger,
	}
}

// Now reads the substituter's clock.
func (s *Impl) Now() time.Time {
	return s.now()
}

// Substitute is SubstituteAt with the current time.
func (s *Impl) Substitute(in string) string {
	return s.SubstituteAt(in, s.now())
}

// SubstituteAt replaces the first date token in in with t formatted by the
// token's strftime pattern. Only one token per string is supported; further
// tokens are left untouched. Strings without a token, or with an invalid
// pattern, are returned unchanged.
func (s *Impl) SubstituteAt(in string, t time.Time) string {
	loc := datePattern.FindStringSubmatchIndex(in)
	if loc == nil {
		return in
	}

	pattern := in[loc[2]:loc[3]]
	formatted, err := strftime.Format(pattern, t)
	if err != nil {
		s.logger.Warn().Err(err).Str("pattern", pattern).Msg("invalid date pattern, leaving value unchanged")
		return in
	}

	out := in[:loc[0]] + formatted + in[loc[1]:]
	if datePattern.MatchString(in[loc[1]:]) {
		s.logger.Debug().Str("value", in).Msg("only the first date token is substituted")
	}
	return out
}
