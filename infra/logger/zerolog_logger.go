// Package logger adapts rs/zerolog to the core Logger interface.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/bessim/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config selects the level and output format.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SetDefaults fills unset fields. APP_ENV=dev selects the console format.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = zerolog.LevelInfoValue
	}
	if c.Format == "" {
		c.Format = FormatJSON
		if strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
			c.Format = FormatConsole
		}
	}
}

// Validate checks the level and format names.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Format {
	case FormatJSON, FormatConsole:
		return nil
	}
	return fmt.Errorf("logging.format: unknown format %q", c.Format)
}

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// New returns a logger writing to stderr, leaving stdout to command output.
func New(component string, cfg Config) Logger {
	return NewWithWriter(os.Stderr, component, cfg)
}

// NewWithWriter returns a logger writing to w. Every record carries the
// component field.
func NewWithWriter(w io.Writer, component string, cfg Config) *ZerologLogger {
	cfg.SetDefaults()
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Format == FormatConsole {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

// With returns a child logger carrying an extra field.
func (l *ZerologLogger) With(key string, value any) *ZerologLogger {
	return &ZerologLogger{log: l.log.With().Interface(key, value).Logger()}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
