package logger

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Components derive child loggers from it
// with the With* helpers so every line carries tenant/run/item context.
var Logger zerolog.Logger

// Config holds logging configuration.
type Config struct {
	Level      string
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with a component field.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithCompany creates a child logger with a company_id field.
func WithCompany(base zerolog.Logger, companyID uuid.UUID) zerolog.Logger {
	return base.With().Str("company_id", companyID.String()).Logger()
}

// WithItem creates a child logger carrying queue-item context.
func WithItem(base zerolog.Logger, itemID, runID uuid.UUID, channel string) zerolog.Logger {
	return base.With().
		Str("item_id", itemID.String()).
		Str("run_id", runID.String()).
		Str("channel", channel).
		Logger()
}
