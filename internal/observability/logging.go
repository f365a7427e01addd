// Package observability builds the process logger.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/smuggle/internal/config"
)

// ServiceName is attached to every log line.
const ServiceName = "smuggle"

// Logging is the process logger plus the handle that changes its level at runtime.
type Logging struct {
	Logger *zap.Logger
	// Level serves GET and PUT {"level": "..."} over HTTP.
	Level zap.AtomicLevel
}

// NewLogging builds the logger described by cfg.
//
// Precondition: cfg.Level is a zap level name; cfg.Format is "json" or "console".
// Postcondition: json output is sampled and tagged with ServiceName; console output
// is unsampled with colored levels. Error entries carry a stack trace in both.
func NewLogging(cfg config.LoggingConfig) (Logging, error) {
	initial, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return Logging{}, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	level := zap.NewAtomicLevelAt(initial)

	var zc zap.Config
	switch cfg.Format {
	case "json":
		zc = zap.NewProductionConfig()
		zc.InitialFields = map[string]any{"service": ServiceName}
	case "console":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.Sampling = nil
	default:
		return Logging{}, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.Level = level
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	logger, err := zc.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return Logging{}, fmt.Errorf("building %s logger: %w", cfg.Format, err)
	}
	return Logging{Logger: logger, Level: level}, nil
}

// Component returns a child logger tagged with the component name.
func Component(logger *zap.Logger, name string) *zap.Logger {
	return logger.Named(name).With(zap.String("component", name))
}
