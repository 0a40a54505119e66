package utils

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ErrInvalidLogFormat = errors.New("invalid log format: must be json or console")

// LogOptions tunes the logger built by NewSugaredLogger.
type LogOptions struct {
	// Level overrides the default level ("debug" when verbose, "info" otherwise).
	Level string
	// Format is "json" or "console". Empty keeps the default of the chosen preset.
	Format string
}

// NewSugaredLogger creates a sugared logger based on the verbose flag.
// If verbose is true, it creates a development logger, otherwise a production logger.
func NewSugaredLogger(verbose bool) (*zap.SugaredLogger, error) {
	return NewSugaredLoggerWithOptions(verbose, LogOptions{})
}

// NewSugaredLoggerWithOptions is NewSugaredLogger with a level and encoding override.
func NewSugaredLoggerWithOptions(verbose bool, opts LogOptions) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	preset := "production"
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		preset = "development"
	}

	if opts.Level != "" {
		level, err := zap.ParseAtomicLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("failed to parse log level %q: %w", opts.Level, err)
		}
		cfg.Level = level
	}
	switch strings.ToLower(opts.Format) {
	case "":
	case "json":
		cfg.Encoding = "json"
		cfg.EncoderConfig = zap.NewProductionEncoderConfig()
	case "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidLogFormat, opts.Format)
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s logger: %w", preset, err)
	}
	return l.Sugar(), nil
}
