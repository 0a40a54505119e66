package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewSugaredLogger(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		opts    LogOptions
		enabled zapcore.Level
		muted   zapcore.Level
		wantErr error
	}{
		{name: "production defaults to info", enabled: zapcore.InfoLevel, muted: zapcore.DebugLevel},
		{name: "verbose enables debug", verbose: true, enabled: zapcore.DebugLevel, muted: zapcore.DebugLevel - 1},
		{name: "level override", opts: LogOptions{Level: "WARN"}, enabled: zapcore.WarnLevel, muted: zapcore.InfoLevel},
		{name: "console format", opts: LogOptions{Format: "console"}, enabled: zapcore.InfoLevel, muted: zapcore.DebugLevel},
		{name: "unknown format", opts: LogOptions{Format: "xml"}, wantErr: ErrInvalidLogFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewSugaredLoggerWithOptions(tt.verbose, tt.opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			core := log.Desugar().Core()
			require.True(t, core.Enabled(tt.enabled))
			require.False(t, core.Enabled(tt.muted))
		})
	}
}

func TestNewSugaredLogger_InvalidLevel(t *testing.T) {
	_, err := NewSugaredLoggerWithOptions(false, LogOptions{Level: "loud"})
	require.ErrorContains(t, err, "failed to parse log level")
}
