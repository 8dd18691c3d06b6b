package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FACorreiaa/collections-import/pkg/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.ObservabilityConfig
		wantLevel slog.Level
		wantText  bool
	}{
		{"json info", config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"}, slog.LevelInfo, false},
		{"text debug", config.ObservabilityConfig{LogLevel: "debug", LogFormat: "TEXT"}, slog.LevelDebug, true},
		{"bad level falls back to info", config.ObservabilityConfig{LogLevel: "loud"}, slog.LevelInfo, false},
		{"warn", config.ObservabilityConfig{LogLevel: "WARN"}, slog.LevelWarn, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := newLogger(tt.cfg)
			ctx := context.Background()

			assert.True(t, logger.Enabled(ctx, tt.wantLevel))
			assert.False(t, logger.Enabled(ctx, tt.wantLevel-1))

			_, isText := logger.Handler().(*slog.TextHandler)
			assert.Equal(t, tt.wantText, isText)
		})
	}
}
