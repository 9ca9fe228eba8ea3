package config

import (
	"context"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		logger := NewLogger(LoggingConfig{Level: tt.level, Format: "json"})
		if logger.GetLevel() != tt.want {
			t.Errorf("level %q: got %v, want %v", tt.level, logger.GetLevel(), tt.want)
		}
	}
}

func TestNewSlogLoggerLevel(t *testing.T) {
	logger := NewSlogLogger(LoggingConfig{Level: "warn"})
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}
