package observability

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	logger, err := NewLogger("warn", "json")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("error should be enabled at warn level")
	}
}

func TestNewLoggerDefaultsEmptyLevelToInfo(t *testing.T) {
	logger, err := NewLogger("", "console")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be enabled by default")
	}
}

func TestNewLoggerRejectsBadInput(t *testing.T) {
	if _, err := NewLogger("loud", "json"); err == nil {
		t.Fatalf("NewLogger() expected error for bad level")
	}
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Fatalf("NewLogger() expected error for bad format")
	}
}
