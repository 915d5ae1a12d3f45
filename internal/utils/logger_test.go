package utils

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerLevels(t *testing.T) {
	if got := NewLogger("debug").GetLevel(); got != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %v", got)
	}
	if got := NewLogger("nonsense").GetLevel(); got != logrus.InfoLevel {
		t.Errorf("Unknown level should fall back to info, got %v", got)
	}
}
