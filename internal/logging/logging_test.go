package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	l, err := New(false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) || !l.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("default logger should start at warn")
	}
	d, err := New(true)
	if err != nil {
		t.Fatalf("New(debug): %v", err)
	}
	if !d.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug logger should enable debug")
	}
}
