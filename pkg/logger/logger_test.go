package logger

import (
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env, level string
		wantLevel  zap.AtomicLevel
		wantErr    bool
	}{
		{"production", "", zap.NewAtomicLevelAt(zap.InfoLevel), false},
		{"development", "", zap.NewAtomicLevelAt(zap.DebugLevel), false},
		{"production", "warn", zap.NewAtomicLevelAt(zap.WarnLevel), false},
		{"development", "loud", zap.AtomicLevel{}, true},
	}
	for _, tt := range tests {
		log, err := New(tt.env, tt.level)
		if (err != nil) != tt.wantErr {
			t.Fatalf("New(%q, %q) err = %v, wantErr %v", tt.env, tt.level, err, tt.wantErr)
		}
		if tt.wantErr {
			continue
		}
		if !log.Core().Enabled(tt.wantLevel.Level()) {
			t.Errorf("New(%q, %q): level %v not enabled", tt.env, tt.level, tt.wantLevel.Level())
		}
		if tt.wantLevel.Level() > zap.DebugLevel && log.Core().Enabled(zap.DebugLevel) {
			t.Errorf("New(%q, %q): debug should be disabled", tt.env, tt.level)
		}
	}
}
