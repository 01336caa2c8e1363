package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(&buf, tt.level)
			if got := log.GetLevel(); got != tt.want {
				t.Errorf("GetLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_InvalidLevelWarns(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "chatty")

	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level fallback, got %v", log.GetLevel())
	}
	if !strings.Contains(buf.String(), "invalid log level") {
		t.Errorf("expected a warning, got %q", buf.String())
	}
}

func TestNew_PlainOutputForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")
	log.Info().Str("key", "a.log.gz").Msg("listed")

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Errorf("expected no color codes, got %q", out)
	}
	if !strings.Contains(out, "listed") || !strings.Contains(out, "key=a.log.gz") {
		t.Errorf("unexpected output %q", out)
	}
}
