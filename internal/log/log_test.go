package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		name  string
		level string
		want  slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"大文字", "WARN", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"不明な値はinfo", "verbose", slog.LevelInfo},
		{"空文字はinfo", "", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseLevel(tc.level); got != tc.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.level, got, tc.want)
			}
		})
	}
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn", false)

	l.Info("表示されない")
	l.Warn("表示される", "camera", "0")

	out := buf.String()
	if strings.Contains(out, "表示されない") {
		t.Errorf("info が出力されています: %s", out)
	}
	if !strings.Contains(out, "表示される") || !strings.Contains(out, "camera=0") {
		t.Errorf("warn が出力されていません: %s", out)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "info", true)
	l.Info("json", "role", "main")

	if !strings.Contains(buf.String(), `"role":"main"`) {
		t.Errorf("JSON形式になっていません: %s", buf.String())
	}
}
