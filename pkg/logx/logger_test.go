package logx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "refresh"))
	log.Info("refreshed", Int("runs", 3), Err(errors.New("boom")))

	out := buf.String()
	for _, want := range []string{`"comp":"refresh"`, `"runs":3`, `"err":"boom"`, `"message":"refreshed"`, `"caller":"logger_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q missing %q", out, want)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelInfo) {
		t.Fatalf("Enabled(info) = true, want false")
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn not written: %q", buf.String())
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero Logger IsZero = false")
	}
	l.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatalf("Nop().IsZero() = true, want false")
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{"": true, "info": true, "WARN": true, "debug": true, "loud": false}
	for in, want := range cases {
		if got := ValidLevel(in); got != want {
			t.Fatalf("ValidLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestServiceFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()

	log.Info("to file", String("k", "v"))
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	log.Info("dropped after apply")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"k":"v"`) {
		t.Fatalf("file log missing field: %q", b)
	}
	if strings.Contains(string(b), "dropped after apply") {
		t.Fatalf("level change not applied: %q", b)
	}
}
