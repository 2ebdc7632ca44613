package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckDefaults(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "check")
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	for _, want := range []string{"config ok", "irc.speedrunslive.com:6667 #502 as BreetBot", "every 60s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckPositionalOverride(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "check", "irc.example.net", "#gdq", "Breet2")
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	if !strings.Contains(out, "irc.example.net:6667 #gdq as Breet2") {
		t.Fatalf("output = %q, want override", out)
	}

	// Two arguments are ignored.
	out, err = execute(t, "check", "irc.example.net", "#gdq")
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	if !strings.Contains(out, "as BreetBot") {
		t.Fatalf("output = %q, want defaults", out)
	}
}

func TestCheckRejectsBadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("schedule:\n  nonsense: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config", path, "check"); err == nil {
		t.Fatal("check accepted an unknown key")
	}
}
