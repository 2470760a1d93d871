package main

import (
	"strings"
	"testing"
)

func TestDBInit(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := runCmd(t, "", "db", "init", "-c", cfg, "--account", "+1 555-0100")
	if err != nil {
		t.Fatalf("db init: %v\n%s", err, out)
	}
	for _, want := range []string{"Migrated 4 tables", "Seeded 3 templates", "Registered 1 accounts"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = runCmd(t, "", "db", "init", "-c", cfg)
	if err != nil {
		t.Fatalf("second db init: %v", err)
	}
	if !strings.Contains(out, "Seeded 0 templates") {
		t.Errorf("re-init should not duplicate templates:\n%s", out)
	}

	out, err = runCmd(t, "", "session", "list", "-c", cfg)
	if err != nil {
		t.Fatalf("session list: %v", err)
	}
	if !strings.Contains(out, "+15550100") {
		t.Errorf("registered account missing from list:\n%s", out)
	}
}

func TestDBReset(t *testing.T) {
	tests := []struct {
		name    string
		stdin   string
		args    []string
		wantOut string
	}{
		{name: "declined", stdin: "no\n", wantOut: "Aborted."},
		{name: "confirmed", stdin: "yes\n", wantOut: "Dropped 4 tables"},
		{name: "skip prompt", args: []string{"--yes"}, wantOut: "Dropped 4 tables"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := writeTestConfig(t)
			if _, err := runCmd(t, "", "db", "init", "-c", cfg); err != nil {
				t.Fatalf("db init: %v", err)
			}
			args := append([]string{"db", "reset", "-c", cfg}, tt.args...)
			out, err := runCmd(t, tt.stdin, args...)
			if err != nil {
				t.Fatalf("db reset: %v", err)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("output missing %q:\n%s", tt.wantOut, out)
			}
		})
	}
}
