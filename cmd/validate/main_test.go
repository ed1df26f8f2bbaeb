package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validScenario = `id: foghorn
name: Foghorn
story: A harbor that never sleeps.
quests:
  - id: first_light
    title: First Light
    trigger:
      type: consecutive_days
      kind: mission_completed
      attribute: health
      threshold: 3
    narrative:
      prompt: The lamp flickers on.
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_ValidDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "foghorn.yaml", validScenario)

	var stdout, stderr bytes.Buffer
	code := run([]string{"--dir", dir, "-v"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "3 consecutive days of mission_completed") {
		t.Errorf("expected trigger description, got %q", out)
	}
	if !strings.Contains(out, "no fallback text") || !strings.Contains(out, "no reward") {
		t.Errorf("expected warnings, got %q", out)
	}
}

func TestRun_Failures(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "Bad-Name.yaml", validScenario)
	broken := writeFile(t, dir, "broken.json", `{"id": "broken", "name": "Broken", "quests": []}`)
	dupA := writeFile(t, dir, "dup_a.yaml", validScenario)
	dupB := writeFile(t, dir, "dup_b.yaml", validScenario)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"bad filename", []string{bad}, 1},
		{"no quests", []string{broken}, 1},
		{"duplicate ids", []string{dupA, dupB}, 1},
		{"no input", nil, 2},
		{"missing dir", []string{"--dir", filepath.Join(dir, "nope")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.args, &stdout, &stderr); code != tt.code {
				t.Errorf("expected exit %d, got %d (stderr %q)", tt.code, code, stderr.String())
			}
		})
	}
}
