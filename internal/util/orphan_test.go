//go:build !windows

package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseEtime(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		// MM:SS format
		{"00:30", 30, false},
		{"01:00", 60, false},
		{"01:23", 83, false},
		{"59:59", 3599, false},

		// HH:MM:SS format
		{"00:01:00", 60, false},
		{"01:00:00", 3600, false},
		{"01:02:03", 3723, false},
		{"23:59:59", 86399, false},

		// DD-HH:MM:SS format
		{"1-00:00:00", 86400, false},
		{"2-01:02:03", 176523, false},
		{"7-12:30:45", 649845, false},

		// Edge cases
		{"00:00", 0, false},
		{"0-00:00:00", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseEtime(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseEtime(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("parseEtime(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindOrphanedClaudeProcesses(t *testing.T) {
	// This is a live test against the current system's process table. It
	// should not fail — just return whatever orphans exist (likely none
	// in CI).
	orphans, err := FindOrphanedClaudeProcesses()
	if err != nil {
		t.Fatalf("FindOrphanedClaudeProcesses() error = %v", err)
	}

	t.Logf("found %d orphaned claude processes", len(orphans))
	for _, o := range orphans {
		t.Logf("  PID %d: %s", o.PID, o.Cmd)
	}
}

func TestGetProcessCwd(t *testing.T) {
	cwd := getProcessCwd(os.Getpid())
	if cwd == "" {
		t.Fatal("getProcessCwd(self) returned empty string")
	}
	expected, err := os.Getwd()
	if err != nil {
		t.Fatalf("os.Getwd() error: %v", err)
	}
	if cwd != expected {
		t.Errorf("getProcessCwd(self) = %q, want %q", cwd, expected)
	}
}

func TestIsInTownWorkspace(t *testing.T) {
	// NOTE: this test uses os.Chdir on the process-global cwd. Do NOT add
	// t.Parallel() here or to any test in this file -- concurrent tests
	// sharing the same process would race on the working directory.

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(origDir)

	// Simulate a town root: a directory with engine.toml at its root.
	tmpDir := t.TempDir()
	engineToml := filepath.Join(tmpDir, "engine.toml")
	if err := os.WriteFile(engineToml, []byte(`tmux_session = "chief"`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Move to a non-workspace temp dir first, so the "not in workspace"
	// check works even when tests run from inside a real town root.
	nonWorkspaceDir := t.TempDir()
	if err := os.Chdir(nonWorkspaceDir); err != nil {
		t.Fatal(err)
	}
	if isInTownWorkspace(os.Getpid()) {
		t.Error("isInTownWorkspace(self) = true, want false (not in a town root)")
	}

	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	if !isInTownWorkspace(os.Getpid()) {
		t.Error("isInTownWorkspace(self) = false, want true (in town root)")
	}

	// Test from a subdirectory of the workspace.
	subDir := filepath.Join(tmpDir, "conversations", "sess-test")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(subDir); err != nil {
		t.Fatal(err)
	}
	if !isInTownWorkspace(os.Getpid()) {
		t.Error("isInTownWorkspace(self) = false, want true (in town root subdir)")
	}
}

func TestFindOrphanedClaudeProcessesIgnoresTerminalProcesses(t *testing.T) {
	// We can't easily mock ps output, but a live run with a controlling
	// terminal should never flag the test process itself.
	orphans, err := FindOrphanedClaudeProcesses()
	if err != nil {
		t.Fatalf("FindOrphanedClaudeProcesses() error = %v", err)
	}
	for _, o := range orphans {
		if o.PID == os.Getpid() {
			t.Errorf("test process %d flagged as orphan", o.PID)
		}
		t.Logf("orphan found: PID %d (%s)", o.PID, o.Cmd)
	}
}
