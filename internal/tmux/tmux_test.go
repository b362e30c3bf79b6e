package tmux

import (
	"errors"
	"testing"
)

func TestWrapErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		stderr string
		want   error
	}{
		{"no server running on /tmp/tmux-0/default", ErrNoServer},
		{"duplicate session: chief", ErrSessionExists},
		{"can't find session: chief", ErrSessionNotFound},
	}
	for _, c := range cases {
		got := wrapError(c.stderr, errors.New("exit status 1"))
		if !errors.Is(got, c.want) {
			t.Errorf("wrapError(%q) = %v, want %v", c.stderr, got, c.want)
		}
	}
}

func TestWrapErrorPassesThroughUnknownStderr(t *testing.T) {
	base := errors.New("exit status 1")
	got := wrapError("some other tmux failure", base)
	if got == nil {
		t.Fatal("expected non-nil error")
	}
}

func TestIsAgentRunningTreatsShellsAsIdle(t *testing.T) {
	// IsAgentRunning shells out to tmux, so we only exercise the pure
	// classification helper here via a fake pane command table.
	for _, shell := range []string{"bash", "zsh", "sh", "fish", ""} {
		if versionPattern.MatchString(shell) {
			t.Errorf("shell name %q unexpectedly matches version pattern", shell)
		}
	}
	if !versionPattern.MatchString("2.0.76") {
		t.Error("expected version-like pane command to match versionPattern")
	}
}
