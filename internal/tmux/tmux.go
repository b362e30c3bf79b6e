// Package tmux wraps the tmux CLI as the substrate for every agent
// session this module manages. Every operation shells out to the tmux
// binary; there is no client library because tmux doesn't have one worth
// depending on, and the protocol surface here (new-session, send-keys,
// capture-pane, load-buffer/paste-buffer, display-message) is exactly
// the subset the original Python implementation used.
package tmux

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Sentinel errors mapped from tmux's stderr text, so callers can branch
// on errors.Is rather than parsing strings themselves.
var (
	ErrNoServer         = errors.New("tmux: no server running")
	ErrSessionExists    = errors.New("tmux: session already exists")
	ErrSessionNotFound  = errors.New("tmux: session not found")
)

// Tmux is a thin wrapper around the tmux binary. The zero value is
// usable; it has no state of its own beyond the binary name.
type Tmux struct {
	bin string
}

// New returns a Tmux driver using the "tmux" binary on PATH.
func New() *Tmux {
	return &Tmux{bin: "tmux"}
}

func (t *Tmux) binary() string {
	if t.bin == "" {
		return "tmux"
	}
	return t.bin
}

func (t *Tmux) run(args ...string) (string, error) {
	cmd := exec.Command(t.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), wrapError(stderr.String(), err)
	}
	return stdout.String(), nil
}

func wrapError(stderr string, err error) error {
	switch {
	case strings.Contains(stderr, "no server running"):
		return ErrNoServer
	case strings.Contains(stderr, "duplicate session"):
		return ErrSessionExists
	case strings.Contains(stderr, "session not found"), strings.Contains(stderr, "can't find session"):
		return ErrSessionNotFound
	case stderr != "":
		return fmt.Errorf("%s: %w", strings.TrimSpace(stderr), err)
	default:
		return err
	}
}

// NewSession creates a bare tmux session with a shell, in workDir.
func (t *Tmux) NewSession(name, workDir string) error {
	_, err := t.run("new-session", "-d", "-s", name, "-c", workDir)
	return err
}

// NewSessionWithCommand creates a session whose pane directly execs
// command as its initial process, instead of starting a shell and
// send-keys-ing the command into it afterward. Running the command as
// the pane's own process sidesteps the race where send-keys arrives
// before the shell has finished initializing and is silently swallowed
// or interpreted as a different command.
func (t *Tmux) NewSessionWithCommand(name, workDir, command string) error {
	_, err := t.run("new-session", "-d", "-s", name, "-c", workDir, command)
	return err
}

// HasSession reports whether a session with this exact name exists.
// The "=" prefix requests an exact match rather than tmux's fuzzy
// session-name matching, so "chief" doesn't also match "chief-2".
func (t *Tmux) HasSession(name string) (bool, error) {
	_, err := t.run("has-session", "-t", "="+name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if errors.Is(err, ErrNoServer) {
		return false, nil
	}
	return false, err
}

// KillSession terminates a session and everything running in it.
func (t *Tmux) KillSession(name string) error {
	_, err := t.run("kill-session", "-t", name)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// RespawnPane replaces the process running in a pane's first window
// with a fresh invocation of command, without tearing down and
// recreating the tmux session itself — this is how the Handoff Pipeline
// replaces a session's agent process while keeping the same pane and
// scrollback history available for a moment longer.
func (t *Tmux) RespawnPane(name, workDir, command string) error {
	_, err := t.run("respawn-pane", "-k", "-t", name, "-c", workDir, command)
	return err
}

// ListSessionIDs returns every live tmux session name.
func (t *Tmux) ListSessionIDs() ([]string, error) {
	out, err := t.run("list-sessions", "-F", "#{session_name}")
	if errors.Is(err, ErrNoServer) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// GetPaneCommand returns the name of the process currently running in
// the session's active pane (e.g. "zsh", "node", "claude").
func (t *Tmux) GetPaneCommand(name string) (string, error) {
	out, err := t.run("display-message", "-p", "-t", name, "#{pane_current_command}")
	return strings.TrimSpace(out), err
}

// GetPaneWorkDir returns the pane's current working directory.
func (t *Tmux) GetPaneWorkDir(name string) (string, error) {
	out, err := t.run("display-message", "-p", "-t", name, "#{pane_current_path}")
	return strings.TrimSpace(out), err
}

// GetPaneTitle returns the pane's title, which carries the agent CLI's
// "cute message" even once the corresponding line has scrolled out of
// the captured buffer.
func (t *Tmux) GetPaneTitle(name string) (string, error) {
	out, err := t.run("display-message", "-p", "-t", name, "#{pane_title}")
	return strings.TrimSpace(out), err
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+`)

// IsAgentRunning reports whether the pane's current command looks like a
// live agent process rather than an idle shell — used to distinguish a
// healthy session from a zombie (tmux session alive, agent process dead).
func (t *Tmux) IsAgentRunning(name string) bool {
	cmd, err := t.GetPaneCommand(name)
	if err != nil {
		return false
	}
	switch cmd {
	case "", "bash", "zsh", "sh", "fish":
		return false
	}
	if cmd == "node" || cmd == "claude" {
		return true
	}
	return versionPattern.MatchString(cmd)
}

// EnsureSessionFresh guarantees a healthy session exists at name,
// recreating it from scratch if it is absent or a zombie. It reports
// whether it had to (re)create the session.
func (t *Tmux) EnsureSessionFresh(name, workDir, command string) (created bool, err error) {
	exists, err := t.HasSession(name)
	if err != nil {
		return false, err
	}
	if exists {
		if t.IsAgentRunning(name) {
			return false, nil
		}
		if err := t.KillSession(name); err != nil {
			return false, fmt.Errorf("killing zombie session: %w", err)
		}
	}
	if err := t.NewSessionWithCommand(name, workDir, command); err != nil {
		return false, fmt.Errorf("creating session: %w", err)
	}
	return true, nil
}

// SendKeysRaw sends one or more literal key names (e.g. "Enter", "C-c")
// without the literal-text flag, for control sequences.
func (t *Tmux) SendKeysRaw(name string, keys ...string) error {
	args := append([]string{"send-keys", "-t", name}, keys...)
	_, err := t.run(args...)
	return err
}

// SendKeys types text into a session literally and submits it with a
// separate Enter key-press after a short delay. Sending Enter as part of
// the same send-keys call as the text races the target program's input
// handling for long lines; a short separate delay avoids that.
func (t *Tmux) SendKeys(name, text string) error {
	if _, err := t.run("send-keys", "-t", name, "-l", text); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return t.SendKeysRaw(name, "Enter")
}

// NudgeSession sends a short message and retries the submitting Enter a
// few times with linear backoff, since a busy pane can swallow the first
// Enter while it's still rendering the literal text.
func (t *Tmux) NudgeSession(name, message string) error {
	if _, err := t.run("send-keys", "-t", name, "-l", message); err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := t.SendKeysRaw(name, "Enter"); err != nil {
			lastErr = err
			time.Sleep(time.Duration(200*(attempt+1)) * time.Millisecond)
			continue
		}
		return nil
	}
	return lastErr
}

// SendEscape interrupts whatever the pane is doing, used before
// injecting a context warning so it isn't appended mid-response.
func (t *Tmux) SendEscape(name string) error {
	return t.SendKeysRaw(name, "Escape")
}

// CapturePane returns the visible contents of a pane.
func (t *Tmux) CapturePane(name string) (string, error) {
	return t.run("capture-pane", "-p", "-t", name)
}

// CapturePaneLines returns the last n lines of a pane's history.
func (t *Tmux) CapturePaneLines(name string, n int) (string, error) {
	return t.run("capture-pane", "-p", "-t", name, "-S", fmt.Sprintf("-%d", n))
}

// DisplayMessage shows a transient message in the tmux status line
// without disturbing the pane's input — used for low-priority notices
// that don't need to interrupt the agent (e.g. "mission queued").
func (t *Tmux) DisplayMessage(name, message string, duration time.Duration) error {
	_, err := t.run("display-message", "-t", name, "-d", fmt.Sprintf("%d", duration.Milliseconds()), message)
	return err
}

// AcceptBypassPermissionsWarning detects and dismisses the agent CLI's
// one-time "bypass permissions mode" confirmation dialog, which otherwise
// blocks the very first prompt of a freshly spawned session.
func (t *Tmux) AcceptBypassPermissionsWarning(name string) error {
	out, err := t.CapturePane(name)
	if err != nil {
		return err
	}
	if !strings.Contains(out, "Bypass Permissions mode") {
		return nil
	}
	if err := t.SendKeysRaw(name, "Down"); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return t.SendKeysRaw(name, "Enter")
}

// SetEnvironment sets a tmux session environment variable. This only
// affects panes created after the call, which is why callers also
// export the same variables directly in the session's startup command.
func (t *Tmux) SetEnvironment(name, key, value string) error {
	_, err := t.run("set-environment", "-t", name, key, value)
	return err
}

// WaitForCommand polls until the pane's current command is not one of
// excludeCommands (e.g. waiting for a shell to hand off to the agent
// process it just exec'd).
func (t *Tmux) WaitForCommand(name string, excludeCommands []string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		cmd, err := t.GetPaneCommand(name)
		if err == nil {
			excluded := false
			for _, exc := range excludeCommands {
				if cmd == exc {
					excluded = true
					break
				}
			}
			if !excluded && cmd != "" {
				return nil
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for command to start in %s", name)
}
