// Package lifecycle is the tool surface the agents themselves call:
// status, done, and reset. Each is a thin orchestration over the Session
// Registry and the Handoff Pipeline — this package owns no persistent
// state of its own.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/spartypkp/townctl/internal/handoff"
	"github.com/spartypkp/townctl/internal/session"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
)

// Tools glues the lifecycle primitives together for a single running
// agent process's tool handlers.
type Tools struct {
	sessions *session.Registry
	handoffs *handoff.Pipeline
	tmux     *tmux.Tmux
}

// New builds a Tools handle.
func New(sessions *session.Registry, pipeline *handoff.Pipeline, tmuxDriver *tmux.Tmux) *Tools {
	return &Tools{sessions: sessions, handoffs: pipeline, tmux: tmuxDriver}
}

// Status sets the session's status_text (display-only), refreshes
// last_seen_at, and publishes session.state(active).
func (t *Tools) Status(sessionID, text string) error {
	if err := t.sessions.SetStatusText(sessionID, text); err != nil {
		return fmt.Errorf("setting status for %s: %w", sessionID, err)
	}
	return t.sessions.MarkActive(sessionID)
}

// Done performs a clean close for a specialist: end the session via the
// Registry, optionally notify the Chief through the Tmux Driver's
// overlay mode (non-destructive to the Chief's input buffer), then kill
// its own pane.
func (t *Tools) Done(sess store.Session, summary string, notifyChiefPane string) error {
	if err := t.sessions.End(sess.ID, "done"); err != nil {
		return fmt.Errorf("ending session %s: %w", sess.ID, err)
	}

	if notifyChiefPane != "" {
		msg := fmt.Sprintf("%s (%s) finished: %s", sess.Role, shortID(sess.ID), summary)
		_ = t.tmux.DisplayMessage(notifyChiefPane, msg, 5*time.Second)
	}

	if sess.TmuxPane != "" {
		return t.tmux.KillSession(sess.TmuxPane)
	}
	return nil
}

// Reset creates a pending handoff (reason "context_low" unless
// overridden) and launches the out-of-process executor. The caller's
// session keeps running until the executor kills it — the agent is told
// to wind down immediately, not to block waiting for the kill.
func (t *Tools) Reset(sess store.Session, summary, handoffPath, reason string) (store.Handoff, error) {
	if reason == "" {
		reason = handoff.ReasonContextLow
	}
	return t.handoffs.Request(sess, reason, handoffPath, summary)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
