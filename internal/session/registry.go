// Package session is the Session Registry: the sole mutator of the
// sessions table. It wraps the storage layer's raw CRUD with the
// lifecycle semantics the rest of the module depends on — revive-on-
// conflict registration, pane reconciliation, idle/active transitions,
// and ending a session — and publishes the corresponding events onto the
// event bus. The status TUI reads sessions from storage on a timer and the
// Reply Auto-Injector is called from the Watcher; neither subscribes to
// these events.
package session

import (
	"fmt"

	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/store"
)

// Registry is the Session Registry.
type Registry struct {
	store *store.Store
	bus   *eventbus.Bus
}

// New builds a Registry over an open store and event bus.
func New(s *store.Store, bus *eventbus.Bus) *Registry {
	return &Registry{store: s, bus: bus}
}

// RegisterParams mirrors store.RegisterParams; kept as a distinct type so
// callers outside the store package depend only on this package's surface.
type RegisterParams = store.RegisterParams

// Register upserts a session row. On conflict the row is revived: cleared
// ended_at/end_reason, current_state reset to idle, and provenance
// refreshed from any non-empty fields in params while empty fields are
// left untouched. Chief sessions default to the reserved, eternal
// "chief" conversation id unless the caller overrides it.
func (r *Registry) Register(p RegisterParams) (store.Session, error) {
	if err := r.store.Register(p); err != nil {
		return store.Session{}, fmt.Errorf("registering session %s: %w", p.SessionID, err)
	}
	sess, err := r.store.GetSession(p.SessionID)
	if err != nil {
		return store.Session{}, err
	}
	r.bus.Publish(eventbus.EventSessionStarted, map[string]any{
		"session_id": sess.ID,
		"role":       sess.Role,
		"mode":       sess.Mode,
	})
	return sess, nil
}

// ReconcilePane atomically ends any prior live session claiming pane with
// end_reason="pane_reused", then registers the new occupant. This is the
// path a freshly (re)spawned pane's lifecycle hook takes, so a killed and
// recreated pane never leaves two live rows pointing at the same handle.
func (r *Registry) ReconcilePane(pane string, p RegisterParams) (store.Session, error) {
	if err := r.store.ReconcilePane(pane); err != nil {
		return store.Session{}, fmt.Errorf("reconciling pane %s: %w", pane, err)
	}
	p.Pane = pane
	return r.Register(p)
}

// MarkIdle transitions a session to idle and publishes session.state(idle).
func (r *Registry) MarkIdle(sessionID string) error {
	if err := r.store.MarkIdle(sessionID); err != nil {
		return err
	}
	r.bus.Publish("session.state", map[string]any{"session_id": sessionID, "state": store.StateIdle})
	return nil
}

// MarkActive transitions a session to active.
func (r *Registry) MarkActive(sessionID string) error {
	if err := r.store.MarkActive(sessionID); err != nil {
		return err
	}
	r.bus.Publish("session.state", map[string]any{"session_id": sessionID, "state": store.StateActive})
	return nil
}

// End terminates a session and publishes session.ended.
func (r *Registry) End(sessionID, reason string) error {
	if err := r.store.End(sessionID, reason); err != nil {
		return err
	}
	r.bus.Publish(eventbus.EventSessionEnded, map[string]any{
		"session_id": sessionID,
		"reason":     reason,
	})
	return nil
}

// GetByPane resolves "who am I" for a lifecycle tool invoked inside a
// pane: the most recent live session claiming that pane.
func (r *Registry) GetByPane(pane string) (store.Session, error) {
	return r.store.GetByPane(pane)
}

// Get fetches a session by id.
func (r *Registry) Get(sessionID string) (store.Session, error) {
	return r.store.GetSession(sessionID)
}

// ListLive returns every session with no ended_at.
func (r *Registry) ListLive() ([]store.Session, error) {
	return r.store.ListLiveSessions()
}

// ListLiveByRole filters ListLive by role.
func (r *Registry) ListLiveByRole(role string) ([]store.Session, error) {
	return r.store.ListLiveSessionsByRole(role)
}

// Chief returns the sole live session for the reserved "chief"
// conversation id, if any is currently running.
func (r *Registry) Chief() (store.Session, error) {
	return r.store.GetLiveChiefConversation()
}

// Subscribe records that chiefSessionID wants sessionID's replies
// auto-injected, for the Reply Auto-Injector to read.
func (r *Registry) Subscribe(sessionID, chiefSessionID string) error {
	return r.store.SetSubscribedBy(sessionID, chiefSessionID)
}

// SetContextWarningLevel records the highest percent-used threshold a
// session has already been warned about.
func (r *Registry) SetContextWarningLevel(sessionID string, level int) error {
	return r.store.SetContextWarningLevel(sessionID, level)
}

// SetConversationID updates a session's lineage-carrying conversation id —
// used when a handoff's successor inherits the dying session's identity.
func (r *Registry) SetConversationID(sessionID, conversationID string) error {
	return r.store.SetConversationID(sessionID, conversationID)
}

// SetTmuxPane records the pane backing a session once it has been spawned.
func (r *Registry) SetTmuxPane(sessionID, pane string) error {
	return r.store.SetTmuxPane(sessionID, pane)
}

// SetStatusText records the display-only status line a session reported
// via its status tool call.
func (r *Registry) SetStatusText(sessionID, text string) error {
	return r.store.SetStatusText(sessionID, text)
}
