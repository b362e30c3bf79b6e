package session

import (
	"path/filepath"
	"testing"

	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, eventbus.New())
}

func TestRegisterChiefDefaultsConversationID(t *testing.T) {
	r := newTestRegistry(t)
	sess, err := r.Register(RegisterParams{SessionID: "sess0001", Role: "chief", Mode: "interactive", Pane: "%1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sess.ConversationID != store.ChiefConversationID {
		t.Errorf("ConversationID = %q, want %q", sess.ConversationID, store.ChiefConversationID)
	}
	if sess.CurrentState != store.StateIdle {
		t.Errorf("CurrentState = %q, want idle", sess.CurrentState)
	}
}

func TestRegisterReviveClearsEndedAt(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Register(RegisterParams{SessionID: "sess0002", Role: "specialist", Pane: "%2"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.End("sess0002", "user_requested"); err != nil {
		t.Fatalf("End: %v", err)
	}

	revived, err := r.Register(RegisterParams{SessionID: "sess0002", Role: "specialist", Pane: "%2"})
	if err != nil {
		t.Fatalf("revive Register: %v", err)
	}
	if !revived.IsLive() {
		t.Error("expected revived session to be live")
	}
	if revived.CurrentState != store.StateIdle {
		t.Errorf("CurrentState = %q, want idle after revive", revived.CurrentState)
	}
}

func TestReconcilePaneEndsPriorClaimant(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Register(RegisterParams{SessionID: "sess0003", Role: "specialist", Pane: "%3"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := r.ReconcilePane("%3", RegisterParams{SessionID: "sess0004", Role: "specialist"}); err != nil {
		t.Fatalf("ReconcilePane: %v", err)
	}

	prior, err := r.Get("sess0003")
	if err != nil {
		t.Fatalf("Get prior: %v", err)
	}
	if prior.IsLive() {
		t.Error("expected prior claimant to be ended")
	}
	if prior.EndReason != "pane_reused" {
		t.Errorf("EndReason = %q, want pane_reused", prior.EndReason)
	}

	newSess, err := r.GetByPane("%3")
	if err != nil {
		t.Fatalf("GetByPane: %v", err)
	}
	if newSess.ID != "sess0004" {
		t.Errorf("GetByPane returned %q, want sess0004", newSess.ID)
	}
}

func TestMarkIdleAndActive(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Register(RegisterParams{SessionID: "sess0005", Role: "specialist", Pane: "%5"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.MarkActive("sess0005"); err != nil {
		t.Fatalf("MarkActive: %v", err)
	}
	sess, _ := r.Get("sess0005")
	if sess.CurrentState != store.StateActive {
		t.Errorf("CurrentState = %q, want active", sess.CurrentState)
	}
	if err := r.MarkIdle("sess0005"); err != nil {
		t.Fatalf("MarkIdle: %v", err)
	}
	sess, _ = r.Get("sess0005")
	if sess.CurrentState != store.StateIdle {
		t.Errorf("CurrentState = %q, want idle", sess.CurrentState)
	}
}

func TestAtMostOneLiveChiefConversation(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.Register(RegisterParams{SessionID: "chief001", Role: "chief"}); err != nil {
		t.Fatalf("Register chief001: %v", err)
	}
	chief, err := r.Chief()
	if err != nil {
		t.Fatalf("Chief: %v", err)
	}
	if chief.ID != "chief001" {
		t.Errorf("Chief().ID = %q, want chief001", chief.ID)
	}
}
