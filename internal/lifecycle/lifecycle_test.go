package lifecycle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spartypkp/townctl/internal/config"
	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/handoff"
	"github.com/spartypkp/townctl/internal/session"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
)

type fakeHandoffSpawner struct{}

func (fakeHandoffSpawner) Spawn(ctx context.Context, req handoff.SpawnRequest) (string, error) {
	return "", nil
}

type fakeHandoffSummarizer struct{}

func (fakeHandoffSummarizer) Summarize(ctx context.Context, req handoff.SummarizeRequest) error {
	return nil
}

func newTestTools(t *testing.T) (*Tools, *store.Store, *session.Registry) {
	t.Helper()
	root := t.TempDir()
	s, err := store.Open(filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	bus := eventbus.New()
	sessions := session.New(s, bus)
	tmuxDriver := tmux.New()
	layout := config.NewLayout(root)
	pipeline := handoff.New(s, sessions, tmuxDriver, bus, fakeHandoffSpawner{}, fakeHandoffSummarizer{}, layout, 0, nil)
	return New(sessions, pipeline, tmuxDriver), s, sessions
}

func TestStatusSetsTextAndMarksActive(t *testing.T) {
	tools, s, sessions := newTestTools(t)
	sess, err := sessions.Register(session.RegisterParams{SessionID: "sess0001", Role: "specialist", Pane: "%1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := sessions.MarkIdle(sess.ID); err != nil {
		t.Fatalf("MarkIdle: %v", err)
	}

	if err := tools.Status(sess.ID, "reviewing diff"); err != nil {
		t.Fatalf("Status: %v", err)
	}

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.StatusText != "reviewing diff" {
		t.Errorf("StatusText = %q, want %q", got.StatusText, "reviewing diff")
	}
	if got.CurrentState != store.StateActive {
		t.Errorf("CurrentState = %q, want %q", got.CurrentState, store.StateActive)
	}
}

func TestDoneEndsSessionWithoutPane(t *testing.T) {
	tools, s, sessions := newTestTools(t)
	sess, err := sessions.Register(session.RegisterParams{SessionID: "sess0002", Role: "specialist"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := tools.Done(sess, "all done", ""); err != nil {
		t.Fatalf("Done: %v", err)
	}

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.EndedAt == nil {
		t.Fatal("expected EndedAt to be set")
	}
	if got.EndReason != "done" {
		t.Errorf("EndReason = %q, want %q", got.EndReason, "done")
	}
}

func TestResetDefaultsReasonAndCreatesHandoff(t *testing.T) {
	tools, _, sessions := newTestTools(t)
	sess, err := sessions.Register(session.RegisterParams{SessionID: "sess0003", Role: "specialist", Pane: "%3"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	h, err := tools.Reset(sess, "summary text", "", "")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if h.Reason != handoff.ReasonContextLow {
		t.Errorf("Reason = %q, want %q", h.Reason, handoff.ReasonContextLow)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abcdefghij"); got != "abcdefgh" {
		t.Errorf("shortID long = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID short = %q", got)
	}
}
