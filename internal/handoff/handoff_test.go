package handoff

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spartypkp/townctl/internal/config"
	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/session"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
)

type fakeSpawner struct {
	pane string
	err  error
}

func (f *fakeSpawner) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.pane, nil
}

type fakeSummarizer struct {
	calls []SummarizeRequest
}

func (f *fakeSummarizer) Summarize(ctx context.Context, req SummarizeRequest) error {
	f.calls = append(f.calls, req)
	return os.WriteFile(req.HandoffPath, []byte("filled in"), 0644)
}

func newTestPipeline(t *testing.T, spawner Spawner) (*Pipeline, *store.Store, *session.Registry) {
	t.Helper()
	return newTestPipelineWithSummarizer(t, spawner, &fakeSummarizer{})
}

func newTestPipelineWithSummarizer(t *testing.T, spawner Spawner, summarizer Summarizer) (*Pipeline, *store.Store, *session.Registry) {
	t.Helper()
	root := t.TempDir()
	s, err := store.Open(filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	bus := eventbus.New()
	sessions := session.New(s, bus)
	layout := config.NewLayout(root)
	p := New(s, sessions, tmux.New(), bus, spawner, summarizer, layout, 10*time.Millisecond, nil)
	return p, s, sessions
}

func TestRequestIsIdempotentWhileInFlight(t *testing.T) {
	p, s, sessions := newTestPipeline(t, &fakeSpawner{pane: "%9"})
	dying, err := sessions.Register(session.RegisterParams{SessionID: "sess0001", Role: "specialist", Pane: "%1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	h1, err := p.Request(dying, ReasonContextLow, "", "summary text")
	if err != nil {
		t.Fatalf("first Request: %v", err)
	}
	h2, err := p.Request(dying, ReasonContextLow, "", "summary text")
	if err != nil {
		t.Fatalf("second Request: %v", err)
	}
	if h1.ID != h2.ID {
		t.Errorf("expected idempotent handoff id, got %q vs %q", h1.ID, h2.ID)
	}

	_ = s // silence unused if execute() races; execution correctness covered by completion test below
}

func TestExecuteCompletesOnSuccessfulSpawn(t *testing.T) {
	p, s, sessions := newTestPipeline(t, &fakeSpawner{pane: "%9"})
	dying, err := sessions.Register(session.RegisterParams{SessionID: "sess0002", Role: "specialist", Pane: "%2", ConversationID: "conv-a"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	h, err := p.Request(dying, ReasonContextLow, "", "summary text")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.GetHandoff(h.ID)
		if err == nil && got.Status == store.HandoffStatusComplete {
			if got.NewSessionID == "" {
				t.Fatal("expected NewSessionID to be set on completion")
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("handoff did not reach complete status in time")
}

func TestExecuteRunsSummarizerWhenNoSummarySupplied(t *testing.T) {
	summarizer := &fakeSummarizer{}
	p, s, sessions := newTestPipelineWithSummarizer(t, &fakeSpawner{pane: "%9"}, summarizer)
	dying, err := sessions.Register(session.RegisterParams{SessionID: "sess0004", Role: "specialist", Pane: "%4", ConversationID: "conv-b"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	h, err := p.Request(dying, ReasonEmergencyFull, "", "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !h.NeedsSummary {
		t.Fatal("expected NeedsSummary to be true when no path or inline summary is supplied")
	}
	if h.HandoffPath == "" {
		t.Fatal("expected a handoff template path to be pre-created")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.GetHandoff(h.ID)
		if err == nil && got.Status == store.HandoffStatusComplete {
			if len(summarizer.calls) != 1 {
				t.Fatalf("expected summarizer to be called once, got %d", len(summarizer.calls))
			}
			if summarizer.calls[0].HandoffPath != h.HandoffPath {
				t.Errorf("summarizer HandoffPath = %q, want %q", summarizer.calls[0].HandoffPath, h.HandoffPath)
			}
			if summarizer.calls[0].ConversationID != "conv-b" {
				t.Errorf("summarizer ConversationID = %q, want %q", summarizer.calls[0].ConversationID, "conv-b")
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("handoff did not reach complete status in time")
}

func TestExecuteFailsWhenSpawnErrors(t *testing.T) {
	p, s, sessions := newTestPipeline(t, &fakeSpawner{err: context.DeadlineExceeded})
	dying, err := sessions.Register(session.RegisterParams{SessionID: "sess0003", Role: "specialist", Pane: "%3"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	h, err := p.Request(dying, ReasonEmergencyFull, "", "summary text")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.GetHandoff(h.ID)
		if err == nil && got.Status == store.HandoffStatusFailed {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("handoff did not reach failed status in time")
}
