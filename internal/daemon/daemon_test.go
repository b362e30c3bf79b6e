package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/spartypkp/townctl/internal/config"
)

func TestNoCalendarReturnsNoEvents(t *testing.T) {
	events, err := (noCalendar{}).EventsStartingBetween(context.Background(), time.Now(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("EventsStartingBetween: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestAgentCommandPrefersInlineOverPath(t *testing.T) {
	role := config.Role{Name: "specialist"}
	got := agentCommand(role, "/tmp/handoff.md", "inline summary")
	if got != `claude "inline summary"` {
		t.Errorf("got %q", got)
	}
}

func TestAgentCommandFallsBackToPromptFile(t *testing.T) {
	role := config.Role{Name: "specialist"}
	got := agentCommand(role, "/tmp/handoff.md", "")
	if got != `claude --prompt-file "/tmp/handoff.md"` {
		t.Errorf("got %q", got)
	}
}

func TestAgentCommandPlainWhenNoHandoff(t *testing.T) {
	role := config.Role{Name: "chief"}
	if got := agentCommand(role, "", ""); got != "claude" {
		t.Errorf("got %q", got)
	}
}
