package trigger

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
)

type fakeCalendar struct {
	events []CalendarEvent
}

func (f *fakeCalendar) EventsStartingBetween(ctx context.Context, from, to time.Time) ([]CalendarEvent, error) {
	return f.events, nil
}

func newTestService(t *testing.T, cal CalendarSource) (*Service, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	svc := New(s, cal, tmux.New(), eventbus.New(), time.UTC, "chief", time.Minute, nil)
	return svc, s
}

func TestCheckCalendarSkipsWithoutLiveChiefPane(t *testing.T) {
	cal := &fakeCalendar{events: []CalendarEvent{{ID: "evt-1", Title: "Standup", StartsAt: time.Now()}}}
	svc, s := newTestService(t, cal)

	cfg, _ := json.Marshal(calendarConfig{MinutesAhead: 15, PromptTemplate: "Upcoming: {{title}}"})
	trig := store.Trigger{Slug: "calendar-lookahead", Kind: KindCalendar, Config: string(cfg), Enabled: true}
	if err := s.UpsertTrigger(trig); err != nil {
		t.Fatalf("UpsertTrigger: %v", err)
	}
	stored, err := s.GetTrigger("calendar-lookahead")
	if err != nil {
		t.Fatalf("GetTrigger: %v", err)
	}

	// No tmux chief session exists in this test process, so HasSession
	// finds no chief, the event is skipped before any injection and is
	// never marked seen — checkCalendar should not panic regardless.
	svc.checkCalendar(context.Background(), stored)
	if len(svc.seen) != 0 {
		t.Errorf("expected no entries marked seen without a live chief pane, got %d", len(svc.seen))
	}
}

func TestCalendarConfigMinutesAheadZeroWhenOmitted(t *testing.T) {
	var cfg calendarConfig
	if err := json.Unmarshal([]byte(`{"prompt_template":"x"}`), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.MinutesAhead != 0 {
		t.Fatalf("expected zero value before default applied, got %d", cfg.MinutesAhead)
	}
}
