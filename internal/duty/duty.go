// Package duty is the Duty Scheduler: self-healing, no-next_run polling
// that interrupts the Chief's own eternal session with a templated
// prompt once a day, at a configured time. There is deliberately no
// stored "next run" timestamp — ShouldRun derives eligibility fresh from
// schedule_time and last_run every tick, so a system that was off at the
// scheduled time simply fires the moment it next polls, a corrupted
// last_run runs the duty again, and a successful run naturally postpones
// itself to tomorrow.
package duty

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
)

// ShouldRun reports whether duty is due, given the current time in the
// engine's configured zone. Only schedule_time and last_run are
// consulted — there is no other scheduling state.
func ShouldRun(d store.Duty, now time.Time) bool {
	hour, minute, ok := parseHHMM(d.ScheduleTime)
	if !ok {
		return false
	}
	todayScheduled := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.Before(todayScheduled) {
		return false
	}
	if d.LastRun == nil {
		return true
	}
	return d.LastRun.In(now.Location()).Before(todayScheduled)
}

func parseHHMM(s string) (hour, minute int, ok bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, false
	}
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// Scheduler runs the duty poll loop.
type Scheduler struct {
	store    *store.Store
	tmux     *tmux.Tmux
	bus      *eventbus.Bus
	location *time.Location
	chiefWindow string
	interval time.Duration
	logger   *slog.Logger
}

// New builds a Scheduler. chiefWindow is the tmux target the Chief runs
// in (conventionally the "chief" window).
func New(s *store.Store, tmuxDriver *tmux.Tmux, bus *eventbus.Bus, location *time.Location, chiefWindow string, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: s, tmux: tmuxDriver, bus: bus, location: location, chiefWindow: chiefWindow, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick fires at most one duty per call, matching the spec's "only one
// duty fires per tick" rule — a backlog of several overdue duties drains
// one poll interval at a time rather than all at once.
func (s *Scheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("duty: tick panicked, recovering", "panic", r)
		}
	}()

	now := time.Now().In(s.location)
	duties, err := s.store.ListDuties(true)
	if err != nil {
		s.logger.Error("duty: listing duties", "error", err)
		return
	}

	for _, d := range duties {
		if !ShouldRun(d, now) {
			continue
		}
		s.fire(d)
		return
	}
}

func (s *Scheduler) fire(d store.Duty) {
	exists, err := s.tmux.HasSession(s.chiefWindow)
	if err != nil || !exists {
		s.logger.Info("duty: chief window absent, skipping tick", "duty", d.Slug)
		return
	}

	execID := "dex-" + uuid.NewString()[:8]
	if err := s.store.CreateDutyExecution(execID, d.ID, d.Slug); err != nil {
		s.logger.Error("duty: creating execution row", "duty", d.Slug, "error", err)
		return
	}

	prompt := fmt.Sprintf("[DUTY] %s", d.PromptFile)
	if err := s.tmux.InjectMessage(s.chiefWindow, prompt, true); err != nil {
		s.logger.Error("duty: injecting prompt failed", "duty", d.Slug, "error", err)
		_ = s.store.CompleteDutyExecution(execID, "failed", err.Error())
		return
	}

	if err := s.store.UpdateDutyLastRun(d.ID, "triggered"); err != nil {
		s.logger.Error("duty: updating last_run", "duty", d.Slug, "error", err)
	}
	if err := s.store.CompleteDutyExecution(execID, "completed", ""); err != nil {
		s.logger.Error("duty: completing execution", "duty", d.Slug, "error", err)
	}
	s.bus.Publish(eventbus.EventDutyCompleted, map[string]any{
		"duty_slug": d.Slug,
		"execution_id": execID,
	})
}
