// Package trigger is the Trigger Service: scheduled prompts (the same
// self-healing time-of-day evaluator the Duty Scheduler uses, but firing
// lighter nudges rather than full skill invocations) and calendar-derived
// prompts (a lookahead window against an external calendar source).
package trigger

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/spartypkp/townctl/internal/duty"
	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
)

// Trigger kinds.
const (
	KindScheduled = "scheduled"
	KindCalendar  = "calendar"
)

// CalendarEvent is one upcoming event returned by a CalendarSource.
type CalendarEvent struct {
	ID        string
	Title     string
	StartsAt  time.Time
}

// CalendarSource is the external collaborator this module queries for
// upcoming events; it is never implemented here, only consumed — the
// daemon wires in whatever OS calendar integration is available.
type CalendarSource interface {
	EventsStartingBetween(ctx context.Context, from, to time.Time) ([]CalendarEvent, error)
}

// scheduledConfig is the JSON shape of a Trigger.Config for KindScheduled.
type scheduledConfig struct {
	ScheduleTime string `json:"schedule_time"`
	Prompt       string `json:"prompt"`
}

// calendarConfig is the JSON shape of a Trigger.Config for KindCalendar.
type calendarConfig struct {
	MinutesAhead   int    `json:"minutes_ahead"`
	PromptTemplate string `json:"prompt_template"` // "{{title}}" substituted
}

// Service runs the trigger poll loop.
type Service struct {
	store       *store.Store
	calendar    CalendarSource
	tmux        *tmux.Tmux
	bus         *eventbus.Bus
	location    *time.Location
	chiefWindow string
	interval    time.Duration
	logger      *slog.Logger

	seen        map[string]time.Time // per-process dedup set, cleared hourly
	seenResetAt time.Time
}

// New builds a Service. calendar may be nil if no calendar integration is
// configured; calendar triggers are then silently skipped.
func New(s *store.Store, calendar CalendarSource, tmuxDriver *tmux.Tmux, bus *eventbus.Bus, location *time.Location, chiefWindow string, interval time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store: s, calendar: calendar, tmux: tmuxDriver, bus: bus, location: location,
		chiefWindow: chiefWindow, interval: interval, logger: logger,
		seen: make(map[string]time.Time), seenResetAt: time.Now(),
	}
}

// Run polls until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.tick(ctx)
		}
	}
}

func (svc *Service) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			svc.logger.Error("trigger: tick panicked, recovering", "panic", r)
		}
	}()

	if time.Since(svc.seenResetAt) > time.Hour {
		svc.seen = make(map[string]time.Time)
		svc.seenResetAt = time.Now()
	}

	triggers, err := svc.store.ListTriggers(true)
	if err != nil {
		svc.logger.Error("trigger: listing triggers", "error", err)
		return
	}

	for _, t := range triggers {
		switch t.Kind {
		case KindScheduled:
			svc.checkScheduled(t)
		case KindCalendar:
			svc.checkCalendar(ctx, t)
		}
	}
}

func (svc *Service) checkScheduled(t store.Trigger) {
	var cfg scheduledConfig
	if err := json.Unmarshal([]byte(t.Config), &cfg); err != nil {
		svc.logger.Warn("trigger: bad scheduled config", "slug", t.Slug, "error", err)
		return
	}

	now := time.Now().In(svc.location)
	fakeDuty := asShouldRunDuty(cfg.ScheduleTime, t.LastFiredAt)
	if !duty.ShouldRun(fakeDuty, now) {
		return
	}

	exists, err := svc.tmux.HasSession(svc.chiefWindow)
	if err != nil || !exists {
		return
	}
	if err := svc.tmux.InjectMessage(svc.chiefWindow, cfg.Prompt, true); err != nil {
		svc.logger.Error("trigger: injecting scheduled prompt failed", "slug", t.Slug, "error", err)
		return
	}
	if err := svc.store.MarkTriggerFired(t.Slug, "", time.Now()); err != nil {
		svc.logger.Error("trigger: recording fire", "slug", t.Slug, "error", err)
	}
	svc.bus.Publish(eventbus.EventTriggerFired, map[string]any{"trigger_slug": t.Slug, "kind": KindScheduled})
}

func asShouldRunDuty(scheduleTime string, lastFired *time.Time) store.Duty {
	return store.Duty{ScheduleTime: scheduleTime, LastRun: lastFired}
}

func (svc *Service) checkCalendar(ctx context.Context, t store.Trigger) {
	if svc.calendar == nil {
		return
	}
	var cfg calendarConfig
	if err := json.Unmarshal([]byte(t.Config), &cfg); err != nil {
		svc.logger.Warn("trigger: bad calendar config", "slug", t.Slug, "error", err)
		return
	}
	if cfg.MinutesAhead <= 0 {
		cfg.MinutesAhead = 15
	}

	now := time.Now()
	from := now.Add(time.Duration(cfg.MinutesAhead-1) * time.Minute)
	to := now.Add(time.Duration(cfg.MinutesAhead+1) * time.Minute)

	events, err := svc.calendar.EventsStartingBetween(ctx, from, to)
	if err != nil {
		svc.logger.Warn("trigger: calendar lookup failed", "slug", t.Slug, "error", err)
		return
	}

	for _, ev := range events {
		key := t.Slug + ":" + ev.ID
		if _, seen := svc.seen[key]; seen {
			continue
		}
		if t.LastFiredEventID == ev.ID && t.LastFiredAt != nil && time.Since(*t.LastFiredAt) < 2*time.Duration(cfg.MinutesAhead)*time.Minute {
			svc.seen[key] = time.Now()
			continue
		}

		exists, err := svc.tmux.HasSession(svc.chiefWindow)
		if err != nil || !exists {
			continue
		}
		prompt := strings.ReplaceAll(cfg.PromptTemplate, "{{title}}", ev.Title)
		if err := svc.tmux.InjectMessage(svc.chiefWindow, prompt, true); err != nil {
			svc.logger.Error("trigger: injecting calendar prompt failed", "slug", t.Slug, "error", err)
			continue
		}
		svc.seen[key] = time.Now()
		if err := svc.store.MarkTriggerFired(t.Slug, ev.ID, time.Now()); err != nil {
			svc.logger.Error("trigger: recording calendar fire", "slug", t.Slug, "error", err)
		}
		svc.bus.Publish(eventbus.EventTriggerFired, map[string]any{
			"trigger_slug": t.Slug, "kind": KindCalendar, "event_id": ev.ID,
		})
	}
}
