package mission

import (
	"context"
	"time"

	"github.com/spartypkp/townctl/internal/duty"
	"github.com/spartypkp/townctl/internal/store"
)

// Scheduler polls enabled missions with a "daily" or "cron" schedule
// type and fires Execute when they're due. Missions with schedule_type
// "manual" or "trigger" are never fired by this loop — manual missions
// wait for an explicit Execute call (e.g. from a CLI command), and
// trigger-driven missions are fired by the Trigger Service instead.
type Scheduler struct {
	store    *store.Store
	executor *Executor
	location *time.Location
	interval time.Duration
}

// NewScheduler builds a mission poll loop over executor.
func NewScheduler(s *store.Store, executor *Executor, location *time.Location, interval time.Duration) *Scheduler {
	return &Scheduler{store: s, executor: executor, location: location, interval: interval}
}

// Run polls until ctx is cancelled.
func (sch *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sch.tick(ctx)
		}
	}
}

func (sch *Scheduler) tick(ctx context.Context) {
	defer func() { recover() }() //nolint:errcheck // a single bad mission config must not kill the loop

	now := time.Now().In(sch.location)
	missions, err := sch.store.ListMissions(true)
	if err != nil {
		return
	}

	for _, m := range missions {
		if sch.due(m, now) {
			if _, err := sch.executor.Execute(ctx, m.Slug, nil); err != nil {
				sch.executor.logger.Error("mission: scheduled execution failed to start", "mission", m.Slug, "error", err)
			}
		}
	}
}

func (sch *Scheduler) due(m store.Mission, now time.Time) bool {
	switch m.ScheduleType {
	case "daily":
		if m.ScheduleTime == "" {
			return false
		}
		return duty.ShouldRun(store.Duty{ScheduleTime: m.ScheduleTime, LastRun: m.LastRun}, now)
	case "cron":
		if m.ScheduleCron == "" {
			return false
		}
		return sch.cronDue(m, now)
	default:
		return false
	}
}

// cronDue fires once per minute tick whose time matches the most recent
// scheduled fire according to the cron expression, and whose last_run is
// strictly before that fire time — this avoids needing a stored
// next_run column, mirroring the daily schedule's self-healing approach.
func (sch *Scheduler) cronDue(m store.Mission, now time.Time) bool {
	next, ok := sch.executor.NextCronFire(m.ScheduleCron, now.Add(-time.Minute))
	if !ok {
		return false
	}
	if next.After(now) {
		return false
	}
	if m.LastRun == nil {
		return true
	}
	return m.LastRun.Before(next)
}
