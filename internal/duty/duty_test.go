package duty

import (
	"testing"
	"time"

	"github.com/spartypkp/townctl/internal/store"
)

func TestShouldRunBeforeScheduledTime(t *testing.T) {
	now := time.Date(2026, 7, 29, 5, 30, 0, 0, time.UTC)
	d := store.Duty{ScheduleTime: "06:00"}
	if ShouldRun(d, now) {
		t.Error("expected false before scheduled time")
	}
}

func TestShouldRunNeverRan(t *testing.T) {
	now := time.Date(2026, 7, 29, 6, 1, 0, 0, time.UTC)
	d := store.Duty{ScheduleTime: "06:00"}
	if !ShouldRun(d, now) {
		t.Error("expected true when last_run is nil and time has passed")
	}
}

func TestShouldRunAlreadyRanToday(t *testing.T) {
	now := time.Date(2026, 7, 29, 6, 30, 0, 0, time.UTC)
	lastRun := time.Date(2026, 7, 29, 6, 5, 0, 0, time.UTC)
	d := store.Duty{ScheduleTime: "06:00", LastRun: &lastRun}
	if ShouldRun(d, now) {
		t.Error("expected false when already run after today's scheduled time")
	}
}

func TestShouldRunRanYesterday(t *testing.T) {
	now := time.Date(2026, 7, 29, 6, 30, 0, 0, time.UTC)
	lastRun := time.Date(2026, 7, 28, 6, 5, 0, 0, time.UTC)
	d := store.Duty{ScheduleTime: "06:00", LastRun: &lastRun}
	if !ShouldRun(d, now) {
		t.Error("expected true: a system that was off yesterday's run should fire today")
	}
}

func TestShouldRunBootedLateStillFiresImmediately(t *testing.T) {
	// system was off at 06:00, boots at 07:00 — fires immediately.
	now := time.Date(2026, 7, 29, 7, 0, 0, 0, time.UTC)
	d := store.Duty{ScheduleTime: "06:00"}
	if !ShouldRun(d, now) {
		t.Error("expected true for late boot")
	}
}

func TestParseHHMMRejectsMalformed(t *testing.T) {
	if _, _, ok := parseHHMM("not-a-time"); ok {
		t.Error("expected malformed schedule_time to be rejected")
	}
	if _, _, ok := parseHHMM("25:00"); ok {
		t.Error("expected out-of-range hour to be rejected")
	}
}
