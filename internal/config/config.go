package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Engine holds the tunables that govern the daemon's loops. It is loaded
// from engine.toml; any field left unset in the file keeps its default.
type Engine struct {
	TmuxSession string `toml:"tmux_session"`

	ContextPollSeconds   int `toml:"context_poll_seconds"`
	DutyPollSeconds      int `toml:"duty_poll_seconds"`
	TriggerPollSeconds   int `toml:"trigger_poll_seconds"`
	MissionPollSeconds   int `toml:"mission_poll_seconds"`
	WatcherDebounceMs    int `toml:"watcher_debounce_ms"`

	ContextWarnThreshold int `toml:"context_warn_threshold"` // percent, e.g. 90
	AutonomousOffset     int `toml:"autonomous_offset"`      // subtracted from threshold for background/mission sessions

	MissionMaxConcurrent int `toml:"mission_max_concurrent"`
	MissionTimeoutMin    int `toml:"mission_timeout_minutes"`
	DutyTimeoutMin       int `toml:"duty_timeout_minutes"`

	HandoffSettleSeconds int `toml:"handoff_settle_seconds"`

	Timezone string `toml:"timezone"`
}

// Default returns the engine configuration used when no engine.toml is
// present, matching the values named throughout the original scheduling
// loops (30s context poll, single 90% threshold, four-way mission cap).
func Default() Engine {
	return Engine{
		TmuxSession:          "chief",
		ContextPollSeconds:   30,
		DutyPollSeconds:      60,
		TriggerPollSeconds:   60,
		MissionPollSeconds:   15,
		WatcherDebounceMs:    300,
		ContextWarnThreshold: 90,
		AutonomousOffset:     10,
		MissionMaxConcurrent: 4,
		MissionTimeoutMin:    45,
		DutyTimeoutMin:       45,
		HandoffSettleSeconds: 3,
		Timezone:             "America/Los_Angeles",
	}
}

// Load reads engine.toml at path, overlaying it onto Default(). A missing
// file is not an error — it just means every default applies.
func Load(path string) (Engine, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decoding %s: %w", path, err)
	}
	return cfg, nil
}

func (e Engine) ContextPollInterval() time.Duration {
	return time.Duration(e.ContextPollSeconds) * time.Second
}

func (e Engine) DutyPollInterval() time.Duration {
	return time.Duration(e.DutyPollSeconds) * time.Second
}

func (e Engine) TriggerPollInterval() time.Duration {
	return time.Duration(e.TriggerPollSeconds) * time.Second
}

func (e Engine) MissionPollInterval() time.Duration {
	return time.Duration(e.MissionPollSeconds) * time.Second
}

func (e Engine) WatcherDebounce() time.Duration {
	return time.Duration(e.WatcherDebounceMs) * time.Millisecond
}

func (e Engine) HandoffDuration() time.Duration {
	return time.Duration(e.HandoffSettleSeconds) * time.Second
}

func (e Engine) Location() *time.Location {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
