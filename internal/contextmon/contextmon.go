// Package contextmon is the Context Monitor: a loop that polls every live
// session's pane on a fixed cadence, parses its agent-runtime status, and
// reacts to two signals — a recoverable "context low" warning at a single
// 90% threshold, and an unrecoverable "context full" state that triggers
// an emergency handoff on the agent's behalf.
//
// Single-threshold design is deliberate: the original implementation's
// progressive 60/80/90/95 warnings fragmented the agent's attention
// without changing its behavior. One clear warning and one hard
// guillotine is the sweet spot this loop implements.
package contextmon

import (
	"context"
	"log/slog"
	"time"

	"github.com/spartypkp/townctl/internal/handoff"
	"github.com/spartypkp/townctl/internal/panestatus"
	"github.com/spartypkp/townctl/internal/session"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
)

// autonomousModes shift the warning threshold 10 points earlier because
// there is no human operator present to notice the agent struggling.
var autonomousModes = map[string]bool{
	"background": true,
	"mission":    true,
	"autonomous": true,
}

// Monitor polls live sessions and reacts to context pressure.
type Monitor struct {
	sessions  *session.Registry
	handoffs  *handoff.Pipeline
	tmux      *tmux.Tmux
	threshold int
	offset    int
	interval  time.Duration
	logger    *slog.Logger
}

// New builds a Monitor. threshold is the base warning percent (spec
// default 90); offset is subtracted from it for autonomous-mode sessions.
func New(sessions *session.Registry, pipeline *handoff.Pipeline, tmuxDriver *tmux.Tmux, threshold, offset int, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{sessions: sessions, handoffs: pipeline, tmux: tmuxDriver, threshold: threshold, offset: offset, interval: interval, logger: logger}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	sessions, err := m.sessions.ListLive()
	if err != nil {
		m.logger.Error("contextmon: listing live sessions", "error", err)
		return
	}
	for _, sess := range sessions {
		if sess.TmuxPane == "" {
			continue
		}
		m.checkSession(sess)
	}
}

func (m *Monitor) thresholdFor(mode string) int {
	if autonomousModes[mode] {
		return m.threshold - m.offset
	}
	return m.threshold
}

func (m *Monitor) checkSession(sess store.Session) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("contextmon: tick panicked, recovering", "session_id", sess.ID, "panic", r)
		}
	}()

	raw, err := m.tmux.CapturePaneLines(sess.TmuxPane, 200)
	if err != nil {
		return // pane may already be gone; next tick or the registry reconciles it
	}
	status := panestatus.Parse(raw)
	if title, err := m.tmux.GetPaneTitle(sess.TmuxPane); err == nil {
		status = panestatus.ApplyTitle(status, title)
	}

	if status.ContextFull {
		m.emergencyHandoff(sess)
		return
	}

	effectiveThreshold := m.thresholdFor(sess.Mode)
	if status.ContextPercentUsed >= effectiveThreshold && sess.ContextWarningLevel < effectiveThreshold {
		m.warn(sess, status, effectiveThreshold)
	}
}

func (m *Monitor) warn(sess store.Session, status panestatus.Status, threshold int) {
	if err := m.tmux.SendEscape(sess.TmuxPane); err != nil {
		m.logger.Warn("contextmon: failed to interrupt pane before warning", "session_id", sess.ID, "error", err)
	}
	time.Sleep(200 * time.Millisecond)

	msg := status.ShouldWarn()
	if msg == "" {
		msg = "Context usage high. Consider /compact or reset."
	}
	if err := m.tmux.InjectMessage(sess.TmuxPane, msg, true); err != nil {
		m.logger.Warn("contextmon: failed to inject context warning", "session_id", sess.ID, "error", err)
		return
	}
	if err := m.sessions.SetContextWarningLevel(sess.ID, threshold); err != nil {
		m.logger.Error("contextmon: failed to record warning level", "session_id", sess.ID, "error", err)
	}
}

func (m *Monitor) emergencyHandoff(sess store.Session) {
	if _, err := m.handoffs.Request(sess, "emergency_context_full", "", ""); err != nil {
		m.logger.Error("contextmon: emergency handoff request failed", "session_id", sess.ID, "error", err)
	}
}
