// Package handoff is the Handoff Pipeline: the two-stage summarize-then-
// replace mechanism that lets a session die (gracefully via reset, or
// forcibly via an emergency context-full detection) and reappear to the
// user as the same conversation continuing in a fresh pane.
//
// Stage 1 (summarizer) edits a handoff template file in place using a
// short-lived agent of its own — only when the caller didn't already
// supply a handoff_path or handoff_inline summary itself. Stage 2
// (executor) does the process surgery: end the old session row, kill
// the old pane, spawn the replacement, wire up its lineage. The
// executor runs detached from the caller so reset() can return
// immediately while the dying agent winds down on its own schedule.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/spartypkp/townctl/internal/config"
	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/session"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
)

// Reason codes recorded on the handoffs row.
const (
	ReasonContextLow    = "context_low"
	ReasonEmergencyFull = "emergency_context_full"
	ReasonPaneReused    = "pane_reused"
	ReasonUserRequested = "user_requested"
)

// handoffTemplate is the pre-created file the summarizer edits in
// place. Section headers carry an HTML-comment placeholder describing
// what belongs there, mirroring the template-must-exist-first contract
// the summarizer agent is instructed to fill in.
const handoffTemplate = `# Handoff

## Work Continuation
<!-- What work was in progress, whether to resume autonomously or wait for
the user, and the concrete next action. Not a vague "continue seamlessly". -->

## Conversational Texture
<!-- Callbacks, jokes, commitments, and anything else that would be weird
for the fresh session not to know. -->

## File Changes
<!-- Specific files modified this session, not planned changes. -->
`

// Spawner builds and starts the replacement agent process for a handoff,
// returning the new session's tmux pane target once the process has been
// launched. Implementations differ per role (Chief vs. specialist); the
// daemon wires the concrete one in.
type Spawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (pane string, err error)
}

// SpawnRequest carries everything a Spawner needs to start a successor
// agent that continues the dying session's conversation.
type SpawnRequest struct {
	NewSessionID       string
	Role               string
	Mode               string
	ConversationID     string
	ParentSessionID    string
	MissionExecutionID string
	HandoffPath        string
	HandoffInline      string
}

// Summarizer fills in a pre-created handoff template file in place,
// using a short-lived agent of its own that reads the dying session's
// transcript plus its role, mode, TODAY.md and MEMORY.md context. It
// runs under its own session identity so the real session's row is
// never clobbered by the summarizer's own startup bookkeeping.
type Summarizer interface {
	Summarize(ctx context.Context, req SummarizeRequest) error
}

// SummarizeRequest carries everything a Summarizer needs to edit a
// handoff template file in place.
type SummarizeRequest struct {
	HandoffPath     string
	Transcript      string
	RoleContent     string
	ModeContent     string
	TodayContent    string
	MemoryContent   string
	Role            string
	ConversationID  string
	ParentSessionID string
}

// Pipeline wires the store, session registry, tmux driver, and event bus
// together to execute handoffs.
type Pipeline struct {
	store      *store.Store
	sessions   *session.Registry
	tmux       *tmux.Tmux
	bus        *eventbus.Bus
	spawner    Spawner
	summarizer Summarizer
	layout     *config.Layout
	settle     time.Duration
	logger     *slog.Logger
}

// New builds a Pipeline. settle is the stage-2 pre-kill wait (spec default
// ~3s) that lets the dying agent's last response finalize before its pane
// is torn down.
func New(s *store.Store, sessions *session.Registry, tmuxDriver *tmux.Tmux, bus *eventbus.Bus, spawner Spawner, summarizer Summarizer, layout *config.Layout, settle time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: s, sessions: sessions, tmux: tmuxDriver, bus: bus, spawner: spawner, summarizer: summarizer, layout: layout, settle: settle, logger: logger}
}

// Request opens a new handoff for a dying session and spawns the executor
// detached, returning as soon as the row exists. Both reset() (graceful)
// and the Context Monitor's emergency path (on the agent's behalf) go
// through here. When the caller supplies neither a handoff path nor an
// inline summary — the emergency case, where the dying agent is in no
// state to write one itself — a template file is pre-created under
// HandoffsDir and marked for the summarizer stage to fill in.
func (p *Pipeline) Request(dying store.Session, reason, handoffPath, handoffInline string) (store.Handoff, error) {
	if existing, err := p.store.GetPendingOrExecutingHandoffForSession(dying.ID); err == nil {
		return existing, nil // already in flight — idempotent no-op
	}

	id := "ho-" + uuid.NewString()[:8]

	needsSummary := handoffPath == "" && handoffInline == ""
	if needsSummary {
		path, err := p.writeTemplate(id)
		if err != nil {
			return store.Handoff{}, fmt.Errorf("writing handoff template for %s: %w", dying.ID, err)
		}
		handoffPath = path
	}

	params := store.CreateHandoffParams{
		ID:            id,
		Session:       dying,
		Reason:        reason,
		HandoffPath:   handoffPath,
		HandoffInline: handoffInline,
		NeedsSummary:  needsSummary,
	}
	if err := p.store.CreateHandoff(params); err != nil {
		return store.Handoff{}, fmt.Errorf("creating handoff for %s: %w", dying.ID, err)
	}
	h, err := p.store.GetHandoff(id)
	if err != nil {
		return store.Handoff{}, err
	}

	p.bus.Publish(eventbus.EventHandoffStarted, map[string]any{
		"handoff_id": id,
		"session_id": dying.ID,
		"reason":     reason,
	})

	go p.execute(h)
	return h, nil
}

// writeTemplate pre-creates the handoff file the summarizer will later
// edit in place, at HandoffsDir/<id>.md.
func (p *Pipeline) writeTemplate(id string) (string, error) {
	if err := os.MkdirAll(p.layout.HandoffsDir, 0755); err != nil {
		return "", err
	}
	path := p.layout.HandoffsDir + string(os.PathSeparator) + id + ".md"
	if err := os.WriteFile(path, []byte(handoffTemplate), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// execute marks the row executing, settles, runs stage 1 (if needed),
// then stage 2: end the old row, kill the old pane, spawn the
// replacement, mark complete or failed.
func (p *Pipeline) execute(h store.Handoff) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := p.store.MarkHandoffExecuting(h.ID); err != nil {
		p.logger.Error("handoff: failed to mark executing", "handoff_id", h.ID, "error", err)
		return
	}

	time.Sleep(p.settle)

	if h.NeedsSummary {
		p.summarize(ctx, h)
	}

	if err := p.sessions.End(h.SessionID, "handoff"); err != nil {
		p.logger.Warn("handoff: failed to end old session", "session_id", h.SessionID, "error", err)
	}

	if h.TmuxPane != "" {
		if err := p.tmux.KillSession(h.TmuxPane); err != nil {
			p.logger.Warn("handoff: failed to kill old pane (continuing)", "pane", h.TmuxPane, "error", err)
		}
	}

	newSessionID := "sess-" + uuid.NewString()[:8]
	pane, err := p.spawner.Spawn(ctx, SpawnRequest{
		NewSessionID:       newSessionID,
		Role:               h.Role,
		Mode:               h.Mode,
		ConversationID:     h.ConversationID,
		ParentSessionID:    h.SessionID,
		MissionExecutionID: h.MissionExecutionID,
		HandoffPath:        h.HandoffPath,
		HandoffInline:      h.HandoffInline,
	})
	if err != nil {
		p.fail(h.ID, fmt.Errorf("spawning replacement: %w", err))
		return
	}

	if _, err := p.sessions.Register(session.RegisterParams{
		SessionID:          newSessionID,
		Role:               h.Role,
		Mode:               h.Mode,
		Pane:                pane,
		ConversationID:     h.ConversationID,
		ParentSessionID:    h.SessionID,
		MissionExecutionID: h.MissionExecutionID,
	}); err != nil {
		p.fail(h.ID, fmt.Errorf("registering replacement session: %w", err))
		return
	}

	if err := p.store.CompleteHandoff(h.ID, newSessionID); err != nil {
		p.logger.Error("handoff: failed to mark complete", "handoff_id", h.ID, "error", err)
		return
	}
	p.bus.Publish(eventbus.EventHandoffCompleted, map[string]any{
		"handoff_id":     h.ID,
		"session_id":     h.SessionID,
		"new_session_id": newSessionID,
	})
}

// summarize runs stage 1: gather the dying session's transcript and
// role/mode/TODAY/MEMORY context, then hand it to the Summarizer to edit
// the pre-created template in place. A summarizer failure is logged and
// swallowed rather than failing the handoff — the blank template is
// still better continuity than nothing, and stage 2 proceeds on schedule.
func (p *Pipeline) summarize(ctx context.Context, h store.Handoff) {
	transcript := readFileOrEmpty(h.TranscriptPath)
	roleContent := readFileOrEmpty(p.layout.RoleFile(h.Role))
	modeContent := readFileOrEmpty(p.layout.ModeFile(h.Role, h.Mode))
	todayContent := readFileOrEmpty(p.layout.TodayFile)
	memoryContent := readFileOrEmpty(p.layout.MemoryFile)

	err := p.summarizer.Summarize(ctx, SummarizeRequest{
		HandoffPath:     h.HandoffPath,
		Transcript:      transcript,
		RoleContent:     roleContent,
		ModeContent:     modeContent,
		TodayContent:    todayContent,
		MemoryContent:   memoryContent,
		Role:            h.Role,
		ConversationID:  h.ConversationID,
		ParentSessionID: h.SessionID,
	})
	if err != nil {
		p.logger.Error("handoff: summarizer failed, continuing with template as-is", "handoff_id", h.ID, "error", err)
	}
}

func readFileOrEmpty(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func (p *Pipeline) fail(handoffID string, cause error) {
	p.logger.Error("handoff: stage 2 failed", "handoff_id", handoffID, "error", cause)
	if err := p.store.FailHandoff(handoffID, cause.Error()); err != nil {
		p.logger.Error("handoff: failed to record failure", "handoff_id", handoffID, "error", err)
	}
	p.bus.Publish(eventbus.EventHandoffFailed, map[string]any{
		"handoff_id": handoffID,
		"error":      cause.Error(),
	})
}
