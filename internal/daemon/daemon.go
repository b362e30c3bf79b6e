// Package daemon wires every loop — the Filesystem Watcher, the Context
// Monitor, the Duty Scheduler, the Trigger Service, the Mission Executor's
// poll loop, and the Reply Auto-Injector (driven off the Watcher's
// callback rather than its own loop) — into a single process with one
// shutdown path.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spartypkp/townctl/internal/config"
	"github.com/spartypkp/townctl/internal/contextmon"
	"github.com/spartypkp/townctl/internal/duty"
	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/handoff"
	"github.com/spartypkp/townctl/internal/lifecycle"
	"github.com/spartypkp/townctl/internal/mission"
	"github.com/spartypkp/townctl/internal/reply"
	"github.com/spartypkp/townctl/internal/session"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
	"github.com/spartypkp/townctl/internal/trigger"
	"github.com/spartypkp/townctl/internal/watcher"
)

// Daemon is the assembled runtime: every component from the package map,
// holding references to each other only through the narrow interfaces
// each package already exports.
type Daemon struct {
	Store     *store.Store
	Bus       *eventbus.Bus
	Tmux      *tmux.Tmux
	Sessions  *session.Registry
	Handoffs  *handoff.Pipeline
	Lifecycle *lifecycle.Tools
	Watcher   *watcher.Watcher
	Context   *contextmon.Monitor
	Duties    *duty.Scheduler
	Triggers  *trigger.Service
	Missions  *mission.Executor
	Schedule  *mission.Scheduler
	Reply     *reply.Injector
	Notify    *NotificationManager

	layout *config.Layout
	cfg    config.Engine
	roles  config.RoleTable
	logger *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// noCalendar is the CalendarSource used until a real calendar
// integration is wired up — the Trigger Service's calendar-kind triggers
// simply never fire. Calendar integration is an external dependency the
// spec names as a collaborator, not a concern this module owns.
type noCalendar struct{}

func (noCalendar) EventsStartingBetween(ctx context.Context, from, to time.Time) ([]trigger.CalendarEvent, error) {
	return nil, nil
}

// New opens the store at layout.DBPath and assembles every component. It
// does not start any loop — call Run for that.
func New(layout *config.Layout, cfg config.Engine, roles config.RoleTable, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.Open(layout.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	bus := eventbus.New()
	tmuxDriver := tmux.New()
	sessions := session.New(s, bus)

	spawner := &tmuxSpawner{tmux: tmuxDriver, roles: roles, layout: layout}
	summarizer := &handoffSummarizer{layout: layout, roles: roles, logger: logger}
	pipeline := handoff.New(s, sessions, tmuxDriver, bus, spawner, summarizer, layout, cfg.HandoffDuration(), logger)

	w, err := watcher.New([]string{layout.WorkingDir, layout.ConversationsDir()}, bus, cfg.WatcherDebounce(), logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("starting watcher: %w", err)
	}

	ctxMon := contextmon.New(sessions, pipeline, tmuxDriver, cfg.ContextWarnThreshold, cfg.AutonomousOffset, cfg.ContextPollInterval(), logger)
	duties := duty.New(s, tmuxDriver, bus, cfg.Location(), cfg.TmuxSession, cfg.DutyPollInterval(), logger)
	triggers := trigger.New(s, noCalendar{}, tmuxDriver, bus, cfg.Location(), cfg.TmuxSession, cfg.TriggerPollInterval(), logger)

	runner := &agentRunner{layout: layout, roles: roles, logger: logger}
	executor := mission.New(s, bus, runner, cfg.MissionMaxConcurrent, logger)
	scheduler := mission.NewScheduler(s, executor, cfg.Location(), cfg.MissionPollInterval())

	replyInjector := reply.New(sessions, s, tmuxDriver, bus, logger)
	w.OnReply(replyInjector.HandleReplyChanged)

	lifecycleTools := lifecycle.New(sessions, pipeline, tmuxDriver)
	notify := NewNotificationManager(filepath.Join(layout.Root, "daemon", "notifications"), 30*time.Minute)

	d := &Daemon{
		Store:     s,
		Bus:       bus,
		Tmux:      tmuxDriver,
		Sessions:  sessions,
		Handoffs:  pipeline,
		Lifecycle: lifecycleTools,
		Watcher:   w,
		Context:   ctxMon,
		Duties:    duties,
		Triggers:  triggers,
		Missions:  executor,
		Schedule:  scheduler,
		Reply:     replyInjector,
		Notify:    notify,
		layout:    layout,
		cfg:       cfg,
		roles:     roles,
		logger:    logger,
	}

	w.OnIndexRefresh(d.refreshIndex)
	return d, nil
}

// Run starts every loop and blocks until ctx is cancelled, then waits for
// every loop to return. A sync.WaitGroup plus the derived cancel func is
// the same ctx/cancel/wg shutdown fan-out the curator loop used, just
// applied to five loops instead of one (the Reply Auto-Injector has no
// loop of its own; it runs from the Watcher's callback).
func (d *Daemon) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	stop := make(chan struct{})
	d.start(func() { d.Watcher.Run(stop) })
	d.start(func() { d.Context.Run(ctx) })
	d.start(func() { d.Duties.Run(ctx) })
	d.start(func() { d.Triggers.Run(ctx) })
	d.start(func() { d.Schedule.Run(ctx) })

	<-ctx.Done()
	close(stop)
	d.wg.Wait()
	d.logger.Info("daemon: all loops stopped")
}

// Shutdown cancels the context passed to Run, if it is currently running.
func (d *Daemon) Shutdown() {
	if d.cancel != nil {
		d.cancel()
	}
}

func (d *Daemon) start(loop func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		loop()
	}()
}

// refreshIndex is the Watcher's trigger-file callback: a SYSTEM-SPEC.md /
// LIFE-SPEC.md / manifest.yaml edit means the Chief's context may be
// stale, so this nudges it with a short reminder rather than trying to
// re-inject the whole file — the Chief re-reads on its own schedule.
func (d *Daemon) refreshIndex() {
	chief, err := d.Sessions.Chief()
	if err != nil || chief.TmuxPane == "" {
		return
	}
	if err := d.Tmux.NudgeSession(chief.TmuxPane, "[system] a tracked spec/manifest file changed; SYSTEM-INDEX may be stale"); err != nil {
		d.logger.Warn("daemon: failed to nudge chief about index refresh", "error", err)
	}
}

// Close releases the store and any other held resources.
func (d *Daemon) Close() error {
	return d.Store.Close()
}

// tmuxSpawner implements handoff.Spawner by creating a fresh tmux session
// running the agent CLI for the successor role, seeded with the handoff
// summary as its initial prompt file.
type tmuxSpawner struct {
	tmux   *tmux.Tmux
	roles  config.RoleTable
	layout *config.Layout
}

// NewTmuxSpawner builds the handoff.Spawner the daemon wires in by
// default, exported so the CLI's own "reset" lifecycle command can build
// a working handoff.Pipeline without re-implementing pane-spawn logic.
func NewTmuxSpawner(tmuxDriver *tmux.Tmux, roles config.RoleTable, layout *config.Layout) handoff.Spawner {
	return &tmuxSpawner{tmux: tmuxDriver, roles: roles, layout: layout}
}

func (sp *tmuxSpawner) Spawn(ctx context.Context, req handoff.SpawnRequest) (string, error) {
	role := sp.roles.Get(req.Role)
	paneName := req.NewSessionID

	command := agentCommand(role, req.HandoffPath, req.HandoffInline)
	if _, err := sp.tmux.EnsureSessionFresh(paneName, sp.layout.WorkingDir, command); err != nil {
		return "", fmt.Errorf("spawning successor pane: %w", err)
	}
	return paneName, nil
}

// agentRunner implements mission.Runner by running the agent CLI
// headlessly (no pane) via os/exec, synchronously, for mission
// executions — unlike Chief/specialist sessions a mission has no
// interactive pane for an operator to watch, so it blocks for the
// duration of the run rather than handing a pane id back immediately.
type agentRunner struct {
	layout *config.Layout
	roles  config.RoleTable
	logger *slog.Logger
}

func (r *agentRunner) Run(ctx context.Context, executionID, role, prompt string) error {
	rc := r.roles.Get(role)
	args := []string{"-p", prompt}
	if rc.DefaultModel != "" {
		args = append(args, "--model", rc.DefaultModel)
	}
	cmd := exec.CommandContext(ctx, "claude", args...)
	cmd.Dir = r.layout.WorkingDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("mission execution %s: %w (output: %s)", executionID, err, out)
	}
	return nil
}

// agentCommand builds the shell command a freshly spawned pane execs:
// the agent CLI, seeded with the handoff's summary as its first prompt.
func agentCommand(role config.Role, handoffPath, handoffInline string) string {
	if handoffInline != "" {
		return fmt.Sprintf("claude %q", handoffInline)
	}
	if handoffPath != "" {
		return fmt.Sprintf("claude --prompt-file %q", handoffPath)
	}
	return "claude"
}

// summarizerPrompt is the prompt template handed to the summarizer
// agent: the handoff template already exists on disk with section
// placeholders, and the agent's only job is to edit it in place using
// the context given inline here, rather than spending turns re-reading
// it off disk.
const summarizerPrompt = `You're writing a handoff document for a fresh session that will continue this work. The fresh session has NO context except what you provide.

The handoff file already exists at: %s

It has section headers with HTML comments explaining what belongs in each section. Your job: EDIT the handoff file to fill in each section. Replace the comments with actual content.

Work state matters most: what was in progress, whether to resume autonomously or wait for the user, and the concrete next action. Capture relational texture — callbacks, commitments, anything that would be weird for the fresh session not to know. Be specific about file changes actually made. Operational facts already live in TODAY.md/MEMORY.md below — focus on what's not in those.

## Role Definition
%s

## Mode Definition
%s

## TODAY.md
%s

## MEMORY.md
%s

## Transcript
%s

Now edit %s to fill in all sections. When done, just say "Done."`

// handoffSummarizer implements handoff.Summarizer by running the agent
// CLI headlessly, the same way agentRunner runs mission agents, with a
// prompt that inlines every piece of context the summarizer needs so it
// never has to spend a turn reading files off disk. It runs under the
// "summarizer" role and its own session identity so the startup hook
// never overwrites the dying session's transcript_path with this one's.
type handoffSummarizer struct {
	layout *config.Layout
	roles  config.RoleTable
	logger *slog.Logger
}

// NewSummarizer builds the handoff.Summarizer the daemon wires in by
// default, exported so the CLI's "reset" lifecycle command shares it.
func NewSummarizer(layout *config.Layout, roles config.RoleTable, logger *slog.Logger) handoff.Summarizer {
	return &handoffSummarizer{layout: layout, roles: roles, logger: logger}
}

func (sm *handoffSummarizer) Summarize(ctx context.Context, req handoff.SummarizeRequest) error {
	rc := sm.roles.Get("summarizer")
	prompt := fmt.Sprintf(summarizerPrompt, req.HandoffPath, req.RoleContent, req.ModeContent,
		req.TodayContent, req.MemoryContent, req.Transcript, req.HandoffPath)

	args := []string{"-p", prompt}
	if rc.DefaultModel != "" {
		args = append(args, "--model", rc.DefaultModel)
	}
	cmd := exec.CommandContext(ctx, "claude", args...)
	cmd.Dir = sm.layout.WorkingDir
	cmd.Env = append(os.Environ(),
		"CLAUDE_SESSION_ID="+uuid.NewString()[:8],
		"CLAUDE_SESSION_MODE=summarizer",
		"CLAUDE_SESSION_ROLE="+req.Role,
		"CLAUDE_CONVERSATION_ID="+req.ConversationID,
		"CLAUDE_PARENT_SESSION_ID="+req.ParentSessionID,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("summarizer for %s: %w (output: %s)", req.HandoffPath, err, out)
	}
	return nil
}
