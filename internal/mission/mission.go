// Package mission is the Mission Executor: headless, system-initiated
// background agents distinguished from both Chief duties (which run
// inside the Chief's own pane) and interactive specialist sessions
// (which a person is watching). A mission's prompt template is rendered
// with caller-supplied variables plus an injected execution_id, then
// handed to a Runner with no pane attached. The mission closes itself by
// calling Complete — normally via a small in-process tool the agent's
// own toolset exposes — rather than the executor watching for exit.
package mission

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/store"
)

// Runner launches a mission's agent headlessly — no tmux pane. Execute
// calls it on its own goroutine and holds a concurrency slot until it
// returns; a non-nil error marks the execution failed. The mission
// records its own outcome via Complete.
type Runner interface {
	Run(ctx context.Context, executionID, role string, prompt string) error
}

// Executor runs missions, bounding concurrency with a buffered-channel
// semaphore so a burst of simultaneous triggers can't spawn unbounded
// specialists.
type Executor struct {
	store    *store.Store
	bus      *eventbus.Bus
	runner   Runner
	sem      chan struct{}
	logger   *slog.Logger
	cronParser cron.Parser
}

// New builds an Executor capped at maxConcurrent simultaneous running
// mission executions.
func New(s *store.Store, bus *eventbus.Bus, runner Runner, maxConcurrent int, logger *slog.Logger) *Executor {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store: s, bus: bus, runner: runner,
		sem:    make(chan struct{}, maxConcurrent),
		logger: logger,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Execute runs execute_mission(slug, variables): create the execution
// row, render the prompt, and launch the agent. It blocks only long
// enough to acquire a concurrency slot and start the runner; the mission
// itself completes asynchronously.
func (e *Executor) Execute(ctx context.Context, slug string, variables map[string]string) (string, error) {
	m, err := e.store.GetMissionBySlug(slug)
	if err != nil {
		return "", fmt.Errorf("looking up mission %s: %w", slug, err)
	}

	execID := "mex-" + uuid.NewString()[:8]
	if err := e.store.CreateMissionExecution(execID, m.ID, m.Slug); err != nil {
		return "", fmt.Errorf("creating execution row: %w", err)
	}

	vars := make(map[string]string, len(variables)+1)
	for k, v := range variables {
		vars[k] = v
	}
	vars["execution_id"] = execID

	raw, err := loadPrompt(m)
	if err != nil {
		e.fail(execID, m.ID, err)
		return "", err
	}
	prompt := RenderTemplate(raw, vars)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		e.fail(execID, m.ID, ctx.Err())
		return "", ctx.Err()
	}

	e.bus.Publish(eventbus.EventMissionStarted, map[string]any{"mission_slug": slug, "execution_id": execID})

	go func() {
		defer func() { <-e.sem }()
		defer func() {
			if r := recover(); r != nil {
				e.fail(execID, m.ID, fmt.Errorf("panic: %v", r))
			}
		}()
		if err := e.runner.Run(ctx, execID, m.Role, prompt); err != nil {
			e.fail(execID, m.ID, err)
		}
	}()

	return execID, nil
}

func (e *Executor) fail(execID, missionID string, cause error) {
	e.logger.Error("mission: execution failed", "execution_id", execID, "error", cause)
	if err := e.store.CompleteMissionExecution(execID, "failed", "", cause.Error()); err != nil {
		e.logger.Error("mission: failed to record failure", "execution_id", execID, "error", err)
	}
	if err := e.store.UpdateMissionLastRun(missionID, "failed"); err != nil {
		e.logger.Error("mission: failed to update last_run", "mission_id", missionID, "error", err)
	}
	e.bus.Publish(eventbus.EventMissionFailed, map[string]any{"execution_id": execID, "error": cause.Error()})
}

// Complete is the handler behind the mission_complete(execution_id,
// status, summary) tool: the agent's own way of closing itself out. It
// also updates the owning mission's last_run so a scheduled or cron
// mission that succeeds doesn't get re-fired on the next poll tick —
// the same last_run-driven eligibility duty.ShouldRun uses.
func (e *Executor) Complete(executionID, status, summary string) error {
	if err := e.store.CompleteMissionExecution(executionID, status, summary, ""); err != nil {
		return fmt.Errorf("completing execution %s: %w", executionID, err)
	}
	if missionID, err := e.store.GetMissionExecutionMissionID(executionID); err != nil {
		e.logger.Error("mission: failed to resolve mission for last_run update", "execution_id", executionID, "error", err)
	} else if err := e.store.UpdateMissionLastRun(missionID, status); err != nil {
		e.logger.Error("mission: failed to update last_run", "mission_id", missionID, "error", err)
	}
	e.bus.Publish(eventbus.EventMissionCompleted, map[string]any{
		"execution_id": executionID,
		"status":       status,
		"summary":      summary,
	})
	return nil
}

// RecordSession records which session id is carrying out an execution,
// for missions whose Runner does attach a tracked session identity even
// though no pane is created.
func (e *Executor) RecordSession(executionID, sessionID string) error {
	return e.store.SetMissionExecutionSession(executionID, sessionID)
}

func loadPrompt(m store.Mission) (string, error) {
	if m.PromptInline != "" {
		return m.PromptInline, nil
	}
	if m.PromptFile == "" {
		return "", fmt.Errorf("mission %s has neither prompt_file nor prompt_inline", m.Slug)
	}
	data, err := os.ReadFile(m.PromptFile)
	if err != nil {
		return "", fmt.Errorf("reading prompt file %s: %w", m.PromptFile, err)
	}
	return string(data), nil
}

// RenderTemplate substitutes {{key}} placeholders in raw with vars.
// Unmatched placeholders are left verbatim rather than erroring, since a
// mission template authored ahead of a variable set still needs to be
// inspectable.
func RenderTemplate(raw string, vars map[string]string) string {
	out := raw
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}

// NextCronFire returns the next time a cron-scheduled mission should
// fire, relative to now, or ok=false if the expression is invalid.
func (e *Executor) NextCronFire(expr string, now time.Time) (time.Time, bool) {
	sched, err := e.cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, false
	}
	return sched.Next(now), true
}
