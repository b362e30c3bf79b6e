package mission

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/store"
)

func TestRenderTemplateSubstitutesVariables(t *testing.T) {
	out := RenderTemplate("Hello {{name}}, your execution is {{execution_id}}.", map[string]string{
		"name":         "world",
		"execution_id": "mex-abc123",
	})
	want := "Hello world, your execution is mex-abc123."
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRenderTemplateLeavesUnmatchedPlaceholders(t *testing.T) {
	out := RenderTemplate("Value: {{missing}}", map[string]string{})
	if out != "Value: {{missing}}" {
		t.Errorf("expected unmatched placeholder preserved, got %q", out)
	}
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingRunner) Run(ctx context.Context, executionID, role, prompt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, executionID)
	return nil
}

func newTestExecutor(t *testing.T, runner Runner, cap int) (*Executor, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, eventbus.New(), runner, cap, nil), s
}

func TestExecuteCreatesExecutionAndRunsAgent(t *testing.T) {
	runner := &recordingRunner{}
	exec, s := newTestExecutor(t, runner, 2)

	if err := s.UpsertMission(store.Mission{ID: "m1", Slug: "daily-digest", Name: "Daily Digest", PromptInline: "Summarize {{topic}}", Enabled: true}); err != nil {
		t.Fatalf("UpsertMission: %v", err)
	}

	execID, err := exec.Execute(context.Background(), "daily-digest", map[string]string{"topic": "news"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if execID == "" {
		t.Fatal("expected non-empty execution id")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		runner.mu.Lock()
		n := len(runner.calls)
		runner.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("runner was not invoked")
}

func TestCompleteRecordsCompletion(t *testing.T) {
	runner := &recordingRunner{}
	exec, s := newTestExecutor(t, runner, 2)
	if err := s.UpsertMission(store.Mission{ID: "m2", Slug: "cleanup", Name: "Cleanup", PromptInline: "go", Enabled: true}); err != nil {
		t.Fatalf("UpsertMission: %v", err)
	}
	execID, err := exec.Execute(context.Background(), "cleanup", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := exec.Complete(execID, "completed", "done"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	execs, err := s.ListMissionExecutions("cleanup", 10)
	if err != nil {
		t.Fatalf("ListMissionExecutions: %v", err)
	}
	if len(execs) != 1 || execs[0].Status != "completed" {
		t.Fatalf("unexpected executions: %+v", execs)
	}
}

func TestNextCronFireRejectsInvalidExpression(t *testing.T) {
	exec, _ := newTestExecutor(t, &recordingRunner{}, 1)
	if _, ok := exec.NextCronFire("not a cron expr", time.Now()); ok {
		t.Error("expected invalid cron expression to be rejected")
	}
	if _, ok := exec.NextCronFire("0 6 * * *", time.Now()); !ok {
		t.Error("expected valid cron expression to parse")
	}
}
