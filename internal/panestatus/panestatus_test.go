package panestatus

import "testing"

func TestParseContextWarning(t *testing.T) {
	content := "Some output\nContext low (8% remaining)\nmore text"
	s := Parse(content)
	if !s.ContextWarning {
		t.Fatal("expected ContextWarning=true")
	}
	if s.ContextRemaining != 8 {
		t.Errorf("ContextRemaining = %d, want 8", s.ContextRemaining)
	}
	if s.ContextPercentUsed != 92 {
		t.Errorf("ContextPercentUsed = %d, want 92", s.ContextPercentUsed)
	}
}

func TestParseContextFull(t *testing.T) {
	s := Parse("Error: the conversation is too long to continue")
	if !s.ContextFull {
		t.Fatal("expected ContextFull=true")
	}
}

func TestParseActiveTask(t *testing.T) {
	content := "✳ Refactoring auth middleware… (esc to interrupt · 1m 40s · ↓ 2.4k tokens)"
	s := Parse(content)
	if !s.IsThinking {
		t.Fatal("expected IsThinking=true")
	}
	if s.ActiveTask != "Refactoring auth middleware" {
		t.Errorf("ActiveTask = %q", s.ActiveTask)
	}
	if s.ElapsedTime != "1m 40s" {
		t.Errorf("ElapsedTime = %q", s.ElapsedTime)
	}
	if s.TokenCount != "2.4k tokens" {
		t.Errorf("TokenCount = %q", s.TokenCount)
	}
}

func TestParseModelAndCost(t *testing.T) {
	content := "[Opus] ctx:42% $1.23"
	s := Parse(content)
	if s.Model != "Opus" {
		t.Errorf("Model = %q", s.Model)
	}
	if s.CostUSD != 1.23 {
		t.Errorf("CostUSD = %v", s.CostUSD)
	}
}

func TestApplyTitleStripsIconAndIgnoresShells(t *testing.T) {
	s := ApplyTitle(Status{}, "✳ Backend Restart Methods")
	if s.LastTask != "Backend Restart Methods" {
		t.Errorf("LastTask = %q", s.LastTask)
	}
	s2 := ApplyTitle(Status{}, "zsh")
	if s2.LastTask != "" {
		t.Errorf("expected empty LastTask for shell title, got %q", s2.LastTask)
	}
}

func TestShouldWarnThresholds(t *testing.T) {
	critical := Status{ContextWarning: true, ContextRemaining: 5, ContextPercentUsed: 95}
	if msg := critical.ShouldWarn(); msg == "" {
		t.Fatal("expected critical warning")
	}
	none := Status{}
	if msg := none.ShouldWarn(); msg != "" {
		t.Errorf("expected no warning, got %q", msg)
	}
}
