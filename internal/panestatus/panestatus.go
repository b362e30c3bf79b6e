// Package panestatus parses an agent CLI's on-screen status out of a
// captured tmux pane buffer. It is a pure function package: given text,
// return structure. It owns no state and makes no tmux calls itself —
// the caller captures the pane via the tmux driver and hands the text in.
//
// We only trust the agent UI's own authoritative signals: its native
// "Context low (X% remaining)" warning and its "cute message" activity
// line. A separate statusline plugin's ctx:XX% figure is deliberately
// ignored, since it's computed differently and tends to underreport.
package panestatus

import (
	"regexp"
	"strconv"
	"strings"
)

// Status is everything this package can extract from a pane buffer and
// (optionally) its title.
type Status struct {
	ContextWarning     bool
	ContextRemaining   int // percent remaining; only meaningful if ContextWarning
	ContextPercentUsed int // 100 - ContextRemaining
	ContextFull        bool

	IsThinking bool
	ActiveTask string
	LastTask   string
	ElapsedTime string
	TokenCount  string

	Model  string
	CostUSD float64
}

var (
	contextLowPattern = regexp.MustCompile(`Context low \((\d+)% remaining\)`)
	// The agent CLI renamed its interrupt hint from "esc to interrupt" to
	// "ctrl+c to interrupt" at some point; match either so older and newer
	// builds both parse.
	taskPattern = regexp.MustCompile(`(?m)^\s*\S+\s+([^…\.\(\n]+)[…\.]?\s*\((?:esc|ctrl\+c) to interrupt([^\)]*)`)
	elapsedPattern = regexp.MustCompile(`(\d+m\s*\d*s?)`)
	tokenPattern   = regexp.MustCompile(`↓\s*([\d.]+k?\s*tokens?)`)
	statuslinePattern = regexp.MustCompile(`\[([^\]]+)\]\s+ctx:\d+%\s+\$(\d+\.?\d*)`)

	// contextFullPatterns match the handful of phrases the agent CLI emits
	// when it can no longer continue the conversation at all — distinct
	// from the recoverable "Context low" warning.
	contextFullPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)conversation (is )?too long`),
		regexp.MustCompile(`(?i)prompt is too long`),
		regexp.MustCompile(`(?i)context window.*exceeded`),
	}
)

// Parse extracts a Status from a captured pane buffer.
func Parse(paneContent string) Status {
	var s Status

	if m := contextLowPattern.FindStringSubmatch(paneContent); m != nil {
		s.ContextWarning = true
		remaining, _ := strconv.Atoi(m[1])
		s.ContextRemaining = remaining
		s.ContextPercentUsed = 100 - remaining
	}

	for _, p := range contextFullPatterns {
		if p.MatchString(paneContent) {
			s.ContextFull = true
			break
		}
	}

	if m := taskPattern.FindStringSubmatch(paneContent); m != nil {
		s.ActiveTask = strings.TrimSpace(m[1])
		s.IsThinking = true
		if len(m) > 2 && m[2] != "" {
			metadata := m[2]
			if em := elapsedPattern.FindStringSubmatch(metadata); em != nil {
				s.ElapsedTime = strings.TrimSpace(em[1])
			}
			if tm := tokenPattern.FindStringSubmatch(metadata); tm != nil {
				s.TokenCount = strings.TrimSpace(tm[1])
			}
		}
	}

	if strings.Contains(paneContent, "· thinking)") || strings.Contains(paneContent, "· thinking") {
		s.IsThinking = true
	}

	if m := statuslinePattern.FindStringSubmatch(paneContent); m != nil {
		s.Model = m[1]
		if cost, err := strconv.ParseFloat(m[2], 64); err == nil {
			s.CostUSD = cost
		}
	}

	return s
}

// ApplyTitle folds a captured pane title into s, filling LastTask. The
// title carries the agent's "cute message" even while idle, when the
// in-buffer task line has already scrolled away. A leading glyph (the
// activity icon) is stripped, and bare shell names are not considered a
// task.
func ApplyTitle(s Status, title string) Status {
	title = strings.TrimSpace(title)
	if title == "" {
		return s
	}
	runes := []rune(title)
	if len(runes) > 0 && !isAlnum(runes[0]) {
		title = strings.TrimSpace(string(runes[1:]))
	}
	switch strings.ToLower(title) {
	case "", "bash", "zsh", "sh", "tmux":
		return s
	}
	s.LastTask = title
	return s
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// IsActive reports whether the agent appears to be actively working.
func (s Status) IsActive() bool {
	return s.IsThinking || s.ActiveTask != ""
}

// ShouldWarn returns the warning message to inject, or "" if none is
// warranted — only the agent's own native warning is ever trusted.
func (s Status) ShouldWarn() string {
	if !s.ContextWarning {
		return ""
	}
	remaining := s.ContextRemaining
	if remaining == 0 {
		remaining = 10
	}
	used := s.ContextPercentUsed
	if used == 0 {
		used = 100 - remaining
	}
	switch {
	case remaining <= 10:
		return "CONTEXT CRITICAL: " + strconv.Itoa(used) + "% used (" + strconv.Itoa(remaining) + "% remaining). Consider /compact or reset."
	case remaining <= 20:
		return "Context low: " + strconv.Itoa(used) + "% used (" + strconv.Itoa(remaining) + "% remaining). Monitor closely."
	default:
		return "Context notice: " + strconv.Itoa(remaining) + "% remaining"
	}
}
