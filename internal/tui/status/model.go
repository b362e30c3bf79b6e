// Package status is the operator-facing TUI: a live view over the
// session registry, refreshed on a timer rather than re-queried per
// keystroke, in the same bubbletea/bubbles/lipgloss idiom as the
// teacher's convoy dashboard.
package status

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/spartypkp/townctl/internal/store"
)

const refreshInterval = 2 * time.Second

// Row is a single rendered session line.
type Row struct {
	ID         string
	Role       string
	Mode       string
	State      string
	StatusText string
	LastSeen   time.Time
	Pane       string
}

// Model is the bubbletea model for the session status TUI.
type Model struct {
	store *store.Store

	rows   []Row
	cursor int
	err    error

	keys     KeyMap
	help     help.Model
	showHelp bool
	width    int
	height   int

	// mu protects every field View() reads, mirroring the convoy
	// dashboard's read/write split between Update and View.
	mu sync.RWMutex
}

// New builds a status Model over an already-open store.
func New(s *store.Store) *Model {
	return &Model{
		store: s,
		keys:  DefaultKeyMap(),
		help:  help.New(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchRows, tickCmd())
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type fetchRowsMsg struct {
	rows []Row
	err  error
}

func (m *Model) fetchRows() tea.Msg {
	sessions, err := m.store.ListLiveSessions()
	if err != nil {
		return fetchRowsMsg{err: err}
	}
	rows := make([]Row, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, Row{
			ID:         s.ID,
			Role:       s.Role,
			Mode:       s.Mode,
			State:      s.CurrentState,
			StatusText: s.StatusText,
			LastSeen:   s.LastSeenAt,
			Pane:       s.TmuxPane,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Role != rows[j].Role {
			return rows[i].Role < rows[j].Role
		}
		return rows[i].ID < rows[j].ID
	})
	return fetchRowsMsg{rows: rows}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.mu.Unlock()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchRows, tickCmd())

	case fetchRowsMsg:
		m.mu.Lock()
		m.err = msg.err
		if msg.err == nil {
			m.rows = msg.rows
			if m.cursor >= len(m.rows) {
				m.cursor = len(m.rows) - 1
			}
			if m.cursor < 0 {
				m.cursor = 0
			}
		}
		m.mu.Unlock()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.mu.Lock()
			m.showHelp = !m.showHelp
			m.mu.Unlock()
			return m, nil
		case key.Matches(msg, m.keys.Up):
			m.mu.Lock()
			if m.cursor > 0 {
				m.cursor--
			}
			m.mu.Unlock()
			return m, nil
		case key.Matches(msg, m.keys.Down):
			m.mu.Lock()
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
			m.mu.Unlock()
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetchRows
		}
	}
	return m, nil
}

func (m *Model) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.renderView()
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	stateColors   = map[string]lipgloss.Color{
		store.StateActive: lipgloss.Color("42"),
		store.StateIdle:    lipgloss.Color("244"),
	}
)

func (m *Model) renderView() string {
	var b strings.Builder

	if m.err != nil {
		fmt.Fprintf(&b, "error refreshing sessions: %v\n", m.err)
		return b.String()
	}

	fmt.Fprintln(&b, headerStyle.Render(fmt.Sprintf("%-10s %-10s %-8s %-8s %-30s %s", "SESSION", "ROLE", "MODE", "STATE", "STATUS", "LAST SEEN")))
	if len(m.rows) == 0 {
		fmt.Fprintln(&b, dimStyle.Render("no live sessions"))
	}
	for i, r := range m.rows {
		stateStyle := lipgloss.NewStyle().Foreground(stateColors[r.State])
		line := fmt.Sprintf("%-10s %-10s %-8s %-8s %-30s %s",
			shortID(r.ID), r.Role, r.Mode, stateStyle.Render(r.State), truncate(r.StatusText, 30), r.LastSeen.Format("15:04:05"))
		if i == m.cursor {
			line = selectedStyle.Render("▸ " + line)
		} else {
			line = "  " + line
		}
		fmt.Fprintln(&b, line)
	}

	if m.showHelp {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, m.help.View(m.keys))
	} else {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, dimStyle.Render("? toggle help · q quit"))
	}

	return b.String()
}

func shortID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
