// Package reply is the Reply Auto-Injector: the Watcher hands it a
// conversation id whenever that conversation's reply.txt changes, and it
// pushes any new entries into the subscribing Chief's pane with
// monotonic position tracking so a given entry is delivered at most once
// over the life of the subscription.
package reply

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spartypkp/townctl/internal/eventbus"
	"github.com/spartypkp/townctl/internal/session"
	"github.com/spartypkp/townctl/internal/store"
	"github.com/spartypkp/townctl/internal/tmux"
)

// Injector reacts to reply.txt changes.
type Injector struct {
	sessions *session.Registry
	store    *store.Store
	tmux     *tmux.Tmux
	bus      *eventbus.Bus
	logger   *slog.Logger
}

// New builds an Injector.
func New(sessions *session.Registry, s *store.Store, tmuxDriver *tmux.Tmux, bus *eventbus.Bus, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{sessions: sessions, store: s, tmux: tmuxDriver, bus: bus, logger: logger}
}

// HandleReplyChanged is the Watcher's callback for a changed
// conversations/<conversationID>/reply.txt. specialist is keyed by
// conversation id because that's what survives a specialist's own
// resets; path is the file that changed.
func (inj *Injector) HandleReplyChanged(conversationID, path string) {
	defer func() {
		if r := recover(); r != nil {
			inj.logger.Error("reply: handler panicked, recovering", "conversation_id", conversationID, "panic", r)
		}
	}()

	specialists, err := inj.liveSessionsForConversation(conversationID)
	if err != nil || len(specialists) == 0 {
		return
	}
	specialist := specialists[0]
	if specialist.SubscribedBy == "" {
		return // nobody asked to hear about this specialist's replies
	}

	chief, err := inj.sessions.Get(specialist.SubscribedBy)
	if err != nil || chief.TmuxPane == "" {
		return
	}

	entries, err := readEntries(path)
	if err != nil {
		inj.logger.Warn("reply: failed to read reply file", "path", path, "error", err)
		return
	}

	highest, err := inj.store.HighestInjectedPosition(conversationID)
	if err != nil {
		inj.logger.Error("reply: failed to look up highest injected position", "conversation_id", conversationID, "error", err)
		return
	}

	// Positions are 1-based; HighestInjectedPosition reports -1 when none
	// have been injected, so never start below 1.
	start := highest + 1
	if start < 1 {
		start = 1
	}
	for position := start; position <= len(entries); position++ {
		entry := entries[position-1]
		line := fmt.Sprintf("[CLAUDE OS SYS: NOTIFICATION]: Reply from %s (%s): %s",
			specialist.Role, shortID(specialist.ID), entry)

		if err := inj.tmux.InjectMessage(chief.TmuxPane, line, true); err != nil {
			inj.logger.Warn("reply: injection failed, will retry next signal", "conversation_id", conversationID, "position", position, "error", err)
			return // stop here — do not record this or later positions so the next signal retries from here
		}
		if err := inj.store.RecordReplyInjection(conversationID, position); err != nil {
			inj.logger.Error("reply: failed to record injection", "conversation_id", conversationID, "position", position, "error", err)
			return
		}
		inj.bus.Publish(eventbus.EventReplyInjected, map[string]any{
			"conversation_id": conversationID,
			"position":        position,
		})
	}
}

func (inj *Injector) liveSessionsForConversation(conversationID string) ([]store.Session, error) {
	live, err := inj.sessions.ListLive()
	if err != nil {
		return nil, err
	}
	var matches []store.Session
	for _, s := range live {
		if s.ConversationID == conversationID {
			matches = append(matches, s)
		}
	}
	return matches, nil
}

// readEntries splits a reply.txt on blank-line separators into an
// ordered, 1-based list of entries.
func readEntries(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n\n")
	var entries []string
	for _, e := range raw {
		trimmed := strings.TrimSpace(e)
		if trimmed != "" {
			entries = append(entries, trimmed)
		}
	}
	return entries, nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
