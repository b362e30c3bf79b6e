package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// Session states. A session is live iff ended_at IS NULL; current_state
// further distinguishes idle from actively-working live sessions.
const (
	StateIdle  = "idle"
	StateActive = "active"
	StateEnded = "ended"
)

// ChiefConversationID is the reserved, eternal conversation id for the
// Chief. At most one live session may carry it at a time.
const ChiefConversationID = "chief"

// Session is a row in the sessions table — one tmux pane running an agent.
type Session struct {
	ID                 string
	Role               string
	Mode               string
	TmuxPane           string
	TranscriptPath     string
	ConversationID     string
	ParentSessionID    string
	MissionExecutionID string
	SubscribedBy       string
	HasPinged          bool
	CurrentState       string
	Cwd                string
	Description        string
	SpecPath           string
	StatusText         string
	ContextWarningLevel int
	StartedAt          time.Time
	LastSeenAt         time.Time
	EndedAt            *time.Time
	EndReason          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsLive reports whether the session has not yet ended.
func (s Session) IsLive() bool { return s.EndedAt == nil }

const sessionColumns = `id, role, mode, tmux_pane, transcript_path, conversation_id,
	parent_session_id, mission_execution_id, subscribed_by, has_pinged, current_state,
	cwd, description, spec_path, status_text, context_warning_level,
	started_at, last_seen_at, ended_at, end_reason, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	var tmuxPane, transcript, conv, parent, missionExec, subscribedBy sql.NullString
	var cwd, desc, spec, status, lastSeen, endedAt, endReason sql.NullString
	var hasPinged int
	var startedAt, createdAt, updatedAt string

	if err := row.Scan(&s.ID, &s.Role, &s.Mode, &tmuxPane, &transcript, &conv,
		&parent, &missionExec, &subscribedBy, &hasPinged, &s.CurrentState,
		&cwd, &desc, &spec, &status, &s.ContextWarningLevel,
		&startedAt, &lastSeen, &endedAt, &endReason, &createdAt, &updatedAt); err != nil {
		return s, err
	}
	s.TmuxPane = tmuxPane.String
	s.TranscriptPath = transcript.String
	s.ConversationID = conv.String
	s.ParentSessionID = parent.String
	s.MissionExecutionID = missionExec.String
	s.SubscribedBy = subscribedBy.String
	s.HasPinged = hasPinged != 0
	s.Cwd = cwd.String
	s.Description = desc.String
	s.SpecPath = spec.String
	s.StatusText = status.String
	s.EndReason = endReason.String
	s.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if lastSeen.Valid {
		s.LastSeenAt, _ = time.Parse(time.RFC3339, lastSeen.String)
	}
	if endedAt.Valid {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err == nil {
			s.EndedAt = &t
		}
	}
	return s, nil
}

// RegisterParams are the fields a caller supplies to Register. Fields left
// zero-valued are preserved on revival rather than clobbered.
type RegisterParams struct {
	SessionID          string
	Role               string
	Mode               string
	Pane               string
	TranscriptPath     string
	ConversationID     string
	ParentSessionID    string
	MissionExecutionID string
	Cwd                string
	Description        string
	SpecPath           string
}

// Register upserts a session row. On conflict the row is revived: ended_at
// and end_reason are cleared, current_state resets to idle, and the
// caller's non-empty fields overwrite the stored ones while empty fields
// are left as they were (COALESCE against the excluded values handles
// this in one statement).
func (s *Store) Register(p RegisterParams) error {
	if p.Mode == "" {
		p.Mode = "interactive"
	}
	conversationID := p.ConversationID
	if p.Role == "chief" && conversationID == "" {
		conversationID = ChiefConversationID
	}
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, role, mode, tmux_pane, transcript_path, conversation_id,
			parent_session_id, mission_execution_id, current_state, cwd, description, spec_path,
			started_at, last_seen_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'idle', ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			mode = excluded.mode,
			tmux_pane = COALESCE(NULLIF(excluded.tmux_pane, ''), sessions.tmux_pane),
			transcript_path = COALESCE(NULLIF(excluded.transcript_path, ''), sessions.transcript_path),
			conversation_id = COALESCE(NULLIF(excluded.conversation_id, ''), sessions.conversation_id),
			parent_session_id = COALESCE(NULLIF(excluded.parent_session_id, ''), sessions.parent_session_id),
			mission_execution_id = COALESCE(NULLIF(excluded.mission_execution_id, ''), sessions.mission_execution_id),
			cwd = COALESCE(NULLIF(excluded.cwd, ''), sessions.cwd),
			description = COALESCE(NULLIF(excluded.description, ''), sessions.description),
			spec_path = COALESCE(NULLIF(excluded.spec_path, ''), sessions.spec_path),
			current_state = 'idle',
			ended_at = NULL,
			end_reason = NULL,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at`,
		p.SessionID, p.Role, p.Mode, p.Pane, p.TranscriptPath, conversationID,
		p.ParentSessionID, p.MissionExecutionID, p.Cwd, p.Description, p.SpecPath,
		now, now, now, now)
	return err
}

// ReconcilePane atomically ends any prior live session claiming pane
// (end_reason="pane_reused") before the caller proceeds to Register the
// new occupant, enforcing the invariant that a pane maps to at most one
// live session.
func (s *Store) ReconcilePane(pane string) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET ended_at = ?, end_reason = 'pane_reused', current_state = 'ended', updated_at = ?
		WHERE tmux_pane = ? AND ended_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), pane)
	return err
}

// MarkIdle sets current_state=idle and bumps last_seen_at.
func (s *Store) MarkIdle(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE sessions SET current_state = 'idle', last_seen_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

// MarkActive sets current_state=active and bumps last_seen_at — used by
// the `status` lifecycle primitive.
func (s *Store) MarkActive(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE sessions SET current_state = 'active', last_seen_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

// End marks a session as ended.
func (s *Store) End(id, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE sessions SET ended_at = ?, end_reason = ?, current_state = 'ended', updated_at = ? WHERE id = ?`,
		now, reason, now, id)
	return err
}

// GetByPane returns the most recent live row claiming pane, or ErrNotFound.
func (s *Store) GetByPane(pane string) (Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE tmux_pane = ? AND ended_at IS NULL ORDER BY started_at DESC LIMIT 1`, pane)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// GetSession fetches one session by id.
func (s *Store) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// ListLiveSessions returns every session with no ended_at, ordered by
// start time — used by the Context Monitor and the status view.
func (s *Store) ListLiveSessions() ([]Session, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions WHERE ended_at IS NULL ORDER BY started_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListLiveSessionsByRole filters ListLiveSessions by role.
func (s *Store) ListLiveSessionsByRole(role string) ([]Session, error) {
	rows, err := s.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE ended_at IS NULL AND role = ? ORDER BY started_at ASC`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetLiveChiefConversation returns the sole live session for the reserved
// Chief conversation id, if any.
func (s *Store) GetLiveChiefConversation() (Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE ended_at IS NULL AND conversation_id = ? ORDER BY started_at DESC LIMIT 1`, ChiefConversationID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// SetSubscribedBy records which Chief session wants a specialist's
// replies auto-injected.
func (s *Store) SetSubscribedBy(id, chiefSessionID string) error {
	_, err := s.db.Exec(`UPDATE sessions SET subscribed_by = ?, updated_at = ? WHERE id = ?`,
		chiefSessionID, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// SetHasPinged marks the background-mode one-shot notification flag.
func (s *Store) SetHasPinged(id string, pinged bool) error {
	_, err := s.db.Exec(`UPDATE sessions SET has_pinged = ?, updated_at = ? WHERE id = ?`, boolToInt(pinged), time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// SetStatusText updates the free-text status line set by the `status` tool.
func (s *Store) SetStatusText(id, text string) error {
	_, err := s.db.Exec(`UPDATE sessions SET status_text = ?, updated_at = ? WHERE id = ?`, text, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// SetContextWarningLevel records the highest context-usage threshold a
// session has already been warned about, so the Context Monitor never
// sends the same warning twice.
func (s *Store) SetContextWarningLevel(id string, level int) error {
	_, err := s.db.Exec(`UPDATE sessions SET context_warning_level = ?, updated_at = ? WHERE id = ?`, level, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// SetConversationID records the underlying agent conversation id, carried
// across a handoff so /resume-style continuity works for the successor.
func (s *Store) SetConversationID(id, conversationID string) error {
	_, err := s.db.Exec(`UPDATE sessions SET conversation_id = ?, updated_at = ? WHERE id = ?`, conversationID, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

// SetTmuxPane records the tmux pane backing a session once it is spawned.
func (s *Store) SetTmuxPane(id, pane string) error {
	_, err := s.db.Exec(`UPDATE sessions SET tmux_pane = ?, updated_at = ? WHERE id = ?`, pane, time.Now().UTC().Format(time.RFC3339), id)
	return err
}
