package store

import (
	"database/sql"
	"errors"
	"time"
)

// Handoff statuses. Transitions are monotonic: pending -> executing ->
// {complete, failed}.
const (
	HandoffStatusPending   = "pending"
	HandoffStatusExecuting = "executing"
	HandoffStatusComplete  = "complete"
	HandoffStatusFailed    = "failed"
)

// Handoff is a row in the handoffs table. It snapshots the dying
// session's role/mode/pane/conversation provenance at creation time, since
// by the time the executor stage runs, the old session row may already be
// ended.
type Handoff struct {
	ID                 string
	SessionID          string
	Role               string
	Mode               string
	TmuxPane           string
	TranscriptPath     string
	ConversationID     string
	ParentSessionID    string
	MissionExecutionID string
	NewSessionID       string // successor session id, set once spawned
	Reason             string
	HandoffPath        string // XOR with HandoffInline
	HandoffInline      string
	NeedsSummary       bool // true when neither was caller-supplied; the summarizer stage fills HandoffPath in
	Status             string
	RequestedAt        time.Time
	ExecutedAt         *time.Time
	CompletedAt        *time.Time
	Error              string
}

const handoffColumns = `id, session_id, role, mode, tmux_pane, transcript_path, conversation_id,
	parent_session_id, mission_execution_id, successor_session_id, reason,
	handoff_path, handoff_inline, needs_summary, status, requested_at, executed_at, completed_at, error_message`

func scanHandoff(row interface{ Scan(...any) error }) (Handoff, error) {
	var h Handoff
	var role, mode, pane, transcript, conv, parent, missionExec, successor sql.NullString
	var reason, path, inline, executedAt, completedAt, errMsg sql.NullString
	var needsSummary int
	var requestedAt string

	if err := row.Scan(&h.ID, &h.SessionID, &role, &mode, &pane, &transcript, &conv,
		&parent, &missionExec, &successor, &reason,
		&path, &inline, &needsSummary, &h.Status, &requestedAt, &executedAt, &completedAt, &errMsg); err != nil {
		return h, err
	}
	h.Role = role.String
	h.Mode = mode.String
	h.TmuxPane = pane.String
	h.TranscriptPath = transcript.String
	h.ConversationID = conv.String
	h.ParentSessionID = parent.String
	h.MissionExecutionID = missionExec.String
	h.NewSessionID = successor.String
	h.Reason = reason.String
	h.HandoffPath = path.String
	h.HandoffInline = inline.String
	h.NeedsSummary = needsSummary != 0
	h.Error = errMsg.String
	h.RequestedAt, _ = time.Parse(time.RFC3339, requestedAt)
	if executedAt.Valid {
		t, err := time.Parse(time.RFC3339, executedAt.String)
		if err == nil {
			h.ExecutedAt = &t
		}
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err == nil {
			h.CompletedAt = &t
		}
	}
	return h, nil
}

// CreateHandoffParams captures the dying session's provenance at the
// moment a handoff is requested, per the Handoff data model's
// handoff_path XOR handoff_inline pointer to the summary content.
type CreateHandoffParams struct {
	ID            string
	Session       Session
	Reason        string
	HandoffPath   string
	HandoffInline string
	NeedsSummary  bool
}

// CreateHandoff inserts a new pending handoff, snapshotting the session's
// role/mode/pane/conversation provenance so the executor stage doesn't
// need to re-query a session that may already be ended.
func (s *Store) CreateHandoff(p CreateHandoffParams) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO handoffs (id, session_id, role, mode, tmux_pane, transcript_path, conversation_id,
			parent_session_id, mission_execution_id, reason, handoff_path, handoff_inline, needs_summary,
			status, requested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
		p.ID, p.Session.ID, p.Session.Role, p.Session.Mode, p.Session.TmuxPane, p.Session.TranscriptPath, p.Session.ConversationID,
		p.Session.ParentSessionID, p.Session.MissionExecutionID, p.Reason, p.HandoffPath, p.HandoffInline, boolToInt(p.NeedsSummary),
		now)
	return err
}

// GetHandoff fetches one handoff by id.
func (s *Store) GetHandoff(id string) (Handoff, error) {
	row := s.db.QueryRow(`SELECT `+handoffColumns+` FROM handoffs WHERE id = ?`, id)
	h, err := scanHandoff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Handoff{}, ErrNotFound
	}
	return h, err
}

// GetPendingOrExecutingHandoffForSession returns the in-flight handoff for
// a session, if any. The Context Monitor calls this before requesting a
// new handoff, guarding against firing a second one while the first is
// still summarizing or executing.
func (s *Store) GetPendingOrExecutingHandoffForSession(sessionID string) (Handoff, error) {
	row := s.db.QueryRow(`SELECT `+handoffColumns+` FROM handoffs
		WHERE session_id = ? AND status IN ('pending', 'executing')
		ORDER BY requested_at DESC LIMIT 1`, sessionID)
	h, err := scanHandoff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Handoff{}, ErrNotFound
	}
	return h, err
}

// MarkHandoffExecuting advances pending -> executing.
func (s *Store) MarkHandoffExecuting(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE handoffs SET status = 'executing', executed_at = ? WHERE id = ? AND status = 'pending'`, now, id)
	return err
}

// CompleteHandoff advances executing -> complete, recording the successor
// session id.
func (s *Store) CompleteHandoff(id, newSessionID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE handoffs SET status = 'complete', successor_session_id = ?, completed_at = ? WHERE id = ?`,
		newSessionID, now, id)
	return err
}

// FailHandoff advances pending/executing -> failed.
func (s *Store) FailHandoff(id, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE handoffs SET status = 'failed', error_message = ?, completed_at = ? WHERE id = ?`, errMsg, now, id)
	return err
}

// ListHandoffsForSession returns every handoff recorded for a session,
// most recent first.
func (s *Store) ListHandoffsForSession(sessionID string) ([]Handoff, error) {
	rows, err := s.db.Query(`SELECT `+handoffColumns+` FROM handoffs WHERE session_id = ? ORDER BY requested_at DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Handoff
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
