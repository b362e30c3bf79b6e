package store

import (
	"database/sql"
	"errors"
	"time"
)

// Duty is a scheduled prompt that runs inside the Chief's own session
// (as opposed to a Mission, which spawns a separate specialist). Duties
// carry no next_run field: eligibility is derived fresh every poll from
// schedule_time and last_run by ShouldRunDuty.
type Duty struct {
	ID             string
	Slug           string
	Name           string
	Description    string
	ScheduleTime   string // "HH:MM", interpreted in the engine's configured zone
	PromptFile     string
	TimeoutMinutes int
	Enabled        bool
	LastRun        *time.Time
	LastStatus     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DutyExecution is one run of a Duty.
type DutyExecution struct {
	ID               string
	DutyID           string
	DutySlug         string
	StartedAt        time.Time
	EndedAt          *time.Time
	Status           string // running, completed, failed, timeout
	SessionID        string
	ErrorMessage     string
	DurationSeconds  *int
}

func scanDuty(row interface{ Scan(...any) error }) (Duty, error) {
	var d Duty
	var desc, lastRun, lastStatus sql.NullString
	var enabled int
	var createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.Slug, &d.Name, &desc, &d.ScheduleTime, &d.PromptFile,
		&d.TimeoutMinutes, &enabled, &lastRun, &lastStatus, &createdAt, &updatedAt); err != nil {
		return d, err
	}
	d.Description = desc.String
	d.Enabled = enabled != 0
	d.LastStatus = lastStatus.String
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if lastRun.Valid {
		t, err := time.Parse(time.RFC3339, lastRun.String)
		if err == nil {
			d.LastRun = &t
		}
	}
	return d, nil
}

const dutyColumns = `id, slug, name, description, schedule_time, prompt_file, timeout_minutes,
	enabled, last_run, last_status, created_at, updated_at`

// UpsertDuty inserts or replaces a duty definition by slug. Core duties
// are seeded this way at startup; it is idempotent across restarts.
func (s *Store) UpsertDuty(d Duty) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if d.TimeoutMinutes == 0 {
		d.TimeoutMinutes = 45
	}
	_, err := s.db.Exec(`
		INSERT INTO chief_duties (id, slug, name, description, schedule_time, prompt_file,
			timeout_minutes, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name, description = excluded.description,
			schedule_time = excluded.schedule_time, prompt_file = excluded.prompt_file,
			timeout_minutes = excluded.timeout_minutes, updated_at = excluded.updated_at`,
		d.ID, d.Slug, d.Name, d.Description, d.ScheduleTime, d.PromptFile,
		d.TimeoutMinutes, boolToInt(d.Enabled), now, now)
	return err
}

// ListDuties returns every duty, optionally filtered to enabled ones,
// ordered by schedule time.
func (s *Store) ListDuties(enabledOnly bool) ([]Duty, error) {
	q := `SELECT ` + dutyColumns + ` FROM chief_duties`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY schedule_time ASC`
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Duty
	for rows.Next() {
		d, err := scanDuty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDutyBySlug fetches a duty by its slug.
func (s *Store) GetDutyBySlug(slug string) (Duty, error) {
	row := s.db.QueryRow(`SELECT `+dutyColumns+` FROM chief_duties WHERE slug = ?`, slug)
	d, err := scanDuty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Duty{}, ErrNotFound
	}
	return d, err
}

// UpdateDutyLastRun records the outcome of the most recent execution.
// This single write is what makes the no-next_run scheduling self-healing:
// tomorrow's eligibility check only ever looks at this timestamp.
func (s *Store) UpdateDutyLastRun(dutyID, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE chief_duties SET last_run = ?, last_status = ?, updated_at = ? WHERE id = ?`,
		now, status, now, dutyID)
	return err
}

// SetDutyEnabled enables or disables a duty.
func (s *Store) SetDutyEnabled(slug string, enabled bool) error {
	_, err := s.db.Exec(`UPDATE chief_duties SET enabled = ?, updated_at = ? WHERE slug = ?`,
		boolToInt(enabled), time.Now().UTC().Format(time.RFC3339), slug)
	return err
}

// CreateDutyExecution starts a new execution record for a duty, in the
// running state.
func (s *Store) CreateDutyExecution(id, dutyID, dutySlug string) error {
	_, err := s.db.Exec(`
		INSERT INTO chief_duty_executions (id, duty_id, duty_slug, started_at, status)
		VALUES (?, ?, ?, ?, 'running')`,
		id, dutyID, dutySlug, time.Now().UTC().Format(time.RFC3339))
	return err
}

// SetDutyExecutionSession records which session carried out the execution.
func (s *Store) SetDutyExecutionSession(id, sessionID string) error {
	_, err := s.db.Exec(`UPDATE chief_duty_executions SET session_id = ? WHERE id = ?`, sessionID, id)
	return err
}

// CompleteDutyExecution closes out an execution with a terminal status,
// computing duration from started_at.
func (s *Store) CompleteDutyExecution(id, status, errMsg string) error {
	row := s.db.QueryRow(`SELECT started_at FROM chief_duty_executions WHERE id = ?`, id)
	var startedAt string
	if err := row.Scan(&startedAt); err != nil {
		return err
	}
	var duration *int
	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		d := int(time.Since(t).Seconds())
		duration = &d
	}
	_, err := s.db.Exec(`
		UPDATE chief_duty_executions SET ended_at = ?, status = ?, error_message = ?, duration_seconds = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), status, errMsg, duration, id)
	return err
}

// ListDutyExecutions returns execution history, newest first, optionally
// filtered by slug.
func (s *Store) ListDutyExecutions(slug string, limit int) ([]DutyExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, duty_id, duty_slug, started_at, ended_at, status, session_id, error_message, duration_seconds
		FROM chief_duty_executions`
	args := []any{}
	if slug != "" {
		q += ` WHERE duty_slug = ?`
		args = append(args, slug)
	}
	q += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DutyExecution
	for rows.Next() {
		var e DutyExecution
		var endedAt, sessionID, errMsg sql.NullString
		var duration sql.NullInt64
		var startedAt string
		if err := rows.Scan(&e.ID, &e.DutyID, &e.DutySlug, &startedAt, &endedAt, &e.Status,
			&sessionID, &errMsg, &duration); err != nil {
			return nil, err
		}
		e.SessionID = sessionID.String
		e.ErrorMessage = errMsg.String
		e.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if endedAt.Valid {
			t, _ := time.Parse(time.RFC3339, endedAt.String)
			e.EndedAt = &t
		}
		if duration.Valid {
			d := int(duration.Int64)
			e.DurationSeconds = &d
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
