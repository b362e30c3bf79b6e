package store

import (
	"database/sql"
	"errors"
	"time"
)

// Mission is a user- or core-defined background task that spawns a
// specialist session (role != "chief"), unlike a Duty which runs inside
// the Chief. Schedule may be manual, a daily schedule_time, a cron
// expression, or trigger-driven (calendar, event).
type Mission struct {
	ID             string
	Slug           string
	Name           string
	Description    string
	PromptFile     string
	PromptInline   string
	ScheduleType   string // manual, daily, cron, trigger
	ScheduleCron   string
	ScheduleTime   string
	ScheduleDays   string
	TriggerType    string
	TriggerConfig  string
	TimeoutMinutes int
	Role           string
	Mode           string
	Source         string // core_default, custom_app, user
	Enabled        bool
	LastRun        *time.Time
	LastStatus     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MissionExecution is one run of a Mission.
type MissionExecution struct {
	ID              string
	MissionID       string
	MissionSlug     string
	SessionID       string
	StartedAt       time.Time
	EndedAt         *time.Time
	Status          string
	OutputSummary   string
	ErrorMessage    string
	DurationSeconds *int
}

const missionColumns = `id, slug, name, description, prompt_file, prompt_inline,
	schedule_type, schedule_cron, schedule_time, schedule_days, trigger_type, trigger_config,
	timeout_minutes, role, mode, source, enabled, last_run, last_status, created_at, updated_at`

func scanMission(row interface{ Scan(...any) error }) (Mission, error) {
	var m Mission
	var desc, promptFile, promptInline, cron, sched, days, trigType, trigCfg, lastRun, lastStatus sql.NullString
	var enabled int
	var createdAt, updatedAt string
	if err := row.Scan(&m.ID, &m.Slug, &m.Name, &desc, &promptFile, &promptInline,
		&m.ScheduleType, &cron, &sched, &days, &trigType, &trigCfg,
		&m.TimeoutMinutes, &m.Role, &m.Mode, &m.Source, &enabled, &lastRun, &lastStatus,
		&createdAt, &updatedAt); err != nil {
		return m, err
	}
	m.Description = desc.String
	m.PromptFile = promptFile.String
	m.PromptInline = promptInline.String
	m.ScheduleCron = cron.String
	m.ScheduleTime = sched.String
	m.ScheduleDays = days.String
	m.TriggerType = trigType.String
	m.TriggerConfig = trigCfg.String
	m.Enabled = enabled != 0
	m.LastStatus = lastStatus.String
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if lastRun.Valid {
		t, err := time.Parse(time.RFC3339, lastRun.String)
		if err == nil {
			m.LastRun = &t
		}
	}
	return m, nil
}

// UpsertMission inserts or replaces a mission by slug.
func (s *Store) UpsertMission(m Mission) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if m.Role == "" {
		m.Role = "specialist"
	}
	if m.Mode == "" {
		m.Mode = "mission"
	}
	if m.TimeoutMinutes == 0 {
		m.TimeoutMinutes = 45
	}
	_, err := s.db.Exec(`
		INSERT INTO missions (id, slug, name, description, prompt_file, prompt_inline,
			schedule_type, schedule_cron, schedule_time, schedule_days, trigger_type, trigger_config,
			timeout_minutes, role, mode, source, enabled, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(slug) DO UPDATE SET
			name=excluded.name, description=excluded.description, prompt_file=excluded.prompt_file,
			prompt_inline=excluded.prompt_inline, schedule_type=excluded.schedule_type,
			schedule_cron=excluded.schedule_cron, schedule_time=excluded.schedule_time,
			schedule_days=excluded.schedule_days, trigger_type=excluded.trigger_type,
			trigger_config=excluded.trigger_config, timeout_minutes=excluded.timeout_minutes,
			role=excluded.role, mode=excluded.mode, updated_at=excluded.updated_at`,
		m.ID, m.Slug, m.Name, m.Description, m.PromptFile, m.PromptInline,
		m.ScheduleType, m.ScheduleCron, m.ScheduleTime, m.ScheduleDays, m.TriggerType, m.TriggerConfig,
		m.TimeoutMinutes, m.Role, m.Mode, m.Source, boolToInt(m.Enabled), now, now)
	return err
}

// ListMissions returns every mission, optionally filtered to enabled ones.
func (s *Store) ListMissions(enabledOnly bool) ([]Mission, error) {
	q := `SELECT ` + missionColumns + ` FROM missions`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY slug ASC`
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMissionBySlug fetches a mission by slug.
func (s *Store) GetMissionBySlug(slug string) (Mission, error) {
	row := s.db.QueryRow(`SELECT `+missionColumns+` FROM missions WHERE slug = ?`, slug)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Mission{}, ErrNotFound
	}
	return m, err
}

// SetMissionEnabled enables or disables a mission.
func (s *Store) SetMissionEnabled(slug string, enabled bool) error {
	_, err := s.db.Exec(`UPDATE missions SET enabled = ?, updated_at = ? WHERE slug = ?`,
		boolToInt(enabled), time.Now().UTC().Format(time.RFC3339), slug)
	return err
}

// UpdateMissionLastRun records the outcome of the most recent execution.
func (s *Store) UpdateMissionLastRun(missionID, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`UPDATE missions SET last_run = ?, last_status = ?, updated_at = ? WHERE id = ?`,
		now, status, now, missionID)
	return err
}

// CreateMissionExecution starts a new execution record.
func (s *Store) CreateMissionExecution(id, missionID, missionSlug string) error {
	_, err := s.db.Exec(`
		INSERT INTO mission_executions (id, mission_id, mission_slug, started_at, status)
		VALUES (?, ?, ?, ?, 'running')`,
		id, missionID, missionSlug, time.Now().UTC().Format(time.RFC3339))
	return err
}

// SetMissionExecutionSession records the spawned session id.
func (s *Store) SetMissionExecutionSession(id, sessionID string) error {
	_, err := s.db.Exec(`UPDATE mission_executions SET session_id = ? WHERE id = ?`, sessionID, id)
	return err
}

// GetMissionExecutionMissionID returns the mission_id an execution
// belongs to, so a completion handler given only an execution_id can
// still update the owning mission's last_run.
func (s *Store) GetMissionExecutionMissionID(id string) (string, error) {
	row := s.db.QueryRow(`SELECT mission_id FROM mission_executions WHERE id = ?`, id)
	var missionID string
	if err := row.Scan(&missionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return missionID, nil
}

// CompleteMissionExecution closes out an execution with a terminal status,
// persisting the agent's closing summary alongside it.
func (s *Store) CompleteMissionExecution(id, status, summary, errMsg string) error {
	row := s.db.QueryRow(`SELECT started_at FROM mission_executions WHERE id = ?`, id)
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
		UPDATE mission_executions SET ended_at = ?, status = ?, output_summary = ?, error_message = ?, duration_seconds = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), status, summary, errMsg, duration, id)
	return err
}

// CountRunningMissionExecutions reports how many mission executions are
// in the running state. The Mission Executor's concurrency cap is its own
// channel semaphore and does not consult this count.
func (s *Store) CountRunningMissionExecutions() (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM mission_executions WHERE status = 'running'`)
	var n int
	err := row.Scan(&n)
	return n, err
}

// ListMissionExecutions returns execution history, newest first.
func (s *Store) ListMissionExecutions(slug string, limit int) ([]MissionExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, mission_id, mission_slug, session_id, started_at, ended_at, status, output_summary, error_message, duration_seconds
		FROM mission_executions`
	args := []any{}
	if slug != "" {
		q += ` WHERE mission_slug = ?`
		args = append(args, slug)
	}
	q += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MissionExecution
	for rows.Next() {
		var e MissionExecution
		var sessionID, endedAt, summary, errMsg sql.NullString
		var duration sql.NullInt64
		var startedAt string
		if err := rows.Scan(&e.ID, &e.MissionID, &e.MissionSlug, &sessionID, &startedAt, &endedAt,
			&e.Status, &summary, &errMsg, &duration); err != nil {
			return nil, err
		}
		e.SessionID = sessionID.String
		e.OutputSummary = summary.String
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
