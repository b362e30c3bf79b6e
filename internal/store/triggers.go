package store

import (
	"database/sql"
	"errors"
	"time"
)

// Trigger is a condition that fires a Mission: a schedule or a calendar
// event lookahead. Dedup state is kept per-trigger as (last event id,
// last fired timestamp) in the database, alongside the Trigger Service's
// in-memory set, so a restart does not cause an immediate re-fire storm.
type Trigger struct {
	ID               string
	Slug             string
	Kind             string // "scheduled" or "calendar"
	Config           string // JSON blob interpreted by internal/trigger
	MissionSlug      string
	Enabled          bool
	LastFiredEventID string
	LastFiredAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func scanTrigger(row interface{ Scan(...any) error }) (Trigger, error) {
	var t Trigger
	var config, missionSlug, lastEventID, lastFired sql.NullString
	var enabled int
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Slug, &t.Kind, &config, &missionSlug, &enabled,
		&lastEventID, &lastFired, &createdAt, &updatedAt); err != nil {
		return t, err
	}
	t.Config = config.String
	t.MissionSlug = missionSlug.String
	t.LastFiredEventID = lastEventID.String
	t.Enabled = enabled != 0
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if lastFired.Valid {
		parsed, err := time.Parse(time.RFC3339, lastFired.String)
		if err == nil {
			t.LastFiredAt = &parsed
		}
	}
	return t, nil
}

const triggerColumns = `id, slug, kind, config, mission_slug, enabled, last_fired_event_id, last_fired_at, created_at, updated_at`

// UpsertTrigger inserts or replaces a trigger by slug.
func (s *Store) UpsertTrigger(t Trigger) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO triggers (id, slug, kind, config, mission_slug, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			kind=excluded.kind, config=excluded.config, mission_slug=excluded.mission_slug, updated_at=excluded.updated_at`,
		t.ID, t.Slug, t.Kind, t.Config, t.MissionSlug, boolToInt(t.Enabled), now, now)
	return err
}

// ListTriggers returns every trigger, optionally filtered to enabled ones.
func (s *Store) ListTriggers(enabledOnly bool) ([]Trigger, error) {
	q := `SELECT ` + triggerColumns + ` FROM triggers`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTrigger fetches a trigger by slug.
func (s *Store) GetTrigger(slug string) (Trigger, error) {
	row := s.db.QueryRow(`SELECT `+triggerColumns+` FROM triggers WHERE slug = ?`, slug)
	t, err := scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trigger{}, ErrNotFound
	}
	return t, err
}

// MarkTriggerFired records the event id and timestamp of the firing that
// just happened, used for the (eventID, firedAt) dedup key.
func (s *Store) MarkTriggerFired(slug, eventID string, firedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE triggers SET last_fired_event_id = ?, last_fired_at = ?, updated_at = ? WHERE slug = ?`,
		eventID, firedAt.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), slug)
	return err
}
