package store

import (
	"encoding/json"
	"time"
)

// LogSystemEvent persists a durable audit-trail copy of an event that
// passed through the in-process Event Bus. The bus itself is volatile
// (subscribers and their queues die with the process); this table is
// what lets `townctl events` show history across restarts.
func (s *Store) LogSystemEvent(eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO system_events (id, event_type, data, created_at) VALUES (?, ?, ?, ?)`,
		generateID("evt"), eventType, string(payload), time.Now().UTC().Format(time.RFC3339))
	return err
}

// SystemEventRow is one row from the audit log.
type SystemEventRow struct {
	ID        string
	EventType string
	Data      string
	CreatedAt time.Time
}

// ListRecentSystemEvents returns the most recent events, newest first.
func (s *Store) ListRecentSystemEvents(limit int) ([]SystemEventRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id, event_type, data, created_at FROM system_events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SystemEventRow
	for rows.Next() {
		var e SystemEventRow
		var createdAt string
		if err := rows.Scan(&e.ID, &e.EventType, &e.Data, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
