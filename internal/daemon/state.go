package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spartypkp/townctl/internal/lock"
)

// State is the daemon's on-disk heartbeat record, read by "townctl daemon
// status" from a separate process.
type State struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

func statePath(root string) string {
	return filepath.Join(root, "daemon", "daemon.json")
}

func lockPath(root string) string {
	return filepath.Join(root, "daemon", "daemon.lock")
}

func logPath(root string) string {
	return filepath.Join(root, "daemon", "daemon.log")
}

// WriteState persists the running daemon's PID and start time.
func WriteState(root string, st State) error {
	if err := os.MkdirAll(filepath.Join(root, "daemon"), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return os.WriteFile(statePath(root), data, 0644)
}

// LoadState reads the last-written daemon state, if any.
func LoadState(root string) (State, error) {
	var st State
	data, err := os.ReadFile(statePath(root))
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(data, &st)
	return st, err
}

// AcquireSingleton takes the cross-process daemon lock so at most one
// "townctl daemon run" is active per town root at a time. The returned
// cleanup releases the lock; call it (typically via defer) before the
// process exits.
func AcquireSingleton(root string) (func(), error) {
	if err := os.MkdirAll(filepath.Join(root, "daemon"), 0755); err != nil {
		return nil, fmt.Errorf("preparing daemon dir: %w", err)
	}
	cleanup, err := lock.FlockAcquire(lockPath(root))
	if err != nil {
		return nil, fmt.Errorf("acquiring daemon lock: %w", err)
	}
	return cleanup, nil
}

// LogFile opens the daemon's append-only log file for a slog text handler.
func LogFile(root string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Join(root, "daemon"), 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath(root), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
