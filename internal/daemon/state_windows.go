//go:build windows

package daemon

import "os"

// IsRunning is a best-effort check on Windows: the flock in
// AcquireSingleton is a no-op there (see internal/lock), so this only
// reports what the last-written state file claims rather than probing
// the process directly. Not a production target — see internal/lock's
// equivalent caveat.
func IsRunning(root string) (bool, int, error) {
	st, err := LoadState(root)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return st.PID != 0, st.PID, nil
}
