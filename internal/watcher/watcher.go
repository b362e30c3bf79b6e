// Package watcher is the Filesystem Watcher: a single debounced recursive
// watch over a short allowlist of subtrees, filtered to drop noise (hidden
// directories, build caches, editor atomic-write and lock files), that
// republishes every surviving change onto the event bus and recognizes
// two special cases — a small trigger-file set that should cause a
// SYSTEM-INDEX refresh, and conversation reply files that belong to the
// Reply Auto-Injector.
//
// Grounded on the sidecar claudecode adapter's fsnotify-plus-debounce
// loop, generalized from a single directory to an allowlist and from a
// single suffix filter to the full exclude-list this module's spec calls
// for.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spartypkp/townctl/internal/eventbus"
)

// Kind is the native change classified down to the three kinds this
// module cares about.
type Kind string

const (
	KindCreated  Kind = "created"
	KindModified Kind = "modified"
	KindDeleted  Kind = "deleted"
)

// TriggerFiles is the small set of filenames whose change should cause a
// SYSTEM-INDEX.md refresh, regardless of which watched subtree they live
// under.
var TriggerFiles = map[string]bool{
	"LIFE-SPEC.md":   true,
	"APP-SPEC.md":    true,
	"SYSTEM-SPEC.md": true,
	"manifest.yaml":  true,
	"role.md":        true,
}

// allowedHiddenDirs are hidden (dot-prefixed) directories that are not
// excluded by the hidden-directory filter.
var allowedHiddenDirs = map[string]bool{
	".claude": true,
}

var excludedSuffixes = []string{
	".tmp", ".swp", ".swo", "~", ".lock",
}

var excludedDirParts = []string{
	"node_modules", ".cache", "__pycache__", "dist", "build", ".venv",
}

// Change is one filtered, classified filesystem event.
type Change struct {
	Path string
	Kind Kind
}

// Watcher recursively watches a fixed set of root directories and
// publishes filtered, classified changes to an event bus.
type Watcher struct {
	fsw     *fsnotify.Watcher
	bus     *eventbus.Bus
	debounce time.Duration
	logger  *slog.Logger

	onIndexRefresh func()
	onReply        func(conversationID, path string)
}

// New creates a Watcher rooted at roots, recursively adding every
// subdirectory that survives the exclude filter. debounce coalesces
// rapid-fire editor atomic-write sequences into a single published event
// per path.
func New(roots []string, bus *eventbus.Bus, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{fsw: fsw, bus: bus, debounce: debounce, logger: logger}

	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			logger.Warn("watcher: failed to add root", "root", root, "error", err)
		}
	}
	return w, nil
}

// OnIndexRefresh registers the callback invoked when a trigger-set file
// changes. Only one callback is supported; later calls replace it.
func (w *Watcher) OnIndexRefresh(fn func()) { w.onIndexRefresh = fn }

// OnReply registers the callback invoked when a conversations/<id>/reply.txt
// file changes.
func (w *Watcher) OnReply(fn func(conversationID, path string)) { w.onReply = fn }

func (w *Watcher) addRecursive(root string) error {
	if isExcludedDir(root) {
		return nil
	}
	if err := w.fsw.Add(root); err != nil {
		return err
	}
	entries, err := readDirNames(root)
	if err != nil {
		return nil // root may not exist yet; that's fine, not fatal
	}
	for _, name := range entries {
		w.addRecursive(filepath.Join(root, name))
	}
	return nil
}

// Run blocks, processing fsnotify events until stop is closed.
func (w *Watcher) Run(stop <-chan struct{}) {
	defer w.fsw.Close()

	pending := make(map[string]*time.Timer)
	fire := make(chan fsnotify.Event, 256)

	for {
		select {
		case <-stop:
			for _, t := range pending {
				t.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if isExcludedPath(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if isExcludedDir(ev.Name) {
					continue
				}
				_ = w.fsw.Add(ev.Name) // no-op if not a directory
			}
			if t, exists := pending[ev.Name]; exists {
				t.Stop()
			}
			evCopy := ev
			pending[ev.Name] = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- evCopy:
				default:
				}
			})

		case ev := <-fire:
			delete(pending, ev.Name)
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	kind, ok := classify(ev.Op)
	if !ok {
		return
	}

	eventType := eventbus.EventFileModified
	switch kind {
	case KindCreated:
		eventType = eventbus.EventFileCreated
	case KindDeleted:
		eventType = eventbus.EventFileRemoved
	}
	w.bus.Publish(eventType, map[string]any{
		"path": ev.Name,
		"kind": string(kind),
	})

	base := filepath.Base(ev.Name)
	if TriggerFiles[base] && w.onIndexRefresh != nil {
		w.onIndexRefresh()
	}

	if base == "reply.txt" && w.onReply != nil {
		if convID, ok := conversationIDFromReplyPath(ev.Name); ok {
			w.onReply(convID, ev.Name)
		}
	}
}

func classify(op fsnotify.Op) (Kind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return KindCreated, true
	case op&fsnotify.Write != 0:
		return KindModified, true
	case op&fsnotify.Remove != 0, op&fsnotify.Rename != 0:
		return KindDeleted, true
	default:
		return "", false
	}
}

// conversationIDFromReplyPath extracts <id> from a path ending in
// .../conversations/<id>/reply.txt.
func conversationIDFromReplyPath(path string) (string, bool) {
	dir := filepath.Dir(path)
	parent := filepath.Base(filepath.Dir(dir))
	if parent != "conversations" {
		return "", false
	}
	return filepath.Base(dir), true
}

func isExcludedPath(path string) bool {
	base := filepath.Base(path)
	for _, suf := range excludedSuffixes {
		if strings.HasSuffix(base, suf) {
			return true
		}
	}
	return false
}

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func isExcludedDir(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") && !allowedHiddenDirs[base] {
		return true
	}
	for _, part := range excludedDirParts {
		if base == part {
			return true
		}
	}
	return false
}
