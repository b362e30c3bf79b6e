// Package config loads the engine's TOML configuration and resolves the
// on-disk layout of a town: the root directory that holds the database,
// the duty/mission prompt library, and per-role settings.
package config

import (
	"os"
	"path/filepath"
)

// Layout holds the resolved filesystem paths for a running town.
//
// A town root looks like:
//
//	<root>/
//	  engine.toml          # Engine config (poll intervals, timeouts, tmux session name)
//	  roles.toml           # Role capability records
//	  town.db              # SQLite store (sessions, duties, missions, triggers, replies)
//	  duties/<slug>.md     # Duty prompt files
//	  missions/<slug>.md   # Mission prompt templates
//	  Desktop/working/     # Chief's scratch workspace, watched by the Filesystem Watcher
//	  Desktop/TODAY.md     # Running timeline/open-loops log, read into handoff context
//	  Desktop/MEMORY.md    # Durable cross-session notes, read into handoff context
//	  conversations/<id>/reply.txt  # Specialist reply files, watched for auto-injection
//	  .claude/roles/<role>/role.md       # Role definition, read into handoff context
//	  .claude/roles/<role>/<mode>.md     # Mode definition, read into handoff context
//	  handoffs/<id>.md     # Auto-generated handoff templates, filled in by the summarizer
type Layout struct {
	Root                 string
	EngineConfig         string
	RolesConfig          string
	DBPath               string
	DutiesDir            string
	MissionsDir          string
	WorkingDir           string
	TodayFile            string
	MemoryFile           string
	RolesDir             string
	HandoffsDir          string
	ConversationsDirPath string
}

// RoleFile returns the path to a role's definition file.
func (l *Layout) RoleFile(role string) string {
	return filepath.Join(l.RolesDir, role, "role.md")
}

// ModeFile returns the path to a role's mode definition file.
func (l *Layout) ModeFile(role, mode string) string {
	return filepath.Join(l.RolesDir, role, mode+".md")
}

// ConversationsDir returns the root directory the Filesystem Watcher
// scans for conversations/<id>/reply.txt changes.
func (l *Layout) ConversationsDir() string {
	return l.ConversationsDirPath
}

// DefaultRoot returns the default town root: $TOWNCTL_HOME, or ~/town if unset.
func DefaultRoot() string {
	if root := os.Getenv("TOWNCTL_HOME"); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "town"
	}
	return filepath.Join(home, "town")
}

// NewLayout resolves the standard sub-paths under a town root.
func NewLayout(root string) *Layout {
	return &Layout{
		Root:                 root,
		EngineConfig:         filepath.Join(root, "engine.toml"),
		RolesConfig:          filepath.Join(root, "roles.toml"),
		DBPath:               filepath.Join(root, "town.db"),
		DutiesDir:            filepath.Join(root, "duties"),
		MissionsDir:          filepath.Join(root, "missions"),
		WorkingDir:           filepath.Join(root, "Desktop", "working"),
		TodayFile:            filepath.Join(root, "Desktop", "TODAY.md"),
		MemoryFile:           filepath.Join(root, "Desktop", "MEMORY.md"),
		RolesDir:             filepath.Join(root, ".claude", "roles"),
		HandoffsDir:          filepath.Join(root, "handoffs"),
		ConversationsDirPath: filepath.Join(root, "conversations"),
	}
}

// EnsureDirs creates every directory in the layout that must exist before
// the daemon starts.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.Root, l.DutiesDir, l.MissionsDir, l.WorkingDir, l.HandoffsDir, l.ConversationsDirPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
