package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Role is a capability record: the set of things a session of this role
// is allowed and expected to do. Roles are looked up by name rather than
// modeled as a class hierarchy — dispatch on the role string is explicit
// everywhere a role matters (session spawn, mission default, handoff
// target resolution), rather than implicit in a type's method set.
type Role struct {
	Name          string   `toml:"name"`
	DefaultModel  string   `toml:"default_model"`
	AllowedTools  []string `toml:"allowed_tools"`
	AutoInclude   []string `toml:"auto_include"` // loaded from roles.toml; no spawn path appends these files to a prompt
	Autonomous    bool     `toml:"autonomous"`   // loaded from roles.toml; the Context Monitor's offset is keyed on session mode, not this flag
}

// RoleTable maps role name to its capability record.
type RoleTable map[string]Role

// DefaultRoles returns the built-in roles every town needs regardless of
// roles.toml: the Chief (eternal primary session), a generic specialist
// that Get falls back to for unknown role names, the summarizer used by
// the handoff pipeline's stage 1, and a mission role.
func DefaultRoles() RoleTable {
	return RoleTable{
		"chief": {
			Name:         "chief",
			DefaultModel: "",
			AllowedTools: []string{"*"},
			Autonomous:   false,
		},
		"specialist": {
			Name:         "specialist",
			DefaultModel: "",
			AllowedTools: []string{"*"},
			Autonomous:   false,
		},
		"summarizer": {
			Name:         "summarizer",
			DefaultModel: "",
			AllowedTools: []string{"Read", "Edit", "Write"},
			Autonomous:   true,
		},
		"mission": {
			Name:         "mission",
			DefaultModel: "",
			AllowedTools: []string{"*"},
			Autonomous:   true,
		},
	}
}

// LoadRoles reads roles.toml at path and overlays it onto DefaultRoles().
// A missing file is not an error.
func LoadRoles(path string) (RoleTable, error) {
	table := DefaultRoles()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return table, nil
	}

	var doc struct {
		Role []Role `toml:"role"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return table, err
	}
	for _, r := range doc.Role {
		if r.Name == "" {
			continue
		}
		table[r.Name] = r
	}
	return table, nil
}

// Get returns the named role, falling back to "specialist" if unknown —
// an unrecognized role name should never block a session from starting.
func (t RoleTable) Get(name string) Role {
	if r, ok := t[name]; ok {
		return r
	}
	return t["specialist"]
}
