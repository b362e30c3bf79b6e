package watcher

import (
	"testing"

	"github.com/fsnotify/fsnotify"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		op   fsnotify.Op
		want Kind
		ok   bool
	}{
		{fsnotify.Create, KindCreated, true},
		{fsnotify.Write, KindModified, true},
		{fsnotify.Remove, KindDeleted, true},
		{fsnotify.Rename, KindDeleted, true},
		{fsnotify.Chmod, "", false},
	}
	for _, c := range cases {
		got, ok := classify(c.op)
		if ok != c.ok || got != c.want {
			t.Errorf("classify(%v) = (%v, %v), want (%v, %v)", c.op, got, ok, c.want, c.ok)
		}
	}
}

func TestConversationIDFromReplyPath(t *testing.T) {
	id, ok := conversationIDFromReplyPath("/data/conversations/abc123/reply.txt")
	if !ok || id != "abc123" {
		t.Errorf("got (%q, %v), want (\"abc123\", true)", id, ok)
	}
	if _, ok := conversationIDFromReplyPath("/data/notes/reply.txt"); ok {
		t.Error("expected false for non-conversations path")
	}
}

func TestIsExcludedDir(t *testing.T) {
	for _, dir := range []string{".git", ".venv", "node_modules", "dist"} {
		if !isExcludedDir("/root/project/" + dir) {
			t.Errorf("expected %q to be excluded", dir)
		}
	}
	if isExcludedDir("/root/project/.claude") {
		t.Error("expected .claude to be allowed")
	}
	if isExcludedDir("/root/project/src") {
		t.Error("expected src to be allowed")
	}
}

func TestIsExcludedPath(t *testing.T) {
	for _, p := range []string{"/tmp/foo.swp", "/tmp/foo~", "/tmp/foo.lock", "/tmp/foo.tmp"} {
		if !isExcludedPath(p) {
			t.Errorf("expected %q to be excluded", p)
		}
	}
	if isExcludedPath("/tmp/reply.txt") {
		t.Error("expected reply.txt not excluded")
	}
}

func TestTriggerFilesSet(t *testing.T) {
	for _, name := range []string{"LIFE-SPEC.md", "APP-SPEC.md", "SYSTEM-SPEC.md", "manifest.yaml", "role.md"} {
		if !TriggerFiles[name] {
			t.Errorf("expected %q in TriggerFiles", name)
		}
	}
	if TriggerFiles["notes.md"] {
		t.Error("did not expect notes.md in TriggerFiles")
	}
}
