package reply

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadEntriesSplitsOnBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.txt")
	content := "First entry\nstill first\n\nSecond entry\n\n\nThird entry\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := readEntries(path)
	if err != nil {
		t.Fatalf("readEntries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(entries), entries)
	}
	if entries[0] != "First entry\nstill first" {
		t.Errorf("entries[0] = %q", entries[0])
	}
	if entries[1] != "Second entry" {
		t.Errorf("entries[1] = %q", entries[1])
	}
	if entries[2] != "Third entry" {
		t.Errorf("entries[2] = %q", entries[2])
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abcdefghij"); got != "abcdefgh" {
		t.Errorf("shortID long = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID short = %q", got)
	}
}
