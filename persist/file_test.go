package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mezzenger/codec"
	"mezzenger/message"
)

func TestFileSnapshotterLoadMissingFileIsEmpty(t *testing.T) {
	s := NewFileSnapshotter(filepath.Join(t.TempDir(), "does-not-exist"), codec.New(codec.TypeBinary))
	tbl, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tbl) != 0 {
		t.Fatalf("expected empty table, got %d entries", len(tbl))
	}
}

func TestFileSnapshotterSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retention.snap")
	s := NewFileSnapshotter(path, codec.New(codec.TypeBinary))

	m1 := message.New("T", []byte("x"), 1)
	m2 := message.New("U", []byte("y"), 2)
	want := Table{
		m1.Checksum: {LastResentAt: time.Now(), Msg: m1},
		m2.Checksum: {LastResentAt: time.Now(), Msg: m2},
	}

	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for cs, wantEntry := range want {
		gotEntry, ok := got[cs]
		if !ok {
			t.Fatalf("missing entry for checksum %q", cs)
		}
		if gotEntry.Msg.Name != wantEntry.Msg.Name {
			t.Errorf("Name: want %q got %q", wantEntry.Msg.Name, gotEntry.Msg.Name)
		}
		if !gotEntry.LastResentAt.Equal(wantEntry.LastResentAt) {
			t.Errorf("LastResentAt: want %v got %v", wantEntry.LastResentAt, gotEntry.LastResentAt)
		}
	}
}

func TestFileSnapshotterLoadCorruptFileReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retention.snap")
	// count=1, followed by an 8-byte timestamp and a frame header whose
	// magic bytes don't match, so decodeTable fails on the first entry
	// instead of trying to size a map from an attacker-controlled count.
	garbage := []byte{
		0x00, 0x00, 0x00, 0x01,
		0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0,
	}
	if err := os.WriteFile(path, garbage, 0o600); err != nil {
		t.Fatalf("writing corrupt snapshot: %v", err)
	}

	s := NewFileSnapshotter(path, codec.New(codec.TypeBinary))
	if _, err := s.Load(); err == nil {
		t.Fatalf("expected Load to fail on a corrupt snapshot file")
	}
}

func TestFileSnapshotterSaveOverwritesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retention.snap")
	s := NewFileSnapshotter(path, codec.New(codec.TypeBinary))

	m1 := message.New("T", []byte("x"), 1)
	if err := s.Save(Table{m1.Checksum: {LastResentAt: time.Now(), Msg: m1}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(Table{}); err != nil {
		t.Fatalf("Save empty: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected overwrite to empty table, got %d entries", len(got))
	}
}
