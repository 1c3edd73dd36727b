package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"mezzenger/codec"
)

// FileSnapshotter persists the retention table to a single local file,
// rewritten atomically (write to a temp file, then rename) so a crash
// mid-write never leaves a half-written, unreadable snapshot behind.
type FileSnapshotter struct {
	path  string
	codec *codec.Codec
}

// NewFileSnapshotter returns a snapshotter backed by path, serializing
// retained messages with c.
func NewFileSnapshotter(path string, c *codec.Codec) *FileSnapshotter {
	return &FileSnapshotter{path: path, codec: c}
}

// Save writes the entire table to a temp file in the same directory as path,
// then renames it into place. Rename is atomic on POSIX filesystems, so
// readers never observe a partial file.
func (f *FileSnapshotter) Save(t Table) error {
	data, err := encodeTable(f.codec, t)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("persist: creating temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("persist: writing temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persist: closing temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("persist: renaming temp snapshot file into place: %w", err)
	}
	return nil
}

// Load reads the persisted table. If path does not exist, Load returns an
// empty table and a nil error — no persist file is configured is a distinct
// case handled by the broker (Snapshotter is simply not constructed then).
// If the file exists but cannot be read or parsed, Load returns an error,
// which the broker treats as a fatal startup condition.
func (f *FileSnapshotter) Load() (Table, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Table{}, nil
		}
		return nil, fmt.Errorf("persist: reading snapshot file %s: %w", f.path, err)
	}
	return decodeTable(f.codec, data)
}
