package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskBackend persists entries as JSON files in a directory, one file per
// key. Writes go through a temp file plus rename so a concurrent session
// never observes a partial entry.
type DiskBackend struct {
	dir string
}

// NewDiskBackend creates (if needed) and uses dir for entry files.
func NewDiskBackend(dir string) (*DiskBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &DiskBackend{dir: dir}, nil
}

// entryPath derives the file name from a hash of the key so arbitrary keys
// (paths, slashes, queries) stay filesystem-safe.
func (d *DiskBackend) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:])+".json")
}

func (d *DiskBackend) Load(key string) (*Entry, bool, error) {
	data, err := os.ReadFile(d.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// A corrupt entry is treated as absent, not fatal.
		_ = os.Remove(d.entryPath(key))
		return nil, false, nil
	}
	return &entry, true, nil
}

func (d *DiskBackend) Store(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.Key, err)
	}

	final := d.entryPath(entry.Key)
	tmp, err := os.CreateTemp(d.dir, ".patchpilot-entry-*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp entry: %w", err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish entry %s: %w", entry.Key, err)
	}
	return nil
}

func (d *DiskBackend) Delete(key string) error {
	err := os.Remove(d.entryPath(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *DiskBackend) Entries() ([]*Entry, error) {
	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}

	var out []*Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.dir, name))
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		out = append(out, &entry)
	}
	return out, nil
}
