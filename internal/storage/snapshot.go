// Package storage persists the learned policy and the judgment audit
// trail. Everything here is plain files: a JSON snapshot for the
// Q-table and an append-only JSONL log for judgments.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cynic/internal/logging"
	"cynic/internal/policy"
)

// snapshotVersion guards the on-disk format.
const snapshotVersion = 1

// snapshotFile is the on-disk envelope around the table entries.
type snapshotFile struct {
	Version int            `json:"version"`
	SavedAt time.Time      `json:"saved_at"`
	Entries []policy.Entry `json:"entries"`
}

// SnapshotStore reads and writes the Q-table snapshot at a fixed path.
type SnapshotStore struct {
	path string
	log  logging.Logger
}

// NewSnapshotStore creates a store for the given path. The parent
// directory is created on first save.
func NewSnapshotStore(path string, log logging.Logger) *SnapshotStore {
	return &SnapshotStore{path: path, log: logging.OrNop(log)}
}

// Path returns the snapshot file location.
func (s *SnapshotStore) Path() string { return s.path }

// Save writes the entries atomically: marshal to a temp file in the
// same directory, then rename over the target. A crash mid-write never
// corrupts the previous snapshot.
func (s *SnapshotStore) Save(entries []policy.Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshotFile{
		Version: snapshotVersion,
		SavedAt: time.Now(),
		Entries: entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	s.log.Debug("snapshot saved: %d entries to %s", len(entries), s.path)
	return nil
}

// Load reads the persisted entries. A missing file is an empty start,
// not an error. A snapshot from an unknown format version is rejected.
func (s *SnapshotStore) Load() ([]policy.Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if file.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", file.Version)
	}
	return file.Entries, nil
}
