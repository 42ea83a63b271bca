// Package checkpointmeta persists a small crash-durable record of the
// most recent Forest-wide checkpoint: which tree digests it covered and
// the grid's logical clock at the time. It is not part of spec.md §1-9's
// required surface (the spec's "persisted state layout" is left abstract)
// but gives Forest.Checkpoint a concrete on-disk artifact an operator can
// inspect, the same role storage_engine/checkpoint_manager's LSN
// checkpoint plays for WAL replay.
//
// Grounded on storage_engine/checkpoint_manager: same atomic
// write-temp-fsync-rename pattern, generalized from a single LSN/database
// pair to an arbitrary digest set plus grid clock.
package checkpointmeta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"grovedb/registry"
)

// Record is the persisted shape: which trees (by digest) were covered by
// the checkpoint, and the grid clock at the moment it completed.
type Record struct {
	Digests   []registry.Digest `json:"digests"`
	GridClock uint64            `json:"grid_clock"`
	Timestamp int64             `json:"timestamp"` // wall-clock, operational only; never consulted for replay decisions.
}

// Manager writes and reads one checkpoint metadata file per Forest
// directory.
type Manager struct {
	path string
}

// New returns a Manager rooted at dir's "checkpoint.json".
func New(dir string) *Manager {
	return &Manager{path: filepath.Join(dir, "checkpoint.json")}
}

// Save atomically persists rec: write to a temp file, fsync it, then
// rename over the previous checkpoint. A crash between write and rename
// leaves the prior checkpoint intact; a crash after rename leaves the new
// one intact — there is no window where the file is partially written.
func (m *Manager) Save(digests []registry.Digest, gridClock uint64) error {
	rec := Record{Digests: digests, GridClock: gridClock, Timestamp: time.Now().Unix()}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpointmeta: encode: %w", err)
	}

	tempPath := m.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("checkpointmeta: write temp: %w", err)
	}

	tempFile, err := os.OpenFile(tempPath, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("checkpointmeta: reopen temp: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("checkpointmeta: sync temp: %w", err)
	}
	tempFile.Close()

	if err := os.Rename(tempPath, m.path); err != nil {
		return fmt.Errorf("checkpointmeta: rename: %w", err)
	}
	if dir, err := os.Open(filepath.Dir(m.path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

// Load reads the last saved checkpoint, if any. A Forest with no prior
// checkpoint has never called Save, which is not an error: it reports a
// zero Record.
func (m *Manager) Load() (Record, error) {
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		return Record{}, nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Record{}, fmt.Errorf("checkpointmeta: read: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("checkpointmeta: decode: %w", err)
	}
	return rec, nil
}
