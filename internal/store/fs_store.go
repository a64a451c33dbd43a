package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// FSStore implements the Store interface on the filesystem.
// Runs are stored as <baseDir>/runs/<runID>/record.json next to the run's
// trace.jsonl.
//
// Records are written with temp file + rename, so concurrent readers never
// see a partial record.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a filesystem store rooted at baseDir, creating it if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

func runDir(baseDir, runID string) string {
	return filepath.Join(baseDir, "runs", runID)
}

func (fs *FSStore) recordPath(runID string) string {
	return filepath.Join(runDir(fs.baseDir, runID), "record.json")
}

// SaveRecord atomically saves the record of a run.
func (fs *FSStore) SaveRecord(runID string, record *RunRecord) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	if err := os.MkdirAll(runDir(fs.baseDir, runID), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	finalPath := fs.recordPath(runID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp record file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename record file: %w", err)
	}

	slog.Debug("Run record saved", "run_id", runID, "path", finalPath)
	return nil
}

// LoadRecord retrieves the record of a run.
func (fs *FSStore) LoadRecord(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := fs.recordPath(runID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}

	slog.Debug("Run record loaded", "run_id", runID, "path", path)
	return &record, nil
}

// ListRecords returns metadata for all stored runs, newest first.
// Directories without a readable record are skipped.
func (fs *FSStore) ListRecords() ([]RunInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")

	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return []RunInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []RunInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		runID := entry.Name()
		if _, err := os.Stat(fs.recordPath(runID)); os.IsNotExist(err) {
			continue
		}

		record, err := fs.LoadRecord(runID)
		if err != nil {
			slog.Warn("Failed to load run record for listing", "run_id", runID, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	slices.SortFunc(infos, func(a, b RunInfo) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	slog.Debug("Listed run records", "count", len(infos))
	return infos, nil
}

// DeleteRecord removes the run directory with its record and trace.
func (fs *FSStore) DeleteRecord(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	dir := runDir(fs.baseDir, runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Run record deleted", "run_id", runID, "path", dir)
	return nil
}
