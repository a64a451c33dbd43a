package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/lensmount/internal/mount"
	"github.com/cwbudde/lensmount/internal/store"
	"github.com/google/go-cmp/cmp"
)

func runIDs(infos []store.RunInfo) []string {
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.RunID
	}
	return ids
}

func TestSelectRunsForDeletion(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	infos := []store.RunInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
		{RunID: "run5", Timestamp: now.AddDate(0, 0, -2)},
	}

	tests := []struct {
		name          string
		keepLast      int
		olderThanDays int
		want          []string
	}{
		{"by age", 0, 7, []string{"run4", "run1"}},
		{"by count", 2, 0, []string{"run4", "run1", "run2"}},
		{"combined", 4, 7, []string{"run4", "run1"}},
		{"keep more than stored", 10, 0, nil},
		{"nothing old enough", 0, 60, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runIDs(selectRunsForDeletion(infos, tt.keepLast, tt.olderThanDays, now))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("selectRunsForDeletion mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	content := []byte("Hello, World!")
	if err := os.WriteFile(filepath.Join(tmpDir, "test.txt"), content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		result := formatBytes(tt.bytes)
		if result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func saveTestRun(t *testing.T, st *store.FSStore, runID string, age time.Duration) {
	t.Helper()
	best := mount.Combination{
		{Tag: mount.Tag{Label: "L1", Position: 2}, Axes: map[string]mount.Params{"OPTICAL": {XDecentre: 0.05}}},
	}
	record := store.NewRunRecord(runID, store.RunConfig{AxisType: "OPTICAL", Merit: "SPOT"}, best, 1, 0.05, 0.04, 2, 2)
	record.Timestamp = time.Now().Add(-age)
	if err := st.SaveRecord(runID, record); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
}

func setRunsDataDir(t *testing.T, dir string) {
	t.Helper()
	original := runsDataDir
	runsDataDir = dir
	t.Cleanup(func() { runsDataDir = original })
}

func TestRunsListCommand(t *testing.T) {
	tmpDir := t.TempDir()
	setRunsDataDir(t, tmpDir)

	if err := runListRuns(nil, nil); err != nil {
		t.Errorf("Expected no error for empty store, got %v", err)
	}

	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestRun(t, st, "test-run-id", 0)

	if err := runListRuns(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestRunsCleanCommand_NoFlags(t *testing.T) {
	setRunsDataDir(t, t.TempDir())
	keepLast, olderThanDays = 0, 0

	if err := runCleanRuns(nil, nil); err == nil {
		t.Error("Expected error when no flags specified")
	}
}

func TestRunsCleanCommand_WithForce(t *testing.T) {
	tmpDir := t.TempDir()
	setRunsDataDir(t, tmpDir)

	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestRun(t, st, "old-run", 30*24*time.Hour)
	saveTestRun(t, st, "new-run", time.Hour)

	keepLast, olderThanDays, forceClean = 0, 7, true
	t.Cleanup(func() { keepLast, olderThanDays, forceClean = 0, 0, false })

	if err := runCleanRuns(nil, nil); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	if _, err := st.LoadRecord("old-run"); err == nil {
		t.Error("Expected old run to be deleted")
	}
	if _, err := st.LoadRecord("new-run"); err != nil {
		t.Errorf("Expected new run to be kept: %v", err)
	}
}
