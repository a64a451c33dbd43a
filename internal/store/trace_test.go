package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/lensmount/internal/mount"
	"github.com/google/go-cmp/cmp"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()

	writer, err := NewTraceWriter(tmpDir, "run-1", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	entries := []TraceEntry{
		{Index: 0, Tags: []mount.Tag{{Label: "L1", Position: 1}, {Label: "L2", Position: 1}}, Score: 0.16, Timestamp: now},
		{Index: 1, Tags: []mount.Tag{{Label: "L1", Position: 1}, {Label: "L2", Position: 2}}, Score: 0.2, Timestamp: now},
		{Index: 2, Tags: []mount.Tag{{Label: "L1", Position: 2}, {Label: "L2", Position: 1}}, Score: 0.01, Timestamp: now},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "runs", "run-1", "trace.jsonl")
	if writer.Path() != tracePath {
		t.Errorf("Expected path %s, got %s", tracePath, writer.Path())
	}

	reader, err := NewTraceReader(tmpDir, "run-1")
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	got, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()

	for i := 0; i < 2; i++ {
		w, err := NewTraceWriter(tmpDir, "run-1", i > 0)
		if err != nil {
			t.Fatalf("Failed to create trace writer: %v", err)
		}
		w.Write(TraceEntry{Index: i, Score: float64(i)})
		w.Close()
	}

	entries, err := ReadScores(tmpDir, "run-1")
	if err != nil {
		t.Fatalf("ReadScores failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries after append, got %d", len(entries))
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := NewTraceWriter(tmpDir, "run-1", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer w.Close()

	w.Write(TraceEntry{Index: 0, Score: 1})
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	data, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatalf("Failed to read trace file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected flushed data in trace file")
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()

	w, _ := NewTraceWriter(tmpDir, "run-1", false)
	for i := 0; i < 3; i++ {
		w.Write(TraceEntry{Index: i, Score: float64(10 - i)})
	}
	w.Close()

	r, err := NewTraceReader(tmpDir, "run-1")
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		entry, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if entry.Index != count {
			t.Errorf("Expected index %d, got %d", count, entry.Index)
		}
		count++
	}
	if count != 3 {
		t.Errorf("Expected 3 entries, got %d", count)
	}
}

func TestReadScoresSortsByIndex(t *testing.T) {
	tmpDir := t.TempDir()

	w, _ := NewTraceWriter(tmpDir, "run-1", false)
	for _, i := range []int{2, 0, 1} {
		w.Write(TraceEntry{Index: i, Score: float64(i)})
	}
	w.Close()

	entries, err := ReadScores(tmpDir, "run-1")
	if err != nil {
		t.Fatalf("ReadScores failed: %v", err)
	}
	for i, e := range entries {
		if e.Index != i {
			t.Errorf("Entry %d has index %d", i, e.Index)
		}
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()

	w, _ := NewTraceWriter(tmpDir, "run-1", false)
	w.Write(TraceEntry{Index: 0})
	w.Close()

	if err := DeleteTrace(tmpDir, "run-1"); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if _, err := os.Stat(w.Path()); !os.IsNotExist(err) {
		t.Error("Trace file still exists")
	}

	// Deleting a missing trace is not an error.
	if err := DeleteTrace(tmpDir, "run-1"); err != nil {
		t.Errorf("Expected nil deleting missing trace, got %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := NewTraceWriter(tmpDir, "run-1", false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	const numWriters, perWriter = 5, 20
	var wg sync.WaitGroup
	for g := 0; g < numWriters; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := w.Write(TraceEntry{Index: g*perWriter + i}); err != nil {
					t.Errorf("Write failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()
	w.Close()

	entries, err := ReadScores(tmpDir, "run-1")
	if err != nil {
		t.Fatalf("ReadScores failed: %v", err)
	}
	if len(entries) != numWriters*perWriter {
		t.Errorf("Expected %d entries, got %d", numWriters*perWriter, len(entries))
	}
}
