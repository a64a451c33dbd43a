package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cwbudde/lensmount/internal/mount"
)

// TraceEntry is the score of one combination, one JSON line in trace.jsonl.
type TraceEntry struct {
	Index     int         `json:"index"`
	Tags      []mount.Tag `json:"tags"`
	Score     float64     `json:"score"`
	Timestamp time.Time   `json:"timestamp"`
}

// TraceWriter writes trace entries to a JSONL file.
// Writes are buffered; it is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter creates the trace file <baseDir>/runs/<runID>/trace.jsonl.
// If append is true, new entries are appended to an existing file.
func NewTraceWriter(baseDir, runID string, append bool) (*TraceWriter, error) {
	dir := runDir(baseDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	path := filepath.Join(dir, "trace.jsonl")

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	writer := bufio.NewWriterSize(file, 64*1024)

	return &TraceWriter{
		file:   file,
		writer: writer,
		path:   path,
	}, nil
}

// Write appends a trace entry. It reaches the file on Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Flush writes any buffered data to the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}

	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}

	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the score trace of a run.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	path := filepath.Join(runDir(baseDir, runID), "trace.jsonl")

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TraceReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// Read reads the next trace entry from the file.
// Returns io.EOF when no more entries are available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	line := tr.scanner.Bytes()
	var entry TraceEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}

	return &entry, nil
}

// ReadAll reads the remaining trace entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry

	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// ReadScores returns the scores of a run's trace in index order.
func ReadScores(baseDir, runID string) ([]TraceEntry, error) {
	tr, err := NewTraceReader(baseDir, runID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(entries, func(a, b TraceEntry) int {
		return a.Index - b.Index
	})
	return entries, nil
}

// DeleteTrace removes the trace file of a run.
// Returns nil if the file doesn't exist.
func DeleteTrace(baseDir, runID string) error {
	path := filepath.Join(runDir(baseDir, runID), "trace.jsonl")

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}

	return nil
}
