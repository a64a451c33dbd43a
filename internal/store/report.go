package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Report is a run record with the score of every combination, written for
// people rather than for the store.
type Report struct {
	RunRecord `yaml:",inline"`
	Scores    []float64 `json:"scores" yaml:"scores"`
}

// WriteReport writes a report of the run to path. Files ending in .yaml or
// .yml are written as YAML, anything else as indented JSON.
func WriteReport(path string, record *RunRecord, scores []float64) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	report := Report{RunRecord: *record, Scores: scores}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(report)
	default:
		data, err = json.MarshalIndent(report, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename report: %w", err)
	}
	return nil
}

// ReadReport reads a report written by WriteReport.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report Report
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &report)
	default:
		err = json.Unmarshal(data, &report)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", path, err)
	}
	return &report, nil
}
