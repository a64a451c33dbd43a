package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cwbudde/lensmount/internal/mount"
)

// RunConfig holds the settings a run was made with (record copy).
// This avoids import cycles with the server package.
type RunConfig struct {
	ConfigPath      string `json:"configPath" yaml:"configPath"`
	AxisType        string `json:"axisType" yaml:"axisType"`
	Merit           string `json:"merit" yaml:"merit"`
	Cycles          int    `json:"cycles" yaml:"cycles"`
	VariableAirGaps bool   `json:"variableAirGaps" yaml:"variableAirGaps"`
	Backend         string `json:"backend" yaml:"backend"`
}

// Selection is the mount position chosen for one lens, with the parameters
// that were applied.
type Selection struct {
	Label    string       `json:"label" yaml:"label"`
	Position int          `json:"position" yaml:"position"`
	Params   mount.Params `json:"params" yaml:"params"`
}

// RunRecord is the persisted outcome of a finished run. The per-combination
// scores live in the run's score trace.
type RunRecord struct {
	RunID     string      `json:"runId" yaml:"runId"`
	Config    RunConfig   `json:"config" yaml:"config"`
	Best      []Selection `json:"best" yaml:"best"`
	BestIndex int         `json:"bestIndex" yaml:"bestIndex"`
	BestScore float64     `json:"bestScore" yaml:"bestScore"`
	// FinalScore is the merit value after re-applying the best combination.
	FinalScore float64   `json:"finalScore" yaml:"finalScore"`
	Evaluated  int       `json:"evaluated" yaml:"evaluated"`
	Total      int       `json:"total" yaml:"total"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

// RunInfo contains metadata about a run without the selection details.
type RunInfo struct {
	RunID      string    `json:"runId"`
	ConfigPath string    `json:"configPath"`
	AxisType   string    `json:"axisType"`
	Merit      string    `json:"merit"`
	BestScore  float64   `json:"bestScore"`
	Best       string    `json:"best"`
	Total      int       `json:"total"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewRunRecord creates a record for the best combination of a run.
func NewRunRecord(runID string, config RunConfig, best mount.Combination, bestIndex int, bestScore, finalScore float64, evaluated, total int) *RunRecord {
	sel := make([]Selection, len(best))
	for i, c := range best {
		sel[i] = Selection{
			Label:    c.Label,
			Position: c.Position,
			Params:   c.Axes[config.AxisType],
		}
	}
	return &RunRecord{
		RunID:      runID,
		Config:     config,
		Best:       sel,
		BestIndex:  bestIndex,
		BestScore:  bestScore,
		FinalScore: finalScore,
		Evaluated:  evaluated,
		Total:      total,
		Timestamp:  time.Now(),
	}
}

// Tags returns the selected (label, position) pairs.
func (r *RunRecord) Tags() []mount.Tag {
	tags := make([]mount.Tag, len(r.Best))
	for i, s := range r.Best {
		tags[i] = mount.Tag{Label: s.Label, Position: s.Position}
	}
	return tags
}

func describe(tags []mount.Tag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// ToInfo converts a full RunRecord to RunInfo (metadata only).
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		RunID:      r.RunID,
		ConfigPath: r.Config.ConfigPath,
		AxisType:   r.Config.AxisType,
		Merit:      r.Config.Merit,
		BestScore:  r.BestScore,
		Best:       describe(r.Tags()),
		Total:      r.Total,
		Timestamp:  r.Timestamp,
	}
}

// Validate checks if the record has valid data.
func (r *RunRecord) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(r.Best) == 0 {
		return &ValidationError{Field: "Best", Reason: "cannot be empty"}
	}
	seen := make(map[string]bool, len(r.Best))
	for _, s := range r.Best {
		if s.Label == "" {
			return &ValidationError{Field: "Best", Reason: "label cannot be empty"}
		}
		if seen[s.Label] {
			return &ValidationError{Field: "Best", Reason: fmt.Sprintf("lens %s selected twice", s.Label)}
		}
		seen[s.Label] = true
	}
	if r.Total <= 0 {
		return &ValidationError{Field: "Total", Reason: "must be positive"}
	}
	if r.Evaluated < 0 || r.Evaluated > r.Total {
		return &ValidationError{Field: "Evaluated", Reason: fmt.Sprintf("must be between 0 and %d", r.Total)}
	}
	if r.BestIndex < 0 || r.BestIndex >= r.Total {
		return &ValidationError{Field: "BestIndex", Reason: fmt.Sprintf("must be between 0 and %d", r.Total-1)}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.AxisType == "" {
		return &ValidationError{Field: "Config.AxisType", Reason: "cannot be empty"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks that the record's selection can be applied to a lens
// configuration with the given labels.
func (r *RunRecord) IsCompatible(labels []string) error {
	if len(labels) != len(r.Best) {
		return &CompatibilityError{
			Field:    "lenses",
			Expected: fmt.Sprintf("%d", len(r.Best)),
			Actual:   fmt.Sprintf("%d", len(labels)),
		}
	}
	for _, s := range r.Best {
		if !slices.Contains(labels, s.Label) {
			return &CompatibilityError{
				Field:    "lens",
				Expected: s.Label,
				Actual:   "missing",
			}
		}
	}
	return nil
}

// CompatibilityError represents a run record compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
