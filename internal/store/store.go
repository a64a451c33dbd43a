package store

// Store defines the interface for run record persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecord atomically saves the record of a finished run, replacing
	// any previous record with the same ID.
	SaveRecord(runID string, record *RunRecord) error

	// LoadRecord retrieves the record of a run.
	// Returns ErrNotFound if no record exists for this runID.
	LoadRecord(runID string) (*RunRecord, error)

	// ListRecords returns metadata for all stored runs, newest first.
	ListRecords() ([]RunInfo, error)

	// DeleteRecord removes the record and the score trace of a run.
	// Returns ErrNotFound if no record exists for this runID.
	DeleteRecord(runID string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
