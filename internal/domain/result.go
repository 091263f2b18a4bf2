package domain

import (
	"fmt"
	"time"
)

// Outcome is the final state of a single repository after a sync attempt.
type Outcome string

const (
	// OutcomeCreated means the working copy was absent and has been cloned and synced.
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated means an existing working copy was updated in place.
	OutcomeUpdated Outcome = "updated"
	// OutcomeRecovered means the working copy was broken, wiped, recloned and synced.
	OutcomeRecovered Outcome = "recovered"
	// OutcomeFailed means the repository could not be synced.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the repository was listed but not synced (filtered or not a fork).
	OutcomeSkipped Outcome = "skipped"
)

// SyncResult holds the result of syncing a single repository.
// It is the core domain entity of this application.
type SyncResult struct {
	Name     string
	Outcome  Outcome
	Duration time.Duration
	// Before and After are the HEAD commits observed around the update.
	Before string
	After  string
	Err    error
}

// Changed reports whether HEAD moved during the sync.
func (r *SyncResult) Changed() bool {
	return r.Before != r.After
}

// ErrorKind classifies a sync failure.
type ErrorKind string

const (
	ErrorKindAPI        ErrorKind = "api"
	ErrorKindCommand    ErrorKind = "command"
	ErrorKindFilesystem ErrorKind = "filesystem"
	ErrorKindCancelled  ErrorKind = "cancelled"
)

// SyncError reports which repository failed, in which step, and why.
type SyncError struct {
	Repo string
	Kind ErrorKind
	Step string
	Err  error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s: %s error in %s: %v", e.Repo, e.Kind, e.Step, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Repo, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *SyncError) Unwrap() error {
	return e.Err
}
