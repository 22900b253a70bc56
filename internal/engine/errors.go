package engine

import "fmt"

// TransitionError reports a task status change outside the transition table.
type TransitionError struct {
	From string
	To   string
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid task status transition %s -> %s", e.From, e.To)
}

// PermissionError reports a denied action, including self-review attempts.
type PermissionError struct {
	Reason string
}

func (e PermissionError) Error() string {
	return e.Reason
}

// ConflictError reports a lost race or a duplicate submission: a second
// contribution by the same user, an already-accepted task, or a task claimed
// by someone else between the advisory check and the conditional update.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return e.Reason
}

// StorageError reports a blob operation that failed after retries were
// exhausted, carrying the pipeline stage that was reached.
type StorageError struct {
	Stage string
	Err   error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage failure at stage %s: %v", e.Stage, e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}

// DriftError reports a history/status mismatch the integrity checker could not
// repair.
type DriftError struct {
	TaskID string
	Err    error
}

func (e DriftError) Error() string {
	return fmt.Sprintf("status drift on task %s could not be repaired: %v", e.TaskID, e.Err)
}

func (e DriftError) Unwrap() error {
	return e.Err
}
