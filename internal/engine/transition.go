package engine

import "voxcollect/internal/domain"

// taskTransitions is the closed transition table for task statuses. A pair not
// listed here is invalid; a same-state transition is always a valid no-op.
var taskTransitions = map[string][]string{
	domain.TaskDraft:      {domain.TaskOpen, domain.TaskArchived},
	domain.TaskOpen:       {domain.TaskInProgress, domain.TaskArchived},
	domain.TaskInProgress: {domain.TaskCompleted, domain.TaskOpen, domain.TaskArchived},
	domain.TaskCompleted:  {domain.TaskVerified, domain.TaskRejected, domain.TaskArchived},
	domain.TaskVerified:   {domain.TaskArchived},
	domain.TaskRejected:   {domain.TaskOpen, domain.TaskInProgress, domain.TaskArchived},
	domain.TaskArchived:   {domain.TaskOpen},
}

// IsValidTransition is the advisory client-side check. The same table is
// consulted again inside the mutating transaction, which is the check that
// counts.
func IsValidTransition(current, proposed string) bool {
	if current == proposed {
		return true
	}
	for _, s := range taskTransitions[current] {
		if s == proposed {
			return true
		}
	}
	return false
}

// EnsureTransition returns a TransitionError for pairs off the table.
func EnsureTransition(current, proposed string) error {
	if !IsValidTransition(current, proposed) {
		return TransitionError{From: current, To: proposed}
	}
	return nil
}
