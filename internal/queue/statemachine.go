package queue

import (
	"fmt"
	"sort"
)

// transitions is the single source of truth for legal status changes.
// Terminal statuses map to an empty target set.
var transitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusPaused, StatusCompleted, StatusRetrying, StatusFailed, StatusCancelled},
	StatusPaused:    {StatusRunning, StatusCancelled},
	StatusRetrying:  {StatusRunning, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// CanTransition reports whether a status change from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AssertTransition returns an error when a status change is illegal. The error
// names both the attempted transition and the allowed targets. Callers must
// never coerce an illegal write into a "closest legal" state.
func AssertTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{From: from, To: to, Allowed: AllowedTransitions(from)}
}

// IsFinalState reports whether a status has no further legal transitions.
func IsFinalState(status Status) bool {
	targets, ok := transitions[status]
	return ok && len(targets) == 0
}

// AllowedTransitions returns the sorted legal targets from a status.
func AllowedTransitions(status Status) []Status {
	targets := transitions[status]
	cp := make([]Status, len(targets))
	copy(cp, targets)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	return cp
}

// TransitionError reports an illegal status change attempt.
type TransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *TransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("illegal transition %s -> %s: %s is a terminal state", e.From, e.To, e.From)
	}
	return fmt.Sprintf("illegal transition %s -> %s: allowed targets from %s are %v", e.From, e.To, e.From, e.Allowed)
}
