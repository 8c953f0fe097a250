package core

import (
	"errors"
	"fmt"
)

// validRollbackTransitions defines allowed state transitions for rollback
// requests. There is exactly one path through the machine:
// pending_approval -> {approved, rejected}; approved -> {completed, failed}.
var validRollbackTransitions = map[RollbackStatus][]RollbackStatus{
	RollbackStatusPendingApproval: {RollbackStatusApproved, RollbackStatusRejected},
	RollbackStatusApproved:        {RollbackStatusCompleted, RollbackStatusFailed},
	RollbackStatusRejected:        {}, // Final state
	RollbackStatusCompleted:       {}, // Final state
	RollbackStatusFailed:          {}, // Final state
}

// ErrTerminalRollbackStatus is returned when a transition is attempted on a
// request already in a terminal state.
var ErrTerminalRollbackStatus = errors.New("rollback request is in a terminal state")

// TransitionTo validates and executes a rollback request state transition.
func (r *RollbackRequest) TransitionTo(newStatus RollbackStatus) error {
	if newStatus == "" {
		return errors.New("new status cannot be empty")
	}

	if !newStatus.IsValid() {
		return fmt.Errorf("invalid rollback status: %s", newStatus)
	}

	allowed, exists := validRollbackTransitions[r.Status]
	if !exists {
		return fmt.Errorf("unknown current status: %s", r.Status)
	}

	if len(allowed) == 0 {
		return fmt.Errorf("%w: %s", ErrTerminalRollbackStatus, r.Status)
	}

	found := false
	for _, status := range allowed {
		if status == newStatus {
			found = true
			break
		}
	}

	if !found {
		return fmt.Errorf("invalid transition: %s -> %s (allowed: %v)", r.Status, newStatus, allowed)
	}

	r.Status = newStatus
	return nil
}

// CanTransitionTo checks if a transition is allowed without executing it
func (r *RollbackRequest) CanTransitionTo(newStatus RollbackStatus) bool {
	if !newStatus.IsValid() {
		return false
	}

	allowed, exists := validRollbackTransitions[r.Status]
	if !exists {
		return false
	}

	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}

	return false
}

// IsTerminal checks if the request is in a terminal state
func (r *RollbackRequest) IsTerminal() bool {
	allowed, exists := validRollbackTransitions[r.Status]
	if !exists {
		return false
	}
	return len(allowed) == 0
}
