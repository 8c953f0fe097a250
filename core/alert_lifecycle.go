package core

import (
	"errors"
	"fmt"
)

// validAlertTransitions defines allowed state transitions for security alerts
var validAlertTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusNew:           {AlertStatusAssigned, AlertStatusResolved, AlertStatusFalsePositive},
	AlertStatusAssigned:      {AlertStatusResolved, AlertStatusFalsePositive},
	AlertStatusResolved:      {}, // Final state
	AlertStatusFalsePositive: {}, // Final state
}

// TransitionTo validates and executes an alert state transition.
// Returns error if the transition is invalid.
func (a *SecurityAlert) TransitionTo(newStatus AlertStatus, userID string) error {
	if newStatus == "" {
		return errors.New("new status cannot be empty")
	}

	if !newStatus.IsValid() {
		return fmt.Errorf("invalid alert status: %s", newStatus)
	}

	allowed, exists := validAlertTransitions[a.Status]
	if !exists {
		return fmt.Errorf("unknown current status: %s", a.Status)
	}

	found := false
	for _, status := range allowed {
		if status == newStatus {
			found = true
			break
		}
	}

	if !found {
		return fmt.Errorf("invalid transition: %s → %s (allowed: %v)", a.Status, newStatus, allowed)
	}

	a.Status = newStatus

	if newStatus == AlertStatusAssigned && userID != "" {
		a.AssignedTo = userID
	}

	return nil
}

// CanTransitionTo checks if a transition is allowed without executing it
func (a *SecurityAlert) CanTransitionTo(newStatus AlertStatus) bool {
	if !newStatus.IsValid() {
		return false
	}

	allowed, exists := validAlertTransitions[a.Status]
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

// GetAllowedTransitions returns the statuses this alert may transition to
func (a *SecurityAlert) GetAllowedTransitions() []AlertStatus {
	allowed, exists := validAlertTransitions[a.Status]
	if !exists {
		return nil
	}
	return allowed
}

// IsFinalState checks if the alert is in a terminal state
func (a *SecurityAlert) IsFinalState() bool {
	allowed, exists := validAlertTransitions[a.Status]
	if !exists {
		return false
	}
	return len(allowed) == 0
}
