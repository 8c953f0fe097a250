package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertTransitions_HappyPath(t *testing.T) {
	alert := NewSecurityAlert(AlertTypeAuthFlood, SeverityHigh)
	require.Equal(t, AlertStatusNew, alert.Status)

	require.NoError(t, alert.TransitionTo(AlertStatusAssigned, "operator-1"))
	assert.Equal(t, AlertStatusAssigned, alert.Status)
	assert.Equal(t, "operator-1", alert.AssignedTo)

	require.NoError(t, alert.TransitionTo(AlertStatusResolved, "operator-1"))
	assert.Equal(t, AlertStatusResolved, alert.Status)
	assert.True(t, alert.IsFinalState())
}

func TestAlertTransitions_DirectDismissal(t *testing.T) {
	alert := NewSecurityAlert(AlertTypeSystemAnomaly, SeverityMedium)

	require.NoError(t, alert.TransitionTo(AlertStatusFalsePositive, "operator-1"))
	assert.True(t, alert.IsFinalState())
}

func TestAlertTransitions_TerminalStatesAreFrozen(t *testing.T) {
	for _, terminal := range []AlertStatus{AlertStatusResolved, AlertStatusFalsePositive} {
		alert := NewSecurityAlert(AlertTypeDatabaseBreach, SeverityCritical)
		require.NoError(t, alert.TransitionTo(terminal, "operator-1"))

		for _, next := range []AlertStatus{AlertStatusNew, AlertStatusAssigned, AlertStatusResolved, AlertStatusFalsePositive} {
			assert.False(t, alert.CanTransitionTo(next), "%s -> %s must be rejected", terminal, next)
			assert.Error(t, alert.TransitionTo(next, "operator-2"))
		}
	}
}

func TestAlertTransitions_SelfTransitionRejected(t *testing.T) {
	alert := NewSecurityAlert(AlertTypeAuthFlood, SeverityLow)
	assert.Error(t, alert.TransitionTo(AlertStatusNew, "operator-1"))
}

func TestAlertSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
}
