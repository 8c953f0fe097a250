package notify

import (
	"context"
	"testing"

	"vigil/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogNotifier_PanicsOnNilLogger(t *testing.T) {
	assert.Panics(t, func() { NewLogNotifier(nil) })
}

func TestLogNotifier_EmitsStructuredEvents(t *testing.T) {
	obsCore, logs := observer.New(zap.InfoLevel)
	notifier := NewLogNotifier(zap.New(obsCore).Sugar())
	ctx := context.Background()

	alert := core.NewSecurityAlert(core.AlertTypeAuthFlood, core.SeverityHigh)
	require.NoError(t, notifier.NotifyAlert(ctx, alert))

	request := core.NewRollbackRequest("staging", "snap-1", "bad deploy", "dev-1")
	require.NoError(t, notifier.NotifyApprovalRequired(ctx, request))
	require.NoError(t, notifier.NotifyRollbackResolved(ctx, request, true))

	require.Equal(t, 3, logs.Len())

	entries := logs.All()
	assert.Equal(t, "Security alert raised", entries[0].Message)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, alert.AlertID, entries[0].ContextMap()["alert_id"])

	assert.Equal(t, "Rollback awaiting approval", entries[1].Message)
	assert.Equal(t, request.RequestID, entries[1].ContextMap()["request_id"])

	assert.Equal(t, "Rollback resolved", entries[2].Message)
	assert.Equal(t, true, entries[2].ContextMap()["success"])
}

func TestNoOpNotifier(t *testing.T) {
	var notifier Notifier = &NoOpNotifier{}
	ctx := context.Background()

	assert.NoError(t, notifier.NotifyAlert(ctx, nil))
	assert.NoError(t, notifier.NotifyApprovalRequired(ctx, nil))
	assert.NoError(t, notifier.NotifyRollbackResolved(ctx, nil, false))
}
