package storage

import (
	"context"
	"testing"
	"time"

	"vigil/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAlertStorage(t *testing.T) *SQLiteAlertStorage {
	t.Helper()
	storage, err := NewSQLiteAlertStorage(setupTestDB(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	return storage
}

func testAlert(severity core.AlertSeverity) *core.SecurityAlert {
	alert := core.NewSecurityAlert(core.AlertTypeDatabaseBreach, severity)
	alert.Title = "Honeytoken api_key accessed"
	alert.Description = "Decoy api_key value accessed from 10.0.0.9"
	alert.Explanation = "HONEYTOKEN ACCESS detected"
	alert.RollbackSuggested = true
	alert.Evidence["honeytoken_type"] = "api_key"
	alert.Evidence["source_ip"] = "10.0.0.9"
	return alert
}

func TestCreateAlert_Success(t *testing.T) {
	storage := newAlertStorage(t)
	ctx := context.Background()

	alert := testAlert(core.SeverityCritical)
	require.NoError(t, storage.CreateAlert(ctx, alert))

	got, err := storage.GetAlert(ctx, alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, alert.AlertID, got.AlertID)
	assert.Equal(t, core.AlertTypeDatabaseBreach, got.Type)
	assert.Equal(t, core.SeverityCritical, got.Severity)
	assert.Equal(t, core.AlertStatusNew, got.Status)
	assert.True(t, got.RollbackSuggested)
	assert.Equal(t, "api_key", got.Evidence["honeytoken_type"])
	assert.Nil(t, got.ResolvedAt)
}

func TestCreateAlert_DuplicateID(t *testing.T) {
	storage := newAlertStorage(t)
	ctx := context.Background()

	alert := testAlert(core.SeverityHigh)
	require.NoError(t, storage.CreateAlert(ctx, alert))

	err := storage.CreateAlert(ctx, alert)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestCreateAlert_InvalidEnums(t *testing.T) {
	storage := newAlertStorage(t)
	ctx := context.Background()

	alert := testAlert(core.SeverityLow)
	alert.Type = core.AlertType("bogus")
	assert.Error(t, storage.CreateAlert(ctx, alert))

	alert = testAlert(core.AlertSeverity("extreme"))
	assert.Error(t, storage.CreateAlert(ctx, alert))
}

func TestGetAlert_NotFound(t *testing.T) {
	storage := newAlertStorage(t)

	_, err := storage.GetAlert(context.Background(), "no-such-alert")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestListAlerts_FiltersAndOrdering(t *testing.T) {
	storage := newAlertStorage(t)
	ctx := context.Background()

	older := testAlert(core.SeverityHigh)
	older.DetectedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, storage.CreateAlert(ctx, older))

	newer := testAlert(core.SeverityCritical)
	require.NoError(t, storage.CreateAlert(ctx, newer))

	flood := core.NewSecurityAlert(core.AlertTypeAuthFlood, core.SeverityMedium)
	flood.Title = "Authentication flood for deploy-bot"
	require.NoError(t, storage.CreateAlert(ctx, flood))

	recent, err := storage.GetRecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, older.AlertID, recent[2].AlertID, "oldest alert should sort last")

	breaches, err := storage.GetAlertsByType(ctx, core.AlertTypeDatabaseBreach, 10)
	require.NoError(t, err)
	assert.Len(t, breaches, 2)

	criticals, err := storage.GetAlertsBySeverity(ctx, core.SeverityCritical, 10)
	require.NoError(t, err)
	require.Len(t, criticals, 1)
	assert.Equal(t, newer.AlertID, criticals[0].AlertID)

	open, err := storage.GetAlertsByStatus(ctx, core.AlertStatusNew, 10)
	require.NoError(t, err)
	assert.Len(t, open, 3)
}

func TestUpdateAlertStatus_LifecycleEnforced(t *testing.T) {
	storage := newAlertStorage(t)
	ctx := context.Background()

	alert := testAlert(core.SeverityHigh)
	require.NoError(t, storage.CreateAlert(ctx, alert))

	require.NoError(t, storage.UpdateAlertStatus(ctx, alert.AlertID, core.AlertStatusAssigned, "operator-1"))

	got, err := storage.GetAlert(ctx, alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, core.AlertStatusAssigned, got.Status)
	assert.Equal(t, "operator-1", got.AssignedTo)

	require.NoError(t, storage.UpdateAlertStatus(ctx, alert.AlertID, core.AlertStatusResolved, "operator-1"))

	got, err = storage.GetAlert(ctx, alert.AlertID)
	require.NoError(t, err)
	assert.Equal(t, core.AlertStatusResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)

	// Terminal alerts reject any further transition
	err = storage.UpdateAlertStatus(ctx, alert.AlertID, core.AlertStatusAssigned, "operator-2")
	assert.ErrorIs(t, err, ErrAlertTerminal)
}

func TestUpdateAlertStatus_InvalidTransition(t *testing.T) {
	storage := newAlertStorage(t)
	ctx := context.Background()

	alert := testAlert(core.SeverityMedium)
	require.NoError(t, storage.CreateAlert(ctx, alert))

	// new -> new is not a legal transition
	err := storage.UpdateAlertStatus(ctx, alert.AlertID, core.AlertStatusNew, "operator-1")
	assert.Error(t, err)
}

func TestCountAlertsBySeverity(t *testing.T) {
	storage := newAlertStorage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, storage.CreateAlert(ctx, testAlert(core.SeverityCritical)))
	}
	require.NoError(t, storage.CreateAlert(ctx, testAlert(core.SeverityMedium)))

	counts, err := storage.CountAlertsBySeverity(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[core.SeverityCritical])
	assert.Equal(t, int64(1), counts[core.SeverityMedium])
	assert.Zero(t, counts[core.SeverityLow])
}
