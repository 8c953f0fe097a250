// Package detect implements the anomaly detector: it converts discrete
// operational signals (login attempts, query volumes, config hashes,
// honeytoken touches) into severity-classified security alerts with a
// deterministic suggested-rollback policy.
package detect

import (
	"context"
	"fmt"
	"time"

	"vigil/core"
	"vigil/metrics"
	"vigil/notify"

	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// defaultConfigHashCacheSize bounds the tracked-file baseline cache when no
// size is configured
const defaultConfigHashCacheSize = 1024

// Detector evaluates raw signals against policy thresholds and emits
// security alerts. It is an explicit service struct constructed once at
// process start; all mutable counter state lives in the CounterState
// backend, never in package globals.
type Detector struct {
	alerts       core.AlertStore
	audit        core.AuditLog
	counters     CounterState
	notifier     notify.Notifier
	policy       Policy
	storeTimeout time.Duration
	// hashes caches the last observed content hash per tracked file so an
	// unchanged re-observation never re-alerts
	hashes   *lru.Cache[string, string]
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

// NewDetector creates a new Detector instance.
//
// All dependencies are required; the constructor panics on nil to fail fast
// at wiring time rather than on the first signal.
func NewDetector(
	alerts core.AlertStore,
	audit core.AuditLog,
	counters CounterState,
	notifier notify.Notifier,
	policy Policy,
	storeTimeout time.Duration,
	cacheSize int,
	logger *zap.SugaredLogger,
) (*Detector, error) {
	if alerts == nil {
		panic("alert store is required")
	}
	if audit == nil {
		panic("audit log is required")
	}
	if counters == nil {
		panic("counter state is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if notifier == nil {
		notifier = &notify.NoOpNotifier{}
	}

	if cacheSize <= 0 {
		cacheSize = defaultConfigHashCacheSize
	}
	hashes, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create config hash cache: %w", err)
	}

	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}

	return &Detector{
		alerts:       alerts,
		audit:        audit,
		counters:     counters,
		notifier:     notifier,
		policy:       policy,
		storeTimeout: storeTimeout,
		hashes:       hashes,
		validate:     validator.New(),
		logger:       logger,
	}, nil
}

// storeCtx bounds a store call with the configured timeout so a slow store
// surfaces as a retryable failure instead of a stuck operation.
func (d *Detector) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.storeTimeout)
}

// RecordLoginAttempt feeds one authentication attempt into the flood rule.
// A successful login resets the identity's consecutive-failure counter; a
// failed one increments it atomically. Returns the emitted alert, if any.
func (d *Detector) RecordLoginAttempt(ctx context.Context, attempt core.LoginAttempt) (*core.SecurityAlert, error) {
	if err := d.validate.Struct(attempt); err != nil {
		return nil, fmt.Errorf("invalid login attempt: %w", err)
	}

	if attempt.Success {
		if err := d.counters.ResetFailures(ctx, attempt.Identity); err != nil {
			return nil, err
		}
		return nil, nil
	}

	failures, err := d.counters.IncrementFailures(ctx, attempt.Identity)
	if err != nil {
		return nil, err
	}

	severity, emit := d.policy.ClassifyAuthFlood(failures)
	if !emit {
		return nil, nil
	}

	alert := core.NewSecurityAlert(core.AlertTypeAuthFlood, severity)
	alert.Title = fmt.Sprintf("Authentication flood for %s", attempt.Identity)
	alert.Description = fmt.Sprintf("%d consecutive failed login attempts for identity %q", failures, attempt.Identity)
	alert.Explanation = ExplainAuthFlood(attempt, failures)
	alert.RollbackSuggested = false
	alert.Evidence["identity"] = attempt.Identity
	alert.Evidence["failed_attempts"] = fmt.Sprintf("%d", failures)
	alert.Evidence["source_ip"] = attempt.SourceIP

	if err := d.emitAlert(ctx, alert, attempt.Identity); err != nil {
		return nil, err
	}
	return alert, nil
}

// RecordHoneytokenAccess emits a critical database_breach alert for any
// access to an instrumented decoy value, regardless of the token kind.
func (d *Detector) RecordHoneytokenAccess(ctx context.Context, access core.HoneytokenAccess) (*core.SecurityAlert, error) {
	if err := d.validate.Struct(access); err != nil {
		return nil, fmt.Errorf("invalid honeytoken access: %w", err)
	}

	severity, rollback := ClassifyHoneytokenAccess()

	alert := core.NewSecurityAlert(core.AlertTypeDatabaseBreach, severity)
	alert.Title = fmt.Sprintf("Honeytoken %s accessed", access.TokenType)
	alert.Description = fmt.Sprintf("Decoy %s value accessed from %s", access.TokenType, valueOrUnknown(access.SourceIP))
	alert.Explanation = ExplainHoneytokenAccess(access)
	alert.RollbackSuggested = rollback
	alert.Evidence["honeytoken_type"] = access.TokenType
	alert.Evidence["access_time"] = access.At.UTC().Format(time.RFC3339)
	alert.Evidence["source_ip"] = access.SourceIP

	if err := d.emitAlert(ctx, alert, access.AccessedBy); err != nil {
		return nil, err
	}
	return alert, nil
}

// RecordDataExportSample compares a current query volume against its
// baseline and emits a database_breach alert when the increase clears the
// policy thresholds. Only the critical tier suggests rollback.
func (d *Detector) RecordDataExportSample(ctx context.Context, sample core.DataExportSample) (*core.SecurityAlert, error) {
	if err := d.validate.Struct(sample); err != nil {
		return nil, fmt.Errorf("invalid data export sample: %w", err)
	}

	severity, rollback, increasePct, emit := d.policy.ClassifyExportVolume(sample.CurrentCount, sample.BaselineRate)
	if !emit {
		return nil, nil
	}

	alert := core.NewSecurityAlert(core.AlertTypeDatabaseBreach, severity)
	alert.Title = "Data export volume anomaly"
	alert.Description = fmt.Sprintf("Query volume increased %.1f%% over baseline", increasePct)
	alert.Explanation = ExplainExportVolume(sample, increasePct)
	alert.RollbackSuggested = rollback
	alert.Evidence["identity"] = sample.Identity
	alert.Evidence["current_count"] = fmt.Sprintf("%d", sample.CurrentCount)
	alert.Evidence["baseline_rate"] = fmt.Sprintf("%d", sample.BaselineRate)
	alert.Evidence["increase_pct"] = fmt.Sprintf("%.1f", increasePct)

	if err := d.emitAlert(ctx, alert, sample.Identity); err != nil {
		return nil, err
	}
	return alert, nil
}

// RecordDatabaseAccess feeds a query burst into the off-hours rule.
func (d *Detector) RecordDatabaseAccess(ctx context.Context, access core.DatabaseAccess) (*core.SecurityAlert, error) {
	if err := d.validate.Struct(access); err != nil {
		return nil, fmt.Errorf("invalid database access: %w", err)
	}

	severity, emit := d.policy.ClassifyOffHoursAccess(access.At, access.QueryCount)
	if !emit {
		return nil, nil
	}

	alert := core.NewSecurityAlert(core.AlertTypeSystemAnomaly, severity)
	alert.Title = "Off-hours database access"
	alert.Description = fmt.Sprintf("%d queries issued at %02d:00", access.QueryCount, access.At.Hour())
	alert.Explanation = ExplainOffHoursAccess(access, d.policy.OffHoursStart, d.policy.OffHoursEnd)
	alert.RollbackSuggested = false
	alert.Evidence["identity"] = access.Identity
	alert.Evidence["query_count"] = fmt.Sprintf("%d", access.QueryCount)
	alert.Evidence["access_hour"] = fmt.Sprintf("%d", access.At.Hour())

	if err := d.emitAlert(ctx, alert, access.Identity); err != nil {
		return nil, err
	}
	return alert, nil
}

// RecordConfigHash feeds a tracked file's content hash into the drift rule.
// The first observation of a file seeds the baseline without alerting; an
// unchanged re-observation never re-alerts.
func (d *Detector) RecordConfigHash(ctx context.Context, change core.ConfigChange) (*core.SecurityAlert, error) {
	if err := d.validate.Struct(change); err != nil {
		return nil, fmt.Errorf("invalid config change: %w", err)
	}

	previous := change.PreviousHash
	if cached, ok := d.hashes.Get(change.FilePath); ok {
		previous = cached
	}
	d.hashes.Add(change.FilePath, change.CurrentHash)

	if previous == "" || previous == change.CurrentHash {
		return nil, nil
	}

	class := change.Class
	if !class.IsValid() {
		class = core.ConfigChangeGeneral
	}
	severity, rollback := ClassifyConfigChange(class)

	change.PreviousHash = previous
	change.Class = class

	alert := core.NewSecurityAlert(core.AlertTypeSystemAnomaly, severity)
	alert.Title = fmt.Sprintf("Configuration drift in %s", change.FilePath)
	alert.Description = fmt.Sprintf("Tracked file %s changed (class %s)", change.FilePath, class)
	alert.Explanation = ExplainConfigChange(change)
	alert.RollbackSuggested = rollback
	alert.Evidence["file_path"] = change.FilePath
	alert.Evidence["change_class"] = string(class)
	alert.Evidence["previous_hash"] = previous
	alert.Evidence["current_hash"] = change.CurrentHash

	if err := d.emitAlert(ctx, alert, change.ChangedBy); err != nil {
		return nil, err
	}
	return alert, nil
}

// RecordLoginSource checks a login origin against the known-source set and
// emits a medium system_anomaly alert for unrecognized sources. The source
// is then added to the set so repeat logins alert only once.
func (d *Detector) RecordLoginSource(ctx context.Context, source core.LoginSource) (*core.SecurityAlert, error) {
	if err := d.validate.Struct(source); err != nil {
		return nil, fmt.Errorf("invalid login source: %w", err)
	}

	known, err := d.counters.IsKnownSource(ctx, source.Source)
	if err != nil {
		return nil, err
	}
	if known {
		return nil, nil
	}

	alert := core.NewSecurityAlert(core.AlertTypeSystemAnomaly, core.SeverityMedium)
	alert.Title = fmt.Sprintf("Unusual login source for %s", source.Identity)
	alert.Description = fmt.Sprintf("Login from unrecognized source %s", source.Source)
	alert.Explanation = ExplainLoginSource(source)
	alert.RollbackSuggested = false
	alert.Evidence["identity"] = source.Identity
	alert.Evidence["source"] = source.Source

	if err := d.emitAlert(ctx, alert, source.Identity); err != nil {
		return nil, err
	}

	if err := d.counters.AddKnownSource(ctx, source.Source); err != nil {
		d.logger.Warnf("Failed to record login source %s as known: %v", source.Source, err)
	}

	return alert, nil
}

// emitAlert persists the alert and writes its audit entry. Persistence
// failures propagate unchanged to the caller; the detector never retries
// and never drops an alert silently.
func (d *Detector) emitAlert(ctx context.Context, alert *core.SecurityAlert, userID string) error {
	storeCtx, cancel := d.storeCtx(ctx)
	defer cancel()

	if err := d.alerts.CreateAlert(storeCtx, alert); err != nil {
		return fmt.Errorf("failed to persist alert: %w", err)
	}

	entry := core.NewAuditLogEntry(
		fmt.Sprintf("%s_detected", alert.Type),
		alert.Title,
	)
	entry.UserID = userID
	entry.ContextData["alert_id"] = alert.AlertID
	entry.ContextData["severity"] = string(alert.Severity)
	entry.ContextData["rollback_suggested"] = alert.RollbackSuggested

	auditCtx, auditCancel := d.storeCtx(ctx)
	defer auditCancel()

	if err := d.audit.Append(auditCtx, entry); err != nil {
		// An alert must not stay open without its audit trail: retire it
		// before surfacing the failure.
		retireCtx, retireCancel := d.storeCtx(context.WithoutCancel(ctx))
		defer retireCancel()
		if serr := d.alerts.UpdateAlertStatus(retireCtx, alert.AlertID, core.AlertStatusFalsePositive, ""); serr != nil {
			d.logger.Errorf("Failed to retire unaudited alert %s: %v", alert.AlertID, serr)
		}
		return fmt.Errorf("failed to audit alert %s: %w", alert.AlertID, err)
	}

	if err := d.notifier.NotifyAlert(ctx, alert); err != nil {
		d.logger.Warnf("Failed to notify alert %s: %v", alert.AlertID, err)
	}

	metrics.AlertsGenerated.WithLabelValues(string(alert.Type), string(alert.Severity)).Inc()
	d.logger.Infow("Security alert emitted",
		"alert_id", alert.AlertID,
		"type", alert.Type,
		"severity", alert.Severity,
		"rollback_suggested", alert.RollbackSuggested,
	)

	return nil
}
