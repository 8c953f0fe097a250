package detect

import (
	"time"

	"vigil/core"
)

// Policy holds the detection thresholds. All classification below is a pure
// function of a signal and this policy, so the severity tables are directly
// testable without any I/O.
type Policy struct {
	// FloodEmitThreshold is the consecutive-failure count above which an
	// auth_flood alert is emitted
	FloodEmitThreshold int64
	// FloodHighThreshold is the count above which the flood is high severity
	FloodHighThreshold int64
	// ExportHighPct is the baseline increase (percent) rated high
	ExportHighPct float64
	// ExportCriticalPct is the baseline increase (percent) rated critical
	ExportCriticalPct float64
	// OffHoursStart and OffHoursEnd bound the normal working window;
	// hours outside [OffHoursEnd, OffHoursStart) are off-hours
	OffHoursStart int
	OffHoursEnd   int
	// OffHoursQueryFloor is the minimum query count for an off-hours alert
	OffHoursQueryFloor int
}

// DefaultPolicy returns the standard detection thresholds
func DefaultPolicy() Policy {
	return Policy{
		FloodEmitThreshold: 5,
		FloodHighThreshold: 10,
		ExportHighPct:      50,
		ExportCriticalPct:  300,
		OffHoursStart:      22,
		OffHoursEnd:        6,
		OffHoursQueryFloor: 100,
	}
}

// ClassifyAuthFlood rates a consecutive-failure count. The second return
// reports whether an alert should be emitted at all. Auth floods never
// suggest rollback: they are an access-control signal, not a
// data-integrity one.
func (p Policy) ClassifyAuthFlood(failures int64) (core.AlertSeverity, bool) {
	if failures <= p.FloodEmitThreshold {
		return "", false
	}
	if failures > p.FloodHighThreshold {
		return core.SeverityHigh, true
	}
	return core.SeverityMedium, true
}

// ClassifyExportVolume rates a query volume against its baseline. Returns
// the severity, whether rollback is suggested, the computed increase
// percentage, and whether an alert should be emitted.
func (p Policy) ClassifyExportVolume(current, baseline int) (core.AlertSeverity, bool, float64, bool) {
	if baseline <= 0 {
		return "", false, 0, false
	}

	increasePct := float64(current-baseline) / float64(baseline) * 100

	switch {
	case increasePct >= p.ExportCriticalPct:
		return core.SeverityCritical, true, increasePct, true
	case increasePct >= p.ExportHighPct:
		return core.SeverityHigh, false, increasePct, true
	default:
		return "", false, increasePct, false
	}
}

// ClassifyConfigChange rates a configuration drift event by its closed
// change class. Only the critical classes suggest rollback.
func ClassifyConfigChange(class core.ConfigChangeClass) (core.AlertSeverity, bool) {
	switch class {
	case core.ConfigChangeCredential, core.ConfigChangePrivilege:
		return core.SeverityCritical, true
	case core.ConfigChangeNetwork:
		return core.SeverityMedium, false
	default:
		return core.SeverityLow, false
	}
}

// ClassifyHoneytokenAccess rates a honeytoken access. Any access to a decoy
// value is unconditionally critical and rollback-suggested, regardless of
// the token kind.
func ClassifyHoneytokenAccess() (core.AlertSeverity, bool) {
	return core.SeverityCritical, true
}

// IsOffHours reports whether t falls outside the normal working window
func (p Policy) IsOffHours(t time.Time) bool {
	hour := t.Hour()
	return hour < p.OffHoursEnd || hour >= p.OffHoursStart
}

// ClassifyOffHoursAccess rates a database access burst for the off-hours
// rule. Emits only when the access is off-hours and the query count clears
// the floor.
func (p Policy) ClassifyOffHoursAccess(at time.Time, queryCount int) (core.AlertSeverity, bool) {
	if !p.IsOffHours(at) || queryCount < p.OffHoursQueryFloor {
		return "", false
	}
	return core.SeverityMedium, true
}
