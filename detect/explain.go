package detect

import (
	"fmt"
	"time"

	"vigil/core"
)

// Explanation rendering for emitted alerts.
//
// These are deterministic template expansions over structured signal data,
// never model calls: identical inputs always produce identical text. Each
// explanation names the alert class in upper case, states the concrete
// evidence, and recommends at least one human action for the class.

// ExplainHoneytokenAccess renders the explanation for a honeytoken alert
func ExplainHoneytokenAccess(access core.HoneytokenAccess) string {
	return fmt.Sprintf(
		"HONEYTOKEN ACCESS: decoy %s value was read from source %s at %s. "+
			"Honeytokens are never touched by legitimate workloads, so any access indicates a database breach in progress. "+
			"Recommended actions: isolate the affected database, rotate all credentials it holds, and investigate activity from %s.",
		access.TokenType,
		valueOrUnknown(access.SourceIP),
		access.At.UTC().Format(time.RFC3339),
		valueOrUnknown(access.SourceIP),
	)
}

// ExplainAuthFlood renders the explanation for an authentication flood alert
func ExplainAuthFlood(attempt core.LoginAttempt, failures int64) string {
	return fmt.Sprintf(
		"AUTHENTICATION FLOOD: %d consecutive failed login attempts for identity %q from source %s. "+
			"Recommended actions: block the source address, enforce a temporary lockout on the identity, and investigate whether the attempts are scripted.",
		failures,
		attempt.Identity,
		valueOrUnknown(attempt.SourceIP),
	)
}

// ExplainExportVolume renders the explanation for a data export anomaly alert
func ExplainExportVolume(sample core.DataExportSample, increasePct float64) string {
	return fmt.Sprintf(
		"DATA EXPORT ANOMALY: query volume increased %.1f%% over baseline (%d queries against a baseline of %d). "+
			"Recommended actions: suspend export jobs for the account, review the issued queries, and investigate whether data left the environment.",
		increasePct,
		sample.CurrentCount,
		sample.BaselineRate,
	)
}

// ExplainOffHoursAccess renders the explanation for an off-hours access alert
func ExplainOffHoursAccess(access core.DatabaseAccess, windowStart, windowEnd int) string {
	return fmt.Sprintf(
		"OFF-HOURS DATABASE ACCESS: %d queries issued at %02d:00, outside the %02d:00-%02d:00 working window. "+
			"Recommended actions: confirm whether a scheduled job explains the activity, and investigate the session if not.",
		access.QueryCount,
		access.At.Hour(),
		windowEnd,
		windowStart,
	)
}

// ExplainConfigChange renders the explanation for a configuration drift alert
func ExplainConfigChange(change core.ConfigChange) string {
	action := "review the change with its author and restore the file from a verified snapshot if it is not expected"
	switch change.Class {
	case core.ConfigChangeCredential:
		action = "rotate the affected credentials immediately and restore the file from a verified snapshot"
	case core.ConfigChangePrivilege:
		action = "revert the privilege change, audit recently granted permissions, and investigate the change author"
	case core.ConfigChangeNetwork:
		action = "verify the network change against the change calendar and investigate if unplanned"
	}

	return fmt.Sprintf(
		"CONFIGURATION DRIFT: content hash of %s changed (class %s, %s -> %s). "+
			"Recommended actions: %s.",
		change.FilePath,
		change.Class,
		shortHash(change.PreviousHash),
		shortHash(change.CurrentHash),
		action,
	)
}

// ExplainLoginSource renders the explanation for an unusual login source alert
func ExplainLoginSource(source core.LoginSource) string {
	return fmt.Sprintf(
		"UNUSUAL LOGIN SOURCE: identity %q logged in from unrecognized source %s. "+
			"Recommended actions: verify the login with the account owner, and investigate the session if it cannot be confirmed.",
		source.Identity,
		source.Source,
	)
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func shortHash(h string) string {
	if h == "" {
		return "none"
	}
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
