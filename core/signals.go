package core

import "time"

// Typed operational signals consumed by the anomaly detector.
//
// Each detector rule is keyed on one of these closed variants rather than on
// free-text message matching, so the severity tables stay directly testable
// as pure functions.

// LoginAttempt is a single authentication attempt for an identity.
type LoginAttempt struct {
	Identity string    `json:"identity" validate:"required"`
	SourceIP string    `json:"source_ip"`
	Success  bool      `json:"success"`
	At       time.Time `json:"at"`
}

// HoneytokenAccess records any read of an instrumented decoy value.
// Access is inherently suspicious regardless of the token kind.
type HoneytokenAccess struct {
	TokenType  string    `json:"token_type" validate:"required"`
	SourceIP   string    `json:"source_ip"`
	AccessedBy string    `json:"accessed_by"`
	At         time.Time `json:"at"`
}

// DataExportSample compares a current query volume against its baseline.
type DataExportSample struct {
	Identity     string    `json:"identity"`
	CurrentCount int       `json:"current_count" validate:"gte=0"`
	// BaselineRate at or below zero means no baseline is established yet;
	// such samples are ignored rather than rejected
	BaselineRate int       `json:"baseline_rate" validate:"gte=0"`
	At           time.Time `json:"at"`
}

// ConfigChange records a tracked file whose content hash changed.
type ConfigChange struct {
	FilePath     string            `json:"file_path" validate:"required"`
	PreviousHash string            `json:"previous_hash"`
	CurrentHash  string            `json:"current_hash" validate:"required"`
	Class        ConfigChangeClass `json:"class"`
	ChangedBy    string            `json:"changed_by"`
	At           time.Time         `json:"at"`
}

// LoginSource records the origin of a successful login for comparison
// against the known-source set.
type LoginSource struct {
	Identity string    `json:"identity" validate:"required"`
	Source   string    `json:"source" validate:"required"`
	At       time.Time `json:"at"`
}

// DatabaseAccess records a query burst for the off-hours rule.
type DatabaseAccess struct {
	Identity   string    `json:"identity"`
	QueryCount int       `json:"query_count" validate:"gte=0"`
	At         time.Time `json:"at"`
}
