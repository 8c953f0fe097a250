package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// nullIfEmpty converts an empty string to a SQL NULL
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// parseTime parses an RFC3339 timestamp column
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// parseNullTime parses an optional RFC3339 timestamp column into a pointer
func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// formatTime formats a timestamp for storage
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
