package rollback

import "fmt"

// AlternativeOptions builds the remediation list attached to every failed
// rollback result. The list always covers at least a database-level
// recovery, a configuration-level recovery, and an escalation to an
// administrator, so a failure is never surfaced as a bare error with no
// next step.
func AlternativeOptions(environment, snapshotID string) []string {
	return []string{
		fmt.Sprintf("Restore the %s database from its most recent verified backup", environment),
		fmt.Sprintf("Re-sync configuration files for %s from snapshot %s manually and re-run verification", environment, snapshotID),
		fmt.Sprintf("Escalate to a platform administrator for manual recovery of %s", environment),
		"Initiate a new rollback request against an older verified snapshot",
	}
}
