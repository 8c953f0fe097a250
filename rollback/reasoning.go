package rollback

import (
	"fmt"
	"strings"
	"time"

	"vigil/core"
)

// Reasoning text for rollback decisions.
//
// Like the detector explanations, these are deterministic template
// expansions over structured data. They annotate state transitions but are
// rendered by pure functions kept separate from the transitions themselves.

// OptionReasoning describes one candidate restoration target for operators
func OptionReasoning(snapshot *core.Snapshot, deployment *core.Deployment, now time.Time) string {
	age := now.Sub(snapshot.CreatedAt)

	return fmt.Sprintf(
		"Candidate state: version %s deployed to %s. Source revision %s, captured %s (%d files in manifest). "+
			"Snapshot verified by %s and eligible as a rollback target.",
		deployment.Version,
		snapshot.Environment,
		snapshot.SourceRevision,
		humanizeAge(age),
		len(snapshot.FileManifest),
		valueOr(snapshot.VerifiedBy, "automated verification"),
	)
}

// InitiationNarrative renders the structured analysis attached to a new
// rollback request. The narrative always carries the Rollback Analysis,
// Target State, Risk Assessment and Recommendation sections, and states
// explicitly that human approval is required before execution.
func InitiationNarrative(request *core.RollbackRequest, snapshot *core.Snapshot, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Rollback Analysis\n")
	fmt.Fprintf(&b, "Environment %q will be restored to snapshot %s. Stated reason: %s. Requested by %s.\n\n",
		request.Environment, snapshot.SnapshotID, request.Reason, request.RequestedBy)

	fmt.Fprintf(&b, "Target State\n")
	fmt.Fprintf(&b, "Source revision %s, captured %s, manifest of %d files. Snapshot verified by %s.\n\n",
		snapshot.SourceRevision, humanizeAge(now.Sub(snapshot.CreatedAt)), len(snapshot.FileManifest),
		valueOr(snapshot.VerifiedBy, "automated verification"))

	fmt.Fprintf(&b, "Risk Assessment\n")
	fmt.Fprintf(&b, "Changes deployed after the snapshot was captured will be lost. "+
		"The restoration runs to completion once started and cannot be cancelled mid-flight; "+
		"an integrity verification pass runs after the manifest is applied.\n\n")

	fmt.Fprintf(&b, "Recommendation\n")
	fmt.Fprintf(&b, "Confirm that the stated reason justifies losing post-snapshot changes, "+
		"then approve or reject this request. Human approval is required before execution.")

	return b.String()
}

// humanizeAge renders a duration as an approximate human-readable age
func humanizeAge(age time.Duration) string {
	switch {
	case age < time.Minute:
		return "moments ago"
	case age < time.Hour:
		return fmt.Sprintf("about %d minutes ago", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("about %d hours ago", int(age.Hours()))
	default:
		return fmt.Sprintf("about %d days ago", int(age.Hours()/24))
	}
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
