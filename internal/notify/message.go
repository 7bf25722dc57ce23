package notify

import (
	"fmt"
	"strings"

	"github.com/prgate/prgate/pkg/types"
)

// MessageInput carries everything a human auditor needs to reconstruct the
// gate's decision from the comment alone.
type MessageInput struct {
	ProposalID    int
	HeadRev       string
	Authorization *types.AuthzDecision
	BoundaryPaths []string
	Builds        []types.ReceiptBuild
	ReceiptID     string
	FailureReason string
}

// FormatTriggered renders the success notification listing every identity
// checked and the build runs started.
func FormatTriggered(in MessageInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trust gate: authorized, builds triggered for proposal #%d (head %s)\n", in.ProposalID, shortRev(in.HeadRev))
	writeAuthorization(&b, in.Authorization)
	for _, build := range in.Builds {
		fmt.Fprintf(&b, "- target %s: build run %d\n", build.Target, build.RunID)
	}
	writeReceipt(&b, in.ReceiptID)
	return b.String()
}

// FormatDenied renders the denial notification.
func FormatDenied(in MessageInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trust gate: denied, no checked identity is a member, proposal #%d (head %s)\n", in.ProposalID, shortRev(in.HeadRev))
	writeAuthorization(&b, in.Authorization)
	b.WriteString("no builds were triggered.\n")
	writeReceipt(&b, in.ReceiptID)
	return b.String()
}

// FormatBlocked renders the distinct trust-boundary notification. It is
// intentionally different from a denial: the block is independent of who
// the author is.
func FormatBlocked(in MessageInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trust gate: blocked, trust boundary modification in proposal #%d (head %s)\n", in.ProposalID, shortRev(in.HeadRev))
	b.WriteString("this proposal touches the gate's own workflow definitions; it cannot be auto-triggered regardless of membership:\n")
	for _, path := range in.BoundaryPaths {
		fmt.Fprintf(&b, "- %s\n", path)
	}
	b.WriteString("no builds were triggered.\n")
	writeReceipt(&b, in.ReceiptID)
	return b.String()
}

// FormatFailed renders the best-effort fault notification. When the fault
// interrupted an authorized run it still names the decision and any build
// already started, so the audit trail does not lose the run ids.
func FormatFailed(in MessageInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "trust gate: failed for proposal #%d (%s)\n", in.ProposalID, in.FailureReason)
	writeAuthorization(&b, in.Authorization)
	if len(in.Builds) > 0 {
		b.WriteString("builds started before the fault:\n")
		for _, build := range in.Builds {
			fmt.Fprintf(&b, "- target %s: build run %d\n", build.Target, build.RunID)
		}
	}
	b.WriteString("this is a fault, not a decision; a maintainer can re-run the gate.\n")
	writeReceipt(&b, in.ReceiptID)
	return b.String()
}

func writeAuthorization(b *strings.Builder, decision *types.AuthzDecision) {
	if decision == nil {
		return
	}
	if decision.Authorized {
		fmt.Fprintf(b, "granted by: %s\n", decision.GrantedBy)
	}
	if len(decision.CheckedLogins) > 0 {
		fmt.Fprintf(b, "identities checked: %s\n", strings.Join(decision.CheckedLogins, ", "))
	}
	if len(decision.SkippedEmails) > 0 {
		fmt.Fprintf(b, "unresolved commit emails (skipped): %s\n", strings.Join(decision.SkippedEmails, ", "))
	}
}

func writeReceipt(b *strings.Builder, receiptID string) {
	if receiptID != "" {
		fmt.Fprintf(b, "receipt: %s\n", receiptID)
	}
}

func shortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
