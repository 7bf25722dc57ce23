package types

type OutcomeStatus string

const (
	OutcomeTriggered OutcomeStatus = "triggered"
	OutcomeDenied    OutcomeStatus = "denied"
	OutcomeBlocked   OutcomeStatus = "blocked"
	OutcomeFailed    OutcomeStatus = "failed"
)

// ReceiptSource identifies the intake run whose artifact the gate consumed.
// Correlation is by intake run id, not proposal id, so two rapid runs for
// the same proposal can never read each other's artifact.
type ReceiptSource struct {
	Repo        string `json:"repo"`
	Workflow    string `json:"workflow"`
	IntakeRunID int64  `json:"intake_run_id"`
	ProposalID  int    `json:"proposal_id"`
	HeadRev     string `json:"head_rev"`
	BaseRev     string `json:"base_rev"`
}

type ReceiptPolicy struct {
	PolicyID      string `json:"policy_id"`
	PolicyVersion string `json:"policy_version"`
	PolicyHash    string `json:"policy_hash"`
}

// ReceiptAuthorization mirrors the AuthzDecision that was in force when the
// gate acted, captured so an auditor can reconstruct the decision offline.
type ReceiptAuthorization struct {
	Checked       bool     `json:"checked"`
	Authorized    bool     `json:"authorized"`
	GrantedBy     string   `json:"granted_by,omitempty"`
	CheckedLogins []string `json:"checked_logins,omitempty"`
	SkippedEmails []string `json:"skipped_emails,omitempty"`
}

// ReceiptBuild records one downstream build-run started by the gate.
type ReceiptBuild struct {
	Target string `json:"target"`
	RunID  int64  `json:"run_id"`
}

type ReceiptOutcome struct {
	Status OutcomeStatus `json:"status"`
	Error  *struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error,omitempty"`
}
