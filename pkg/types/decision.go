package types

// AuthzDecision is computed fresh on every trust gate run and never cached
// or persisted across runs.
type AuthzDecision struct {
	Schema        string          `json:"schema"`
	DecisionID    string          `json:"decision_id"`
	CreatedAt     string          `json:"created_at"`
	ArtifactID    string          `json:"artifact_id"`
	Authorized    bool            `json:"authorized"`
	GrantedBy     string          `json:"granted_by,omitempty"`
	CheckedLogins []string        `json:"checked_logins"`
	SkippedEmails []string        `json:"skipped_emails,omitempty"`
	Group         MembershipGroup `json:"group"`
}

// MembershipGroup names the directory group the decision was checked against.
type MembershipGroup struct {
	Org  string `json:"org"`
	Team string `json:"team"`
}
