package types

// IntakeArtifact is the record the intake processor publishes for a single
// proposal run. It is written exactly once, never mutated, and re-validated
// field by field by the trust gate before any privileged step runs.
type IntakeArtifact struct {
	Schema                string         `json:"schema"`
	ArtifactID            string         `json:"artifact_id"`
	CreatedAt             string         `json:"created_at"`
	Repo                  string         `json:"repo"`
	ProposalID            int            `json:"proposal_id"`
	HeadRev               string         `json:"head_rev"`
	BaseRev               string         `json:"base_rev"`
	Author                string         `json:"author"`
	CommitAuthors         []CommitAuthor `json:"commit_authors"`
	TrustBoundaryModified bool           `json:"trust_boundary_modified"`
}

// CommitAuthor pairs a commit email with the platform login it resolved to.
// Resolved is false when the lookup found no account for the email; such
// entries are skipped by the membership check, never failed.
type CommitAuthor struct {
	Email    string `json:"email"`
	Login    string `json:"login,omitempty"`
	Resolved bool   `json:"resolved"`
}
