package artifact

import (
	"github.com/prgate/prgate/internal/crypto"
	"github.com/prgate/prgate/pkg/types"
)

const ArtifactSchema = "prgate.intake.v0.1"

type BuildInput struct {
	Repo                  string
	ProposalID            int
	HeadRev               string
	BaseRev               string
	Author                string
	CommitAuthors         []types.CommitAuthor
	TrustBoundaryModified bool
	CreatedAt             string
}

// Build assembles an intake artifact and computes its content-addressed
// artifact_id over the canonical signing view.
func Build(in BuildInput) (types.IntakeArtifact, error) {
	record := types.IntakeArtifact{
		Schema:                ArtifactSchema,
		CreatedAt:             in.CreatedAt,
		Repo:                  in.Repo,
		ProposalID:            in.ProposalID,
		HeadRev:               in.HeadRev,
		BaseRev:               in.BaseRev,
		Author:                in.Author,
		CommitAuthors:         in.CommitAuthors,
		TrustBoundaryModified: in.TrustBoundaryModified,
	}

	canonical, err := crypto.Canonicalize(signingView(record))
	if err != nil {
		return types.IntakeArtifact{}, err
	}

	record.ArtifactID = crypto.DigestWithPrefix(canonical)
	return record, nil
}

// RecomputeID recomputes the artifact_id from the record's signing view.
// The trust gate compares it against the stored artifact_id so a tampered
// or truncated artifact is caught before any field is trusted.
func RecomputeID(record types.IntakeArtifact) (string, error) {
	canonical, err := crypto.Canonicalize(signingView(record))
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}

func signingView(record types.IntakeArtifact) map[string]any {
	authors := make([]any, 0, len(record.CommitAuthors))
	for _, author := range record.CommitAuthors {
		authors = append(authors, map[string]any{
			"email":    author.Email,
			"login":    author.Login,
			"resolved": author.Resolved,
		})
	}

	return map[string]any{
		"schema":                  record.Schema,
		"created_at":              record.CreatedAt,
		"repo":                    record.Repo,
		"proposal_id":             record.ProposalID,
		"head_rev":                record.HeadRev,
		"base_rev":                record.BaseRev,
		"author":                  record.Author,
		"commit_authors":          authors,
		"trust_boundary_modified": record.TrustBoundaryModified,
	}
}
