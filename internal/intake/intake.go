// Package intake implements the unprivileged producer stage. It reads
// proposal metadata through a read-only forge view and condenses it into a
// single immutable artifact. It holds no secrets and must never execute
// anything from the proposal it describes; everything here works off
// metadata (commit lists, file paths) only.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prgate/prgate/internal/artifact"
	"github.com/prgate/prgate/internal/policy"
	"github.com/prgate/prgate/pkg/types"
)

// ErrIntake marks a failed intake run. No artifact is produced on failure:
// the gate treats the absence of an artifact as "not ready", never as
// "authorized".
var ErrIntake = errors.New("intake failed")

type Proposal struct {
	Repo    string
	Number  int
	HeadRev string
	BaseRev string
	Author  string
}

type Commit struct {
	AuthorEmail string
	AuthorLogin string // empty when the platform did not attach a login
}

// Source is the read-only view of the proposal under review.
type Source interface {
	Proposal(ctx context.Context) (Proposal, error)
	Commits(ctx context.Context) ([]Commit, error)
	ChangedPaths(ctx context.Context) ([]string, error)

	// ResolveEmail is the platform's public identity lookup. The second
	// return is false when no account matches the email.
	ResolveEmail(ctx context.Context, email string) (string, bool, error)
}

type Processor struct {
	Source Source
	Policy policy.Policy
	Now    func() time.Time
}

// Run produces exactly one artifact or fails loudly. A proposal whose
// commits carry unresolvable emails is not a fault; those authors are
// recorded as unresolved and the membership check later skips them.
func (p *Processor) Run(ctx context.Context) (types.IntakeArtifact, error) {
	if p.Source == nil {
		return types.IntakeArtifact{}, fmt.Errorf("%w: missing source", ErrIntake)
	}

	proposal, err := p.Source.Proposal(ctx)
	if err != nil {
		return types.IntakeArtifact{}, fmt.Errorf("%w: read proposal: %v", ErrIntake, err)
	}

	commits, err := p.Source.Commits(ctx)
	if err != nil {
		return types.IntakeArtifact{}, fmt.Errorf("%w: read commit range: %v", ErrIntake, err)
	}

	changed, err := p.Source.ChangedPaths(ctx)
	if err != nil {
		return types.IntakeArtifact{}, fmt.Errorf("%w: read changed paths: %v", ErrIntake, err)
	}

	authors := p.collectAuthors(ctx, commits)
	boundary := policy.CheckTrustBoundary(p.Policy, changed)

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	record, err := artifact.Build(artifact.BuildInput{
		Repo:                  proposal.Repo,
		ProposalID:            proposal.Number,
		HeadRev:               proposal.HeadRev,
		BaseRev:               proposal.BaseRev,
		Author:                proposal.Author,
		CommitAuthors:         authors,
		TrustBoundaryModified: boundary.Touched,
		CreatedAt:             now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return types.IntakeArtifact{}, fmt.Errorf("%w: build artifact: %v", ErrIntake, err)
	}

	if err := artifact.Validate(record); err != nil {
		return types.IntakeArtifact{}, fmt.Errorf("%w: %v", ErrIntake, err)
	}
	return record, nil
}

// collectAuthors keeps distinct commit emails in first-seen order. Login
// resolution is best effort: a commit-attached login wins, then the public
// email lookup; lookup failures leave the author unresolved rather than
// failing the run.
func (p *Processor) collectAuthors(ctx context.Context, commits []Commit) []types.CommitAuthor {
	seen := map[string]struct{}{}
	authors := make([]types.CommitAuthor, 0, len(commits))

	for _, commit := range commits {
		if commit.AuthorEmail == "" {
			continue
		}
		if _, dup := seen[commit.AuthorEmail]; dup {
			continue
		}
		seen[commit.AuthorEmail] = struct{}{}

		author := types.CommitAuthor{Email: commit.AuthorEmail}
		if commit.AuthorLogin != "" {
			author.Login = commit.AuthorLogin
			author.Resolved = true
		} else if login, ok, err := p.Source.ResolveEmail(ctx, commit.AuthorEmail); err == nil && ok {
			author.Login = login
			author.Resolved = true
		}
		authors = append(authors, author)
	}

	return authors
}
