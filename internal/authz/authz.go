// Package authz computes the trust gate's authorization decision against an
// external membership directory. Decisions are recomputed from a live lookup
// on every run; there is deliberately no cache that could serve a stale
// authorization after a member is removed from the group.
package authz

import (
	"context"
	"fmt"

	"github.com/prgate/prgate/internal/crypto"
	"github.com/prgate/prgate/pkg/types"
)

const DecisionSchema = "prgate.decision.v0.1"

// Directory answers whether a platform login belongs to the trusted group.
type Directory interface {
	IsMember(ctx context.Context, login string) (bool, error)
}

type Input struct {
	ArtifactID    string
	Author        string
	CommitAuthors []types.CommitAuthor
	Group         types.MembershipGroup
	CreatedAt     string
}

// Decide checks the declared author and every resolved commit author against
// the directory. Any single member grants authorization; the OR semantics
// are a deliberate permissiveness policy inherited from the upstream release
// process, not an oversight. Unresolved commit emails are recorded as
// skipped and never count for or against the proposal. Lookup errors abort
// the decision; a directory failure is a fault, not a denial.
func Decide(ctx context.Context, dir Directory, in Input) (types.AuthzDecision, error) {
	decision := types.AuthzDecision{
		Schema:     DecisionSchema,
		CreatedAt:  in.CreatedAt,
		ArtifactID: in.ArtifactID,
		Group:      in.Group,
	}

	seen := map[string]struct{}{}
	candidates := make([]string, 0, 1+len(in.CommitAuthors))
	if in.Author != "" {
		candidates = append(candidates, in.Author)
		seen[in.Author] = struct{}{}
	}
	for _, author := range in.CommitAuthors {
		if !author.Resolved {
			decision.SkippedEmails = append(decision.SkippedEmails, author.Email)
			continue
		}
		if _, dup := seen[author.Login]; dup {
			continue
		}
		seen[author.Login] = struct{}{}
		candidates = append(candidates, author.Login)
	}

	decision.CheckedLogins = []string{}
	for _, login := range candidates {
		member, err := dir.IsMember(ctx, login)
		if err != nil {
			return types.AuthzDecision{}, fmt.Errorf("membership lookup for %q: %w", login, err)
		}
		decision.CheckedLogins = append(decision.CheckedLogins, login)
		if member {
			decision.Authorized = true
			decision.GrantedBy = login
			break
		}
	}

	canonical, err := crypto.Canonicalize(signingView(decision))
	if err != nil {
		return types.AuthzDecision{}, err
	}
	decision.DecisionID = crypto.DigestWithPrefix(canonical)
	return decision, nil
}

func signingView(decision types.AuthzDecision) map[string]any {
	return map[string]any{
		"schema":         decision.Schema,
		"created_at":     decision.CreatedAt,
		"artifact_id":    decision.ArtifactID,
		"authorized":     decision.Authorized,
		"granted_by":     decision.GrantedBy,
		"checked_logins": decision.CheckedLogins,
		"skipped_emails": decision.SkippedEmails,
		"group": map[string]any{
			"org":  decision.Group.Org,
			"team": decision.Group.Team,
		},
	}
}
