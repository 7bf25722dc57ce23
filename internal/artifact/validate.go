package artifact

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prgate/prgate/pkg/types"
)

// RevisionHexLen is the length of a full git object id in hex.
const RevisionHexLen = 40

// ErrValidation marks an artifact that failed shape validation. The gate
// aborts on it before any membership lookup; no partial trust is extended
// to partially valid artifacts.
var ErrValidation = errors.New("artifact validation failed")

// Validate re-checks every field's shape. The gate calls this on retrieved
// artifacts even though the intake processor built them with the same
// package: the gate never assumes the producer ran untampered.
func Validate(record types.IntakeArtifact) error {
	if record.Schema != ArtifactSchema {
		return fmt.Errorf("%w: unsupported schema %q", ErrValidation, record.Schema)
	}
	if record.ProposalID <= 0 {
		return fmt.Errorf("%w: proposal_id must be positive, got %d", ErrValidation, record.ProposalID)
	}
	if record.Repo == "" || !strings.Contains(record.Repo, "/") {
		return fmt.Errorf("%w: repo must be owner/name, got %q", ErrValidation, record.Repo)
	}
	if err := validateRevision("head_rev", record.HeadRev); err != nil {
		return err
	}
	if err := validateRevision("base_rev", record.BaseRev); err != nil {
		return err
	}
	if strings.TrimSpace(record.Author) == "" {
		return fmt.Errorf("%w: author is empty", ErrValidation)
	}
	if _, err := time.Parse(time.RFC3339, record.CreatedAt); err != nil {
		return fmt.Errorf("%w: created_at is not RFC3339: %q", ErrValidation, record.CreatedAt)
	}

	seen := map[string]struct{}{}
	for i, author := range record.CommitAuthors {
		if strings.TrimSpace(author.Email) == "" {
			return fmt.Errorf("%w: commit_authors[%d] has empty email", ErrValidation, i)
		}
		if _, dup := seen[author.Email]; dup {
			return fmt.Errorf("%w: duplicate commit author %q", ErrValidation, author.Email)
		}
		seen[author.Email] = struct{}{}
		if author.Resolved && strings.TrimSpace(author.Login) == "" {
			return fmt.Errorf("%w: commit_authors[%d] resolved without login", ErrValidation, i)
		}
		if !author.Resolved && author.Login != "" {
			return fmt.Errorf("%w: commit_authors[%d] has login but is marked unresolved", ErrValidation, i)
		}
	}

	if record.ArtifactID != "" {
		recomputed, err := RecomputeID(record)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		if recomputed != record.ArtifactID {
			return fmt.Errorf("%w: artifact_id does not match content", ErrValidation)
		}
	}

	return nil
}

func validateRevision(field, rev string) error {
	if len(rev) != RevisionHexLen {
		return fmt.Errorf("%w: %s must be %d hex chars, got %d", ErrValidation, field, RevisionHexLen, len(rev))
	}
	for _, r := range rev {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("%w: %s is not lowercase hex", ErrValidation, field)
		}
	}
	return nil
}
