package ledger

import (
	"fmt"

	"github.com/prgate/prgate/internal/crypto"
	"github.com/prgate/prgate/pkg/types"
)

const ReceiptSchema = "prgate.receipt.v0.1"

type Signer interface {
	KeyID() string
	SignEd25519(message []byte) ([]byte, error)
}

type MakeReceiptInput struct {
	Schema    string
	CreatedAt string

	Source        types.ReceiptSource
	Policy        types.ReceiptPolicy
	ArtifactID    string
	Authorization types.ReceiptAuthorization
	Builds        []types.ReceiptBuild
	Outcome       types.ReceiptOutcome
}

// StoredReceipt is the signed audit record of one gate run. A dashboard can
// verify the digest and signature offline without replaying the run.
type StoredReceipt struct {
	ReceiptID  string
	BodyDigest string
	BodyJSON   []byte
	KeyID      string
	Sig        []byte

	IntakeRunID   int64
	ProposalID    int
	ArtifactID    string
	OutcomeStatus types.OutcomeStatus
	CreatedAt     string
}

// MakeReceipt canonicalizes, hashes and signs a receipt body.
func MakeReceipt(in MakeReceiptInput, signer Signer) (StoredReceipt, error) {
	if in.Schema == "" {
		in.Schema = ReceiptSchema
	}
	if in.Schema != ReceiptSchema {
		return StoredReceipt{}, fmt.Errorf("unsupported receipt schema %q", in.Schema)
	}
	if signer == nil {
		return StoredReceipt{}, fmt.Errorf("missing signer")
	}

	body, err := crypto.Canonicalize(receiptView(in))
	if err != nil {
		return StoredReceipt{}, err
	}

	digest := crypto.DigestWithPrefix(body)
	sig, err := signer.SignEd25519(crypto.DigestBytes(body))
	if err != nil {
		return StoredReceipt{}, err
	}

	return StoredReceipt{
		ReceiptID:     digest,
		BodyDigest:    digest,
		BodyJSON:      body,
		KeyID:         signer.KeyID(),
		Sig:           sig,
		IntakeRunID:   in.Source.IntakeRunID,
		ProposalID:    in.Source.ProposalID,
		ArtifactID:    in.ArtifactID,
		OutcomeStatus: in.Outcome.Status,
		CreatedAt:     in.CreatedAt,
	}, nil
}

func receiptView(in MakeReceiptInput) map[string]any {
	builds := make([]any, 0, len(in.Builds))
	for _, build := range in.Builds {
		builds = append(builds, map[string]any{
			"target": build.Target,
			"run_id": build.RunID,
		})
	}

	checked := make([]any, 0, len(in.Authorization.CheckedLogins))
	for _, login := range in.Authorization.CheckedLogins {
		checked = append(checked, login)
	}
	skipped := make([]any, 0, len(in.Authorization.SkippedEmails))
	for _, email := range in.Authorization.SkippedEmails {
		skipped = append(skipped, email)
	}

	view := map[string]any{
		"schema":      in.Schema,
		"created_at":  in.CreatedAt,
		"artifact_id": in.ArtifactID,
		"source": map[string]any{
			"repo":          in.Source.Repo,
			"workflow":      in.Source.Workflow,
			"intake_run_id": in.Source.IntakeRunID,
			"proposal_id":   in.Source.ProposalID,
			"head_rev":      in.Source.HeadRev,
			"base_rev":      in.Source.BaseRev,
		},
		"policy": map[string]any{
			"policy_id":      in.Policy.PolicyID,
			"policy_version": in.Policy.PolicyVersion,
			"policy_hash":    in.Policy.PolicyHash,
		},
		"authorization": map[string]any{
			"checked":        in.Authorization.Checked,
			"authorized":     in.Authorization.Authorized,
			"granted_by":     in.Authorization.GrantedBy,
			"checked_logins": checked,
			"skipped_emails": skipped,
		},
		"builds": builds,
		"outcome": map[string]any{
			"status": string(in.Outcome.Status),
		},
	}

	if in.Outcome.Error != nil {
		outcome := view["outcome"].(map[string]any)
		outcome["error"] = map[string]any{
			"code": in.Outcome.Error.Code,
			"msg":  in.Outcome.Error.Msg,
		}
	}

	return view
}
