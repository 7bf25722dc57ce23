// Package gate implements the privileged consumer stage. It re-derives
// every security-relevant fact from the retrieved artifact and fresh
// directory lookups; nothing the unprivileged producer asserts is taken on
// faith beyond the artifact's own content digest.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/prgate/prgate/internal/artifact"
	"github.com/prgate/prgate/internal/authz"
	"github.com/prgate/prgate/internal/ledger"
	"github.com/prgate/prgate/internal/notify"
	"github.com/prgate/prgate/internal/policy"
	"github.com/prgate/prgate/pkg/types"
)

// ErrArtifactMissing marks a run whose triggering intake run uploaded no
// artifact. The gate treats this as "intake not finished or failed" and
// never as an implicit authorization.
var ErrArtifactMissing = errors.New("intake artifact missing")

// ErrDownstream marks a fault while acting on an authorized decision, such
// as a build dispatch failure.
var ErrDownstream = errors.New("downstream action failed")

// ArtifactFetcher retrieves the artifact uploaded by one intake run.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, runID int64) (types.IntakeArtifact, bool, error)
}

// BuildDispatcher starts one build target and returns its run identifier
// (0 when the dispatch was accepted but the run could not be located).
type BuildDispatcher interface {
	Trigger(ctx context.Context, target policy.Target, inputs map[string]interface{}) (int64, error)
}

type Gate struct {
	Repo     string
	Workflow string

	Policy     policy.Policy
	PolicyHash string

	Store      ledger.Store
	Fetcher    ArtifactFetcher
	Directory  authz.Directory
	Dispatcher BuildDispatcher
	Poster     notify.Poster
	Signer     ledger.Signer

	// DedupHeads suppresses duplicate triggers for the same proposal head
	// through a ledger compare-and-set. Off by default: re-running the gate
	// on purpose is a supported operator action.
	DedupHeads bool

	Now func() time.Time
}

// Result summarizes one finished gate run.
type Result struct {
	State     State
	Outcome   types.OutcomeStatus
	Duplicate bool

	Artifact types.IntakeArtifact
	Decision *types.AuthzDecision
	Builds   []types.ReceiptBuild
	Receipt  ledger.StoredReceipt
}

// Run executes the full gate pipeline for the artifact uploaded by
// intakeRunID. Every run ends with at most one notification on the
// proposal thread; faults get a best-effort failure notice and a non-nil
// error.
func (g *Gate) Run(ctx context.Context, intakeRunID int64) (Result, error) {
	machine := NewMachine()
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	record, ok, err := g.Fetcher.Fetch(ctx, intakeRunID)
	if err != nil {
		return g.fail(ctx, machine, intakeRunID, nil, nil, nil, "retrieve", err, now)
	}
	if !ok {
		return g.fail(ctx, machine, intakeRunID, nil, nil, nil, "artifact_missing",
			fmt.Errorf("%w: run %d", ErrArtifactMissing, intakeRunID), now)
	}
	if err := machine.To(StateRetrieved); err != nil {
		return g.fail(ctx, machine, intakeRunID, &record, nil, nil, "internal", err, now)
	}
	if err := g.persistArtifact(intakeRunID, record, now); err != nil {
		return g.fail(ctx, machine, intakeRunID, &record, nil, nil, "ledger", err, now)
	}

	if err := g.validate(record); err != nil {
		return g.fail(ctx, machine, intakeRunID, &record, nil, nil, "validation", err, now)
	}
	if err := machine.To(StateValidated); err != nil {
		return g.fail(ctx, machine, intakeRunID, &record, nil, nil, "internal", err, now)
	}

	if record.TrustBoundaryModified {
		return g.finishBlocked(ctx, machine, intakeRunID, record, now)
	}

	decision, err := authz.Decide(ctx, g.Directory, authz.Input{
		ArtifactID:    record.ArtifactID,
		Author:        record.Author,
		CommitAuthors: record.CommitAuthors,
		Group:         types.MembershipGroup{Org: g.Policy.Membership.Org, Team: g.Policy.Membership.Team},
		CreatedAt:     now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return g.fail(ctx, machine, intakeRunID, &record, nil, nil, "authorization_lookup", err, now)
	}
	if err := machine.To(StateAuthorizationChecked); err != nil {
		return g.fail(ctx, machine, intakeRunID, &record, &decision, nil, "internal", err, now)
	}

	if !decision.Authorized {
		return g.finishDenied(ctx, machine, intakeRunID, record, decision, now)
	}

	if g.DedupHeads {
		claimed, err := g.Store.ClaimDedupKey(ledger.DedupKey{
			ProposalID: record.ProposalID,
			HeadRev:    record.HeadRev,
			ClaimedAt:  now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return g.fail(ctx, machine, intakeRunID, &record, &decision, nil, "ledger", err, now)
		}
		if !claimed {
			log.Printf("gate: proposal %d head %s already handled, skipping", record.ProposalID, record.HeadRev)
			return Result{State: machine.Current(), Duplicate: true, Artifact: record, Decision: &decision}, nil
		}
	}

	builds, err := g.triggerBuilds(ctx, record)
	if err != nil {
		return g.fail(ctx, machine, intakeRunID, &record, &decision, builds, "dispatch",
			fmt.Errorf("%w: %v", ErrDownstream, err), now)
	}
	if err := machine.To(StateTriggered); err != nil {
		return g.fail(ctx, machine, intakeRunID, &record, &decision, builds, "internal", err, now)
	}

	return g.finishTriggered(ctx, machine, intakeRunID, record, decision, builds, now)
}

func (g *Gate) validate(record types.IntakeArtifact) error {
	// A producer could omit the artifact id to dodge the content check, so
	// the gate requires it outright.
	if record.ArtifactID == "" {
		return fmt.Errorf("%w: artifact_id is empty", artifact.ErrValidation)
	}
	if err := artifact.Validate(record); err != nil {
		return err
	}
	if record.Repo != g.Repo {
		return fmt.Errorf("%w: artifact is for %q, gate is configured for %q",
			artifact.ErrValidation, record.Repo, g.Repo)
	}
	return nil
}

func (g *Gate) persistArtifact(runID int64, record types.IntakeArtifact, now func() time.Time) error {
	body, err := artifact.Encode(record)
	if err != nil {
		return err
	}
	return g.Store.PutArtifact(ledger.ArtifactRecord{
		RunID:      runID,
		ProposalID: record.ProposalID,
		ArtifactID: record.ArtifactID,
		BodyJSON:   body,
		CreatedAt:  now().UTC().Format(time.RFC3339),
	})
}

// triggerBuilds starts every configured target. Targets are all-or-fault:
// a dispatch failure after some targets started is reported as a fault and
// the receipt records the builds that did start.
func (g *Gate) triggerBuilds(ctx context.Context, record types.IntakeArtifact) ([]types.ReceiptBuild, error) {
	inputs := map[string]interface{}{
		"proposal":    strconv.Itoa(record.ProposalID),
		"head_rev":    record.HeadRev,
		"artifact_id": record.ArtifactID,
	}

	builds := make([]types.ReceiptBuild, 0, len(g.Policy.Targets))
	for _, target := range g.Policy.Targets {
		runID, err := g.Dispatcher.Trigger(ctx, target, inputs)
		if err != nil {
			return builds, fmt.Errorf("trigger %s: %v", target.Name, err)
		}
		builds = append(builds, types.ReceiptBuild{Target: target.Name, RunID: runID})
	}
	return builds, nil
}

func (g *Gate) finishBlocked(ctx context.Context, machine *Machine, runID int64, record types.IntakeArtifact, now func() time.Time) (Result, error) {
	if err := machine.To(StateBlocked); err != nil {
		return g.fail(ctx, machine, runID, &record, nil, nil, "internal", err, now)
	}

	receipt, err := g.writeReceipt(runID, record, types.ReceiptAuthorization{}, nil, types.ReceiptOutcome{Status: types.OutcomeBlocked}, now)
	if err != nil {
		return g.fail(ctx, machine, runID, &record, nil, nil, "ledger", err, now)
	}

	// The artifact records the boundary flag, not the touched paths, so the
	// notice lists the configured boundary prefixes.
	body := notify.FormatBlocked(notify.MessageInput{
		ProposalID:    record.ProposalID,
		HeadRev:       record.HeadRev,
		BoundaryPaths: g.Policy.TrustBoundary.Paths,
		ReceiptID:     receipt.ReceiptID,
	})
	if err := g.report(ctx, machine, record.ProposalID, body, now); err != nil {
		return Result{State: machine.Current(), Outcome: types.OutcomeBlocked, Artifact: record, Receipt: receipt}, err
	}
	return Result{State: machine.Current(), Outcome: types.OutcomeBlocked, Artifact: record, Receipt: receipt}, nil
}

func (g *Gate) finishDenied(ctx context.Context, machine *Machine, runID int64, record types.IntakeArtifact, decision types.AuthzDecision, now func() time.Time) (Result, error) {
	if err := machine.To(StateDenied); err != nil {
		return g.fail(ctx, machine, runID, &record, &decision, nil, "internal", err, now)
	}

	receipt, err := g.writeReceipt(runID, record, receiptAuthz(decision), nil, types.ReceiptOutcome{Status: types.OutcomeDenied}, now)
	if err != nil {
		return g.fail(ctx, machine, runID, &record, &decision, nil, "ledger", err, now)
	}

	body := notify.FormatDenied(notify.MessageInput{
		ProposalID:    record.ProposalID,
		HeadRev:       record.HeadRev,
		Authorization: &decision,
		ReceiptID:     receipt.ReceiptID,
	})
	result := Result{State: machine.Current(), Outcome: types.OutcomeDenied, Artifact: record, Decision: &decision, Receipt: receipt}
	if err := g.report(ctx, machine, record.ProposalID, body, now); err != nil {
		return result, err
	}
	result.State = machine.Current()
	return result, nil
}

func (g *Gate) finishTriggered(ctx context.Context, machine *Machine, runID int64, record types.IntakeArtifact, decision types.AuthzDecision, builds []types.ReceiptBuild, now func() time.Time) (Result, error) {
	receipt, err := g.writeReceipt(runID, record, receiptAuthz(decision), builds, types.ReceiptOutcome{Status: types.OutcomeTriggered}, now)
	if err != nil {
		return g.fail(ctx, machine, runID, &record, &decision, builds, "ledger", err, now)
	}

	body := notify.FormatTriggered(notify.MessageInput{
		ProposalID:    record.ProposalID,
		HeadRev:       record.HeadRev,
		Authorization: &decision,
		Builds:        builds,
		ReceiptID:     receipt.ReceiptID,
	})
	result := Result{State: machine.Current(), Outcome: types.OutcomeTriggered, Artifact: record, Decision: &decision, Builds: builds, Receipt: receipt}
	if err := g.report(ctx, machine, record.ProposalID, body, now); err != nil {
		return result, err
	}
	result.State = machine.Current()
	return result, nil
}

// report enqueues the run's single notification and attempts delivery
// once. A post failure is not a run failure: the record stays in the
// outbox for the retry loop.
func (g *Gate) report(ctx context.Context, machine *Machine, proposalID int, body string, now func() time.Time) error {
	if _, err := notify.Enqueue(g.Store, g.Repo, proposalID, body, now()); err != nil {
		return err
	}
	if err := machine.To(StateReported); err != nil {
		return err
	}
	if _, err := notify.ProcessOutboxDue(ctx, g.Store, g.Poster, now(), 10); err != nil {
		log.Printf("gate: notification delivery deferred: %v", err)
	}
	return machine.To(StateDone)
}

// fail ends the run in StateFailed, writes a failed receipt when an
// artifact is available, and posts a best-effort fault notice. The
// original fault is always returned; reporting errors never mask it.
// A decision already computed and builds already started are passed in
// so the receipt and the notice still record them.
func (g *Gate) fail(ctx context.Context, machine *Machine, runID int64, record *types.IntakeArtifact, decision *types.AuthzDecision, builds []types.ReceiptBuild, code string, cause error, now func() time.Time) (Result, error) {
	machine.Fail()

	result := Result{State: StateFailed, Outcome: types.OutcomeFailed}
	if record == nil {
		return result, cause
	}
	result.Artifact = *record
	result.Decision = decision
	result.Builds = builds

	auth := types.ReceiptAuthorization{}
	if decision != nil {
		auth = receiptAuthz(*decision)
	}

	outcome := types.ReceiptOutcome{Status: types.OutcomeFailed}
	outcome.Error = &struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}{Code: code, Msg: cause.Error()}

	receipt, err := g.writeReceipt(runID, *record, auth, builds, outcome, now)
	if err != nil {
		log.Printf("gate: failed to write failure receipt: %v", err)
	} else {
		result.Receipt = receipt
	}

	body := notify.FormatFailed(notify.MessageInput{
		ProposalID:    record.ProposalID,
		Authorization: decision,
		Builds:        builds,
		FailureReason: code,
		ReceiptID:     receipt.ReceiptID,
	})
	if _, err := notify.Enqueue(g.Store, g.Repo, record.ProposalID, body, now()); err != nil {
		log.Printf("gate: failed to enqueue failure notice: %v", err)
	} else if _, err := notify.ProcessOutboxDue(ctx, g.Store, g.Poster, now(), 10); err != nil {
		log.Printf("gate: failure notice delivery deferred: %v", err)
	}

	return result, cause
}

func (g *Gate) writeReceipt(runID int64, record types.IntakeArtifact, auth types.ReceiptAuthorization, builds []types.ReceiptBuild, outcome types.ReceiptOutcome, now func() time.Time) (ledger.StoredReceipt, error) {
	receipt, err := ledger.MakeReceipt(ledger.MakeReceiptInput{
		Schema:    ledger.ReceiptSchema,
		CreatedAt: now().UTC().Format(time.RFC3339),
		Source: types.ReceiptSource{
			Repo:        g.Repo,
			Workflow:    g.Workflow,
			IntakeRunID: runID,
			ProposalID:  record.ProposalID,
			HeadRev:     record.HeadRev,
			BaseRev:     record.BaseRev,
		},
		Policy: types.ReceiptPolicy{
			PolicyID:      g.Policy.PolicyID,
			PolicyVersion: g.Policy.PolicyVersion,
			PolicyHash:    g.PolicyHash,
		},
		ArtifactID:    record.ArtifactID,
		Authorization: auth,
		Builds:        builds,
		Outcome:       outcome,
	}, g.Signer)
	if err != nil {
		return ledger.StoredReceipt{}, err
	}
	if err := g.Store.PutReceipt(receipt); err != nil {
		return ledger.StoredReceipt{}, err
	}
	return receipt, nil
}

func receiptAuthz(decision types.AuthzDecision) types.ReceiptAuthorization {
	return types.ReceiptAuthorization{
		Checked:       true,
		Authorized:    decision.Authorized,
		GrantedBy:     decision.GrantedBy,
		CheckedLogins: decision.CheckedLogins,
		SkippedEmails: decision.SkippedEmails,
	}
}
