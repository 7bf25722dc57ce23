package sqlstore

import (
	"fmt"
	"testing"

	"github.com/prgate/prgate/internal/ledger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestStoreCRUD(t *testing.T) {
	s := openTestStore(t)

	art := ledger.ArtifactRecord{
		RunID:      9001,
		ProposalID: 42,
		ArtifactID: "sha256:artifact",
		BodyJSON:   []byte(`{"proposal_id":42}`),
		CreatedAt:  "2026-08-25T10:00:00Z",
	}
	if err := s.PutArtifact(art); err != nil {
		t.Fatalf("put artifact: %v", err)
	}
	if got, ok := s.GetArtifact(9001); !ok || got.ArtifactID != art.ArtifactID || string(got.BodyJSON) != string(art.BodyJSON) {
		t.Fatalf("get artifact mismatch: ok=%v got=%+v", ok, got)
	}
	if _, ok := s.GetArtifact(9999); ok {
		t.Fatalf("unexpected artifact for unknown run")
	}

	receipt := ledger.StoredReceipt{
		ReceiptID:     "sha256:receipt",
		BodyDigest:    "sha256:receipt",
		BodyJSON:      []byte(`{"schema":"prgate.receipt.v0.1"}`),
		KeyID:         "k1",
		Sig:           []byte{0x01, 0x02},
		IntakeRunID:   9001,
		ProposalID:    42,
		ArtifactID:    "sha256:artifact",
		OutcomeStatus: "triggered",
		CreatedAt:     "2026-08-25T10:00:05Z",
	}
	if err := s.PutReceipt(receipt); err != nil {
		t.Fatalf("put receipt: %v", err)
	}
	if got, ok := s.GetReceipt("sha256:receipt"); !ok || got.ProposalID != 42 || got.OutcomeStatus != "triggered" {
		t.Fatalf("get receipt mismatch: ok=%v got=%+v", ok, got)
	}

	list, err := s.ListReceiptsByProposal(42)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(list) != 1 || list[0].ReceiptID != "sha256:receipt" {
		t.Fatalf("unexpected receipts: %+v", list)
	}
}

func TestStoreOutboxLifecycle(t *testing.T) {
	s := openTestStore(t)

	rec := ledger.OutboxRecord{
		NotificationID: "n1",
		Repo:           "acme/inference-containers",
		ProposalID:     42,
		Body:           "gate decision: authorized",
		Status:         "pending",
		NextAttemptAt:  "2026-08-25T10:00:00Z",
		CreatedAt:      "2026-08-25T09:59:00Z",
		UpdatedAt:      "2026-08-25T09:59:00Z",
	}
	if err := s.PutOutbox(rec); err != nil {
		t.Fatalf("put outbox: %v", err)
	}

	due, err := s.ListOutboxDue("2026-08-25T10:30:00Z", 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 1 || due[0].NotificationID != "n1" {
		t.Fatalf("unexpected due: %+v", due)
	}

	sentAt := "2026-08-25T10:31:00Z"
	rec.Status = "sent"
	rec.SentAt = &sentAt
	rec.UpdatedAt = sentAt
	if err := s.PutOutbox(rec); err != nil {
		t.Fatalf("update outbox: %v", err)
	}

	due, err = s.ListOutboxDue("2026-08-25T11:00:00Z", 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("sent record still due: %+v", due)
	}

	got, ok := s.GetOutbox("n1")
	if !ok || got.SentAt == nil || *got.SentAt != sentAt {
		t.Fatalf("get outbox mismatch: ok=%v got=%+v", ok, got)
	}
}

func TestStoreDedupClaim(t *testing.T) {
	s := openTestStore(t)
	key := ledger.DedupKey{ProposalID: 42, HeadRev: "bbbb", ClaimedAt: "2026-08-25T10:00:00Z"}

	claimed, err := s.ClaimDedupKey(key)
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	claimed, err = s.ClaimDedupKey(key)
	if err != nil || claimed {
		t.Fatalf("second claim should lose: claimed=%v err=%v", claimed, err)
	}
}

func TestStorePruneBefore(t *testing.T) {
	s := openTestStore(t)

	_ = s.PutArtifact(ledger.ArtifactRecord{RunID: 1, ProposalID: 1, ArtifactID: "sha256:x", BodyJSON: []byte(`{}`), CreatedAt: "2026-08-24T00:00:00Z"})
	_ = s.PutArtifact(ledger.ArtifactRecord{RunID: 2, ProposalID: 1, ArtifactID: "sha256:y", BodyJSON: []byte(`{}`), CreatedAt: "2026-08-25T09:00:00Z"})

	pruned, err := s.PruneBefore("2026-08-25T00:00:00Z")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d", pruned)
	}
	if _, ok := s.GetArtifact(1); ok {
		t.Fatalf("old artifact should be gone")
	}
}
