package ledger

import (
	"strconv"
	"sync"
)

type InMemoryStore struct {
	mu sync.Mutex

	artifacts map[int64]ArtifactRecord
	receipts  map[string]StoredReceipt
	outbox    map[string]OutboxRecord
	dedup     map[string]DedupKey
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		artifacts: make(map[int64]ArtifactRecord),
		receipts:  make(map[string]StoredReceipt),
		outbox:    make(map[string]OutboxRecord),
		dedup:     make(map[string]DedupKey),
	}
}

func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn((*memTx)(s))
}

type memTx InMemoryStore

func (s *InMemoryStore) PutArtifact(rec ArtifactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[rec.RunID] = rec
	return nil
}

func (s *InMemoryStore) GetArtifact(runID int64) (ArtifactRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.artifacts[runID]
	return rec, ok
}

func (s *InMemoryStore) PutReceipt(rec StoredReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[rec.ReceiptID] = rec
	return nil
}

func (s *InMemoryStore) GetReceipt(receiptID string) (StoredReceipt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.receipts[receiptID]
	return rec, ok
}

func (s *InMemoryStore) ListReceiptsByProposal(proposalID int) ([]StoredReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []StoredReceipt{}
	for _, rec := range s.receipts {
		if rec.ProposalID == proposalID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *InMemoryStore) PutOutbox(rec OutboxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox[rec.NotificationID] = rec
	return nil
}

func (s *InMemoryStore) GetOutbox(notificationID string) (OutboxRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.outbox[notificationID]
	return rec, ok
}

func (s *InMemoryStore) ListOutboxDue(now string, limit int) ([]OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []OutboxRecord{}
	for _, rec := range s.outbox {
		if rec.Status != "pending" {
			continue
		}
		if rec.NextAttemptAt > now {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) ClaimDedupKey(key DedupKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := dedupID(key)
	if _, claimed := s.dedup[id]; claimed {
		return false, nil
	}
	s.dedup[id] = key
	return true, nil
}

func (s *InMemoryStore) PruneBefore(cutoff string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for runID, rec := range s.artifacts {
		if rec.CreatedAt < cutoff {
			delete(s.artifacts, runID)
			pruned++
		}
	}
	for id, rec := range s.outbox {
		if rec.Status == "sent" && rec.CreatedAt < cutoff {
			delete(s.outbox, id)
			pruned++
		}
	}
	return pruned, nil
}

func (t *memTx) PutArtifact(rec ArtifactRecord) error {
	t.artifacts[rec.RunID] = rec
	return nil
}

func (t *memTx) GetArtifact(runID int64) (ArtifactRecord, bool) {
	rec, ok := t.artifacts[runID]
	return rec, ok
}

func (t *memTx) PutReceipt(rec StoredReceipt) error {
	t.receipts[rec.ReceiptID] = rec
	return nil
}

func (t *memTx) GetReceipt(receiptID string) (StoredReceipt, bool) {
	rec, ok := t.receipts[receiptID]
	return rec, ok
}

func (t *memTx) PutOutbox(rec OutboxRecord) error {
	t.outbox[rec.NotificationID] = rec
	return nil
}

func (t *memTx) GetOutbox(notificationID string) (OutboxRecord, bool) {
	rec, ok := t.outbox[notificationID]
	return rec, ok
}

func dedupID(key DedupKey) string {
	return strconv.Itoa(key.ProposalID) + "#" + key.HeadRev
}
