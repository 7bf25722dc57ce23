package sqlstore

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/prgate/prgate/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Migrate() error {
	return ledger.Migrate(s.db, ledger.DBSQLite)
}

func (s *Store) WithTx(fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) PutArtifact(rec ledger.ArtifactRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutArtifact(rec) })
}

func (s *Store) GetArtifact(runID int64) (ledger.ArtifactRecord, bool) {
	var rec ledger.ArtifactRecord
	var body string
	row := s.db.QueryRow(`SELECT run_id, proposal_id, artifact_id, body_json, created_at FROM artifacts WHERE run_id = ?`, runID)
	if err := row.Scan(&rec.RunID, &rec.ProposalID, &rec.ArtifactID, &body, &rec.CreatedAt); err != nil {
		return ledger.ArtifactRecord{}, false
	}
	rec.BodyJSON = []byte(body)
	return rec, true
}

func (s *Store) PutReceipt(rec ledger.StoredReceipt) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutReceipt(rec) })
}

func (s *Store) GetReceipt(receiptID string) (ledger.StoredReceipt, bool) {
	row := s.db.QueryRow(`SELECT receipt_id, body_digest, body_json, key_id, sig, intake_run_id, proposal_id, artifact_id, outcome_status, created_at
FROM receipts WHERE receipt_id = ?`, receiptID)
	rec, err := scanReceipt(row)
	if err != nil {
		return ledger.StoredReceipt{}, false
	}
	return rec, true
}

func (s *Store) ListReceiptsByProposal(proposalID int) ([]ledger.StoredReceipt, error) {
	rows, err := s.db.Query(`SELECT receipt_id, body_digest, body_json, key_id, sig, intake_run_id, proposal_id, artifact_id, outcome_status, created_at
FROM receipts WHERE proposal_id = ? ORDER BY created_at ASC`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.StoredReceipt{}
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) PutOutbox(rec ledger.OutboxRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutOutbox(rec) })
}

func (s *Store) GetOutbox(notificationID string) (ledger.OutboxRecord, bool) {
	row := s.db.QueryRow(`SELECT notification_id, repo, proposal_id, body, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at
FROM outbox WHERE notification_id = ?`, notificationID)
	rec, err := scanOutbox(row)
	if err != nil {
		return ledger.OutboxRecord{}, false
	}
	return rec, true
}

func (s *Store) ListOutboxDue(now string, limit int) ([]ledger.OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT notification_id, repo, proposal_id, body, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at
FROM outbox
WHERE status = 'pending' AND next_attempt_at <= ?
ORDER BY created_at ASC
LIMIT ?`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.OutboxRecord{}
	for rows.Next() {
		rec, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) ClaimDedupKey(key ledger.DedupKey) (bool, error) {
	res, err := s.db.Exec(`INSERT INTO dedup_keys(proposal_id, head_rev, claimed_at) VALUES(?, ?, ?)
ON CONFLICT(proposal_id, head_rev) DO NOTHING`, key.ProposalID, key.HeadRev, key.ClaimedAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) PruneBefore(cutoff string) (int, error) {
	pruned := 0
	res, err := s.db.Exec(`DELETE FROM artifacts WHERE created_at < ?`, cutoff)
	if err != nil {
		return pruned, err
	}
	if n, err := res.RowsAffected(); err == nil {
		pruned += int(n)
	}

	res, err = s.db.Exec(`DELETE FROM outbox WHERE status = 'sent' AND created_at < ?`, cutoff)
	if err != nil {
		return pruned, err
	}
	if n, err := res.RowsAffected(); err == nil {
		pruned += int(n)
	}
	return pruned, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (ledger.StoredReceipt, error) {
	var rec ledger.StoredReceipt
	var body string
	if err := row.Scan(
		&rec.ReceiptID,
		&rec.BodyDigest,
		&body,
		&rec.KeyID,
		&rec.Sig,
		&rec.IntakeRunID,
		&rec.ProposalID,
		&rec.ArtifactID,
		&rec.OutcomeStatus,
		&rec.CreatedAt,
	); err != nil {
		return ledger.StoredReceipt{}, err
	}
	rec.BodyJSON = []byte(body)
	return rec, nil
}

func scanOutbox(row scanner) (ledger.OutboxRecord, error) {
	var rec ledger.OutboxRecord
	if err := row.Scan(
		&rec.NotificationID,
		&rec.Repo,
		&rec.ProposalID,
		&rec.Body,
		&rec.Status,
		&rec.AttemptCount,
		&rec.NextAttemptAt,
		&rec.LastError,
		&rec.SentAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return ledger.OutboxRecord{}, err
	}
	return rec, nil
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) PutArtifact(rec ledger.ArtifactRecord) error {
	_, err := t.tx.Exec(`INSERT INTO artifacts(run_id, proposal_id, artifact_id, body_json, created_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET proposal_id=excluded.proposal_id, artifact_id=excluded.artifact_id, body_json=excluded.body_json, created_at=excluded.created_at`,
		rec.RunID, rec.ProposalID, rec.ArtifactID, string(rec.BodyJSON), rec.CreatedAt)
	return err
}

func (t *Tx) GetArtifact(runID int64) (ledger.ArtifactRecord, bool) {
	var rec ledger.ArtifactRecord
	var body string
	row := t.tx.QueryRow(`SELECT run_id, proposal_id, artifact_id, body_json, created_at FROM artifacts WHERE run_id = ?`, runID)
	if err := row.Scan(&rec.RunID, &rec.ProposalID, &rec.ArtifactID, &body, &rec.CreatedAt); err != nil {
		return ledger.ArtifactRecord{}, false
	}
	rec.BodyJSON = []byte(body)
	return rec, true
}

func (t *Tx) PutReceipt(rec ledger.StoredReceipt) error {
	_, err := t.tx.Exec(`INSERT INTO receipts(receipt_id, body_digest, body_json, key_id, sig, intake_run_id, proposal_id, artifact_id, outcome_status, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(receipt_id) DO NOTHING`,
		rec.ReceiptID, rec.BodyDigest, string(rec.BodyJSON), rec.KeyID, rec.Sig, rec.IntakeRunID, rec.ProposalID, rec.ArtifactID, string(rec.OutcomeStatus), rec.CreatedAt)
	return err
}

func (t *Tx) GetReceipt(receiptID string) (ledger.StoredReceipt, bool) {
	row := t.tx.QueryRow(`SELECT receipt_id, body_digest, body_json, key_id, sig, intake_run_id, proposal_id, artifact_id, outcome_status, created_at
FROM receipts WHERE receipt_id = ?`, receiptID)
	rec, err := scanReceipt(row)
	if err != nil {
		return ledger.StoredReceipt{}, false
	}
	return rec, true
}

func (t *Tx) PutOutbox(rec ledger.OutboxRecord) error {
	_, err := t.tx.Exec(`INSERT INTO outbox(notification_id, repo, proposal_id, body, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(notification_id) DO UPDATE SET status=excluded.status, attempt_count=excluded.attempt_count, next_attempt_at=excluded.next_attempt_at, last_error=excluded.last_error, sent_at=excluded.sent_at, updated_at=excluded.updated_at`,
		rec.NotificationID, rec.Repo, rec.ProposalID, rec.Body, rec.Status, rec.AttemptCount, rec.NextAttemptAt, rec.LastError, rec.SentAt, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (t *Tx) GetOutbox(notificationID string) (ledger.OutboxRecord, bool) {
	row := t.tx.QueryRow(`SELECT notification_id, repo, proposal_id, body, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at
FROM outbox WHERE notification_id = ?`, notificationID)
	rec, err := scanOutbox(row)
	if err != nil {
		return ledger.OutboxRecord{}, false
	}
	return rec, true
}
