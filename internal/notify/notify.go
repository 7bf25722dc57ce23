// Package notify delivers gate outcomes to the proposal's discussion
// thread. Delivery is best effort through a persistent outbox: a failed
// post never un-triggers a build, it just retries with backoff.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/prgate/prgate/internal/crypto"
	"github.com/prgate/prgate/internal/ledger"
)

// Poster posts one comment on a proposal's discussion thread.
type Poster interface {
	PostComment(ctx context.Context, repo string, proposalID int, body string) error
}

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
)

// Enqueue stores a pending notification. The notification id is derived
// from repo, proposal and body, so enqueueing the same message twice is a
// no-op update rather than a duplicate row.
func Enqueue(store ledger.Store, repo string, proposalID int, body string, now time.Time) (ledger.OutboxRecord, error) {
	if store == nil {
		return ledger.OutboxRecord{}, fmt.Errorf("missing store")
	}

	created := now.UTC().Format(time.RFC3339)
	rec := ledger.OutboxRecord{
		NotificationID: crypto.DigestWithPrefix([]byte(fmt.Sprintf("%s#%d\n%s", repo, proposalID, body))),
		Repo:           repo,
		ProposalID:     proposalID,
		Body:           body,
		Status:         OutboxStatusPending,
		NextAttemptAt:  created,
		CreatedAt:      created,
		UpdatedAt:      created,
	}

	if existing, ok := store.GetOutbox(rec.NotificationID); ok && existing.Status == OutboxStatusSent {
		return existing, nil
	}
	if err := store.PutOutbox(rec); err != nil {
		return ledger.OutboxRecord{}, err
	}
	return rec, nil
}

// ProcessOutboxDue sends due pending notifications. Posting failures push
// the record's next attempt out with exponential backoff.
func ProcessOutboxDue(ctx context.Context, store ledger.Store, poster Poster, now time.Time, limit int) (int, error) {
	if store == nil {
		return 0, fmt.Errorf("missing store")
	}
	if poster == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 50
	}

	due, err := store.ListOutboxDue(now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if rec.Status != OutboxStatusPending {
			continue
		}

		if err := poster.PostComment(ctx, rec.Repo, rec.ProposalID, rec.Body); err != nil {
			next := nextAttempt(rec.AttemptCount)
			rec.AttemptCount++
			rec.NextAttemptAt = now.UTC().Add(next).Format(time.RFC3339)
			msg := err.Error()
			rec.LastError = &msg
			rec.UpdatedAt = now.UTC().Format(time.RFC3339)
			if err := store.PutOutbox(rec); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		rec.Status = OutboxStatusSent
		sentAt := now.UTC().Format(time.RFC3339)
		rec.SentAt = &sentAt
		rec.UpdatedAt = sentAt
		if err := store.PutOutbox(rec); err != nil {
			return processed, err
		}
		processed++
	}

	return processed, nil
}

func nextAttempt(attemptCount int) time.Duration {
	// 5s, 10s, 20s, 40s, ... capped at 5m.
	base := 5 * time.Second
	if attemptCount <= 0 {
		return base
	}
	backoff := base << attemptCount
	if backoff > 5*time.Minute {
		return 5 * time.Minute
	}
	return backoff
}
