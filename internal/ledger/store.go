package ledger

// Store is the gate's audit ledger. Artifacts are keyed by the intake run
// that produced them, never by proposal id alone, so concurrent runs for
// the same proposal cannot clobber each other.
type Store interface {
	WithTx(fn func(Tx) error) error

	PutArtifact(rec ArtifactRecord) error
	GetArtifact(runID int64) (ArtifactRecord, bool)

	PutReceipt(rec StoredReceipt) error
	GetReceipt(receiptID string) (StoredReceipt, bool)
	ListReceiptsByProposal(proposalID int) ([]StoredReceipt, error)

	PutOutbox(rec OutboxRecord) error
	GetOutbox(notificationID string) (OutboxRecord, bool)
	ListOutboxDue(now string, limit int) ([]OutboxRecord, error)

	// ClaimDedupKey is an opt-in compare-and-set guard against duplicate
	// build triggers for the same proposal head. It returns false when the
	// key was already claimed by another run.
	ClaimDedupKey(key DedupKey) (bool, error)

	// PruneBefore deletes artifacts and sent outbox rows created before the
	// cutoff, enforcing the short retention window.
	PruneBefore(cutoff string) (int, error)
}

type Tx interface {
	PutArtifact(rec ArtifactRecord) error
	GetArtifact(runID int64) (ArtifactRecord, bool)

	PutReceipt(rec StoredReceipt) error
	GetReceipt(receiptID string) (StoredReceipt, bool)

	PutOutbox(rec OutboxRecord) error
	GetOutbox(notificationID string) (OutboxRecord, bool)
}

// ArtifactRecord is the ledger's copy of one retrieved intake artifact.
type ArtifactRecord struct {
	RunID      int64
	ProposalID int
	ArtifactID string
	BodyJSON   []byte
	CreatedAt  string
}

// OutboxRecord is one pending or sent proposal-thread notification.
type OutboxRecord struct {
	NotificationID string
	Repo           string
	ProposalID     int
	Body           string
	Status         string // pending | sent
	AttemptCount   int
	NextAttemptAt  string
	LastError      *string
	SentAt         *string
	CreatedAt      string
	UpdatedAt      string
}

// DedupKey identifies one proposal head for duplicate-trigger suppression.
type DedupKey struct {
	ProposalID int
	HeadRev    string
	ClaimedAt  string
}
