/*
store.go - Persistence interfaces for the recognition engine

PURPOSE:
  Defines the interface between the workflows and the database.
  Every method is tenant-scoped. Lookups return (nil, nil) when the
  document does not exist; workflows decide what "missing" means.

KEY INTERFACES:
  Directory:        Users, orgs and their point counters
  RecognitionStore: Recognitions, status transitions, feed queries
  LedgerStore:      Append-only points ledger
  RewardStore:      Reward catalog and stock
  RedemptionStore:  Redemption records
  AuditLog:         Who did what when
  Store:            All of the above
  TxStore:          Store plus multi-document transactions

CONDITIONAL WRITES:
  DebitPoints, DecrementAvailability and TransitionRecognition are
  single-statement conditional updates. They report whether the
  condition matched so concurrent callers can never overdraw a balance,
  oversell stock or approve the same recognition twice.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite with real transactions
  - engine/store/memory.go: In-memory, with and without transactions

SEE ALSO:
  - atomic.go: MultiWriter runs steps against a Store
  - ledger.go: Points ledger writer
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// DIRECTORY
// =============================================================================

type Directory interface {
	SaveOrg(ctx context.Context, org Org) error
	GetOrg(ctx context.Context, id string) (*Org, error)

	// SaveUser inserts or replaces the user record.
	SaveUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, tenantID, id string) (*User, error)
	// FindUsers returns the users that exist, in no particular order.
	FindUsers(ctx context.Context, tenantID string, ids []string) ([]User, error)
	ListUsers(ctx context.Context, tenantID string, activeOnly bool) ([]User, error)

	// IncrementPoints applies inc atomically. Negative values are allowed
	// for compensation. A missing user is a NotFound error.
	IncrementPoints(ctx context.Context, tenantID, userID string, inc PointsIncrement) error
	// DebitPoints subtracts points only if the balance covers them.
	DebitPoints(ctx context.Context, tenantID, userID string, points int) (bool, error)
	IncrementMonthlySpent(ctx context.Context, tenantID, userID string, points int) error
	// ResetMonthlySpent zeroes monthly spend for one tenant, or for every
	// tenant when tenantID is empty.
	ResetMonthlySpent(ctx context.Context, tenantID string) (int64, error)
}

// =============================================================================
// RECOGNITIONS
// =============================================================================

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
	DirectionAll      Direction = "all"
)

// RecognitionQuery filters recognitions. Results are ordered by
// (CreatedAt desc, ID desc) unless OldestFirst is set.
type RecognitionQuery struct {
	TenantID   string
	PublicOnly bool
	Status     Status
	Type       RecognitionType

	// ParticipantID with Direction restricts to recognitions sent and/or
	// received by that user.
	ParticipantID string
	Direction     Direction

	// Search is a case-insensitive substring match over the message and
	// participant names.
	Search   string
	ValueTag string

	// After keeps only items strictly after the cursor in feed order.
	After *Cursor

	OldestFirst bool
	Offset      int
	Limit       int
}

// Transition moves a recognition from one status to another. It only
// applies if the stored status still equals From.
type Transition struct {
	From       Status
	To         Status
	ApprovedBy string
	ApprovedAt *time.Time
	At         time.Time
}

type RecognitionStore interface {
	InsertRecognition(ctx context.Context, r Recognition) error
	GetRecognition(ctx context.Context, tenantID, id string) (*Recognition, error)
	// DeleteRecognition exists for compensation only.
	DeleteRecognition(ctx context.Context, tenantID, id string) error
	TransitionRecognition(ctx context.Context, tenantID, id string, t Transition) (bool, error)
	SetReactions(ctx context.Context, tenantID, id string, reactions []Reaction) error
	QueryRecognitions(ctx context.Context, q RecognitionQuery) ([]Recognition, error)

	// CountRecognitionsSince counts recognitions of any status created at
	// or after since.
	CountRecognitionsSince(ctx context.Context, tenantID string, since time.Time) (int, error)
	// CountByRecipientDepartment counts recipients per snapshot department.
	// A recognition with three recipients adds three. Missing departments
	// are counted under "".
	CountByRecipientDepartment(ctx context.Context, tenantID string) (map[string]int, error)
}

// =============================================================================
// LEDGER
// =============================================================================

type LedgerStore interface {
	// AppendLedgerEntry is the ONLY write operation on the ledger.
	AppendLedgerEntry(ctx context.Context, e LedgerEntry) error
	// ListLedgerEntries returns a user's entries, newest first.
	ListLedgerEntries(ctx context.Context, tenantID, userID string, limit int) ([]LedgerEntry, error)
	// NetDeltaByRefType sums a tenant's deltas per reference type, so a
	// reversal cancels the entry it corrects.
	NetDeltaByRefType(ctx context.Context, tenantID string) (map[RefType]int, error)
}

// =============================================================================
// REWARDS & REDEMPTIONS
// =============================================================================

type RewardStore interface {
	SaveReward(ctx context.Context, r Reward) error
	GetReward(ctx context.Context, tenantID, id string) (*Reward, error)
	ListRewards(ctx context.Context, tenantID string, activeOnly bool) ([]Reward, error)
	// DecrementAvailability takes one unit only if availability > 0.
	DecrementAvailability(ctx context.Context, tenantID, rewardID string) (bool, error)
	IncrementAvailability(ctx context.Context, tenantID, rewardID string) error
}

type RedemptionQuery struct {
	TenantID    string
	UserID      string
	Status      RedemptionStatus
	OldestFirst bool
	Limit       int
}

type RedemptionStore interface {
	InsertRedemption(ctx context.Context, r Redemption) error
	GetRedemption(ctx context.Context, tenantID, id string) (*Redemption, error)
	UpdateRedemption(ctx context.Context, r Redemption) error
	// ListRedemptions returns newest first unless OldestFirst is set.
	ListRedemptions(ctx context.Context, q RedemptionQuery) ([]Redemption, error)
}

// =============================================================================
// AUDIT LOG - Separate from ledger, tracks who did what when
// =============================================================================

type AuditAction string

const (
	AuditRecognitionApproved     AuditAction = "recognition.approved"
	AuditRecognitionRejected     AuditAction = "recognition.rejected"
	AuditRedemptionStatusUpdated AuditAction = "redemption.status_updated"
	AuditRewardSaved             AuditAction = "reward.saved"
	AuditAllowancesReset         AuditAction = "allowances.reset"
	AuditPointsGranted           AuditAction = "points.granted"
)

// AuditEntry records who did what when.
type AuditEntry struct {
	ID         string
	TenantID   string
	ActorID    string
	Action     AuditAction
	EntityType string
	EntityID   string
	Diff       map[string]any
	Timestamp  time.Time
}

type AuditLog interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// ListAudit returns newest first.
	ListAudit(ctx context.Context, tenantID string, limit int) ([]AuditEntry, error)
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	Directory
	RecognitionStore
	LedgerStore
	RewardStore
	RedemptionStore
	AuditLog
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	// Returns ErrTxUnsupported when the deployment has no transactions.
	WithTx(ctx context.Context, fn func(Store) error) error
}
