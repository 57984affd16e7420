/*
ledger.go - Points ledger writer

PURPOSE:
  Every balance mutation goes through PointsLedger so the user counters
  and the append-only ledger can never drift apart: a credit or debit is
  always paired with exactly one LedgerEntry.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: ledger entries are never edited or deleted
  2. PAIRED: balance change and entry are written in the same unit
  3. NO OVERDRAFT: debits are conditional on the stored balance

CORRECTIONS:
  A failed unit on the compensating path is undone with reversal
  entries (reason "reversal"), never by deleting the original entry:

    credit +50 (recognition_award), then reversal -50 (reversal)

SEE ALSO:
  - atomic.go: Steps returned here run through MultiWriter
  - store.go: Directory.IncrementPoints / DebitPoints
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Reference ties a ledger entry to the document that caused it.
type Reference struct {
	Type   RefType
	ID     string
	Reason LedgerReason
}

type PointsLedger struct {
	Now    func() time.Time
	Logger *zap.Logger
}

func NewPointsLedger() *PointsLedger {
	return &PointsLedger{Now: time.Now}
}

// restore undoes a balance change whose ledger entry could not be
// written. A failure here leaves the balance and the ledger apart, so it
// is logged with everything needed to repair it by hand.
func (l *PointsLedger) restore(ctx context.Context, s Store, tenantID, userID string, inc PointsIncrement, cause error) {
	err := s.IncrementPoints(context.WithoutCancel(ctx), tenantID, userID, inc)
	if err == nil {
		return
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error("failed to restore balance after ledger write failed",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.Int("balance_delta", inc.Balance),
		zap.NamedError("cause", cause),
		zap.Error(err))
}

func (l *PointsLedger) entry(tenantID, userID string, delta int, reason LedgerReason, ref Reference) LedgerEntry {
	return LedgerEntry{
		ID:        NewID(),
		TenantID:  tenantID,
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		RefType:   ref.Type,
		RefID:     ref.ID,
		CreatedAt: l.Now().UTC(),
	}
}

// Credit adds points to balance and lifetime earnings, bumps the
// recognition count and records a positive entry.
func (l *PointsLedger) Credit(ctx context.Context, s Store, tenantID, userID string, points int, ref Reference) (LedgerEntry, error) {
	if points <= 0 {
		return LedgerEntry{}, Validation("invalid_points", "credit amount must be positive")
	}
	inc := PointsIncrement{Balance: points, TotalEarned: points, RecognitionCount: 1}
	if err := s.IncrementPoints(ctx, tenantID, userID, inc); err != nil {
		return LedgerEntry{}, fmt.Errorf("credit %s: %w", userID, err)
	}
	e := l.entry(tenantID, userID, points, ref.Reason, ref)
	if err := s.AppendLedgerEntry(ctx, e); err != nil {
		l.restore(ctx, s, tenantID, userID, inc.Neg(), err)
		return LedgerEntry{}, fmt.Errorf("record credit %s: %w", userID, err)
	}
	return e, nil
}

// Debit subtracts points only if the balance covers them and records a
// negative entry. Returns *InsufficientBalanceError otherwise.
func (l *PointsLedger) Debit(ctx context.Context, s Store, tenantID, userID string, points int, ref Reference) (LedgerEntry, error) {
	if points <= 0 {
		return LedgerEntry{}, Validation("invalid_points", "debit amount must be positive")
	}
	ok, err := s.DebitPoints(ctx, tenantID, userID, points)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("debit %s: %w", userID, err)
	}
	if !ok {
		available := 0
		if u, err := s.GetUser(ctx, tenantID, userID); err == nil && u != nil {
			available = u.PointsBalance
		}
		return LedgerEntry{}, &InsufficientBalanceError{UserID: userID, Available: available, Requested: points}
	}
	e := l.entry(tenantID, userID, -points, ref.Reason, ref)
	if err := s.AppendLedgerEntry(ctx, e); err != nil {
		l.restore(ctx, s, tenantID, userID, PointsIncrement{Balance: points}, err)
		return LedgerEntry{}, fmt.Errorf("record debit %s: %w", userID, err)
	}
	return e, nil
}

// Refund returns previously debited points to the balance only.
// Lifetime earnings are not touched. Admin grants use it too.
func (l *PointsLedger) Refund(ctx context.Context, s Store, tenantID, userID string, points int, ref Reference) (LedgerEntry, error) {
	if points <= 0 {
		return LedgerEntry{}, Validation("invalid_points", "refund amount must be positive")
	}
	if err := s.IncrementPoints(ctx, tenantID, userID, PointsIncrement{Balance: points}); err != nil {
		return LedgerEntry{}, fmt.Errorf("refund %s: %w", userID, err)
	}
	e := l.entry(tenantID, userID, points, ref.Reason, ref)
	if err := s.AppendLedgerEntry(ctx, e); err != nil {
		l.restore(ctx, s, tenantID, userID, PointsIncrement{Balance: -points}, err)
		return LedgerEntry{}, fmt.Errorf("record refund %s: %w", userID, err)
	}
	return e, nil
}

func (l *PointsLedger) reverseCredit(ctx context.Context, s Store, tenantID, userID string, points int, ref Reference) error {
	inc := PointsIncrement{Balance: points, TotalEarned: points, RecognitionCount: 1}
	if err := s.IncrementPoints(ctx, tenantID, userID, inc.Neg()); err != nil {
		return err
	}
	return s.AppendLedgerEntry(ctx, l.entry(tenantID, userID, -points, ReasonReversal, ref))
}

func (l *PointsLedger) reverseRefund(ctx context.Context, s Store, tenantID, userID string, points int, ref Reference) error {
	if err := s.IncrementPoints(ctx, tenantID, userID, PointsIncrement{Balance: -points}); err != nil {
		return err
	}
	return s.AppendLedgerEntry(ctx, l.entry(tenantID, userID, -points, ReasonReversal, ref))
}

func (l *PointsLedger) reverseDebit(ctx context.Context, s Store, tenantID, userID string, points int, ref Reference) error {
	if err := s.IncrementPoints(ctx, tenantID, userID, PointsIncrement{Balance: points}); err != nil {
		return err
	}
	return s.AppendLedgerEntry(ctx, l.entry(tenantID, userID, points, ReasonReversal, ref))
}

// =============================================================================
// STEPS
// =============================================================================

func (l *PointsLedger) CreditStep(tenantID, userID string, points int, ref Reference) Step {
	return Step{
		Name: "credit:" + userID,
		Do: func(ctx context.Context, s Store) error {
			_, err := l.Credit(ctx, s, tenantID, userID, points, ref)
			return err
		},
		Undo: func(ctx context.Context, s Store) error {
			return l.reverseCredit(ctx, s, tenantID, userID, points, ref)
		},
	}
}

func (l *PointsLedger) DebitStep(tenantID, userID string, points int, ref Reference) Step {
	return Step{
		Name: "debit:" + userID,
		Do: func(ctx context.Context, s Store) error {
			_, err := l.Debit(ctx, s, tenantID, userID, points, ref)
			return err
		},
		Undo: func(ctx context.Context, s Store) error {
			return l.reverseDebit(ctx, s, tenantID, userID, points, ref)
		},
	}
}

func (l *PointsLedger) RefundStep(tenantID, userID string, points int, ref Reference) Step {
	return Step{
		Name: "refund:" + userID,
		Do: func(ctx context.Context, s Store) error {
			_, err := l.Refund(ctx, s, tenantID, userID, points, ref)
			return err
		},
		Undo: func(ctx context.Context, s Store) error {
			return l.reverseRefund(ctx, s, tenantID, userID, points, ref)
		},
	}
}

// GrantStep adds points to the balance outside of a recognition. Like a
// refund it leaves lifetime earnings and the recognition count alone.
func (l *PointsLedger) GrantStep(tenantID, userID string, points int, ref Reference) Step {
	st := l.RefundStep(tenantID, userID, points, ref)
	st.Name = "grant:" + userID
	return st
}
