/*
Package redemption implements reward redemption and fulfillment.

PURPOSE:
  Turns points into catalog rewards. A redemption reserves one unit of
  stock, debits the reward's price from the user and records both the
  redemption and its ledger entry as one unit.

FLOW (redeem):
  1. Load reward: must exist and be active
  2. Advisory checks: stock > 0, balance >= points_required
  3. One atomic unit:
       reserve stock      (conditional, undo: restock)
       debit points       (conditional, undo: reversal entry)
       insert redemption
  4. Log

The advisory checks give friendly errors. The conditional writes in step 3
are what actually stop two concurrent redemptions from taking the last
unit or overdrawing a balance.

FULFILLMENT:
  Admins move redemptions along the provider's lifecycle (see
  provider.go). Cancelling refunds the points and restocks the reward.
  Every status change is audited and announced to the recipient.

SEE ALSO:
  - provider.go: Initial status and transition table
  - catalog.go: Reward catalog maintenance
  - engine/ledger.go: DebitStep / RefundStep
*/
package redemption

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/recognition-engine/engine"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type Service struct {
	store    engine.Store
	writer   *engine.MultiWriter
	ledger   *engine.PointsLedger
	notifier engine.Notifier
	logger   *zap.Logger

	Now func() time.Time
}

func NewService(store engine.Store, notifier engine.Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = engine.NopNotifier{}
	}
	s := &Service{
		store:    store,
		writer:   engine.NewMultiWriter(store, logger),
		notifier: notifier,
		logger:   logger,
		Now:      time.Now,
	}
	s.ledger = &engine.PointsLedger{Now: func() time.Time { return s.Now() }, Logger: logger}
	return s
}

// =============================================================================
// REDEEM
// =============================================================================

func (s *Service) Redeem(ctx context.Context, actor engine.User, rewardID string) (*engine.Redemption, error) {
	reward, err := s.store.GetReward(ctx, actor.TenantID, rewardID)
	if err != nil {
		return nil, fmt.Errorf("load reward: %w", err)
	}
	if reward == nil {
		return nil, engine.NotFound("reward_not_found", "Reward not found.")
	}
	if !reward.IsActive {
		return nil, engine.Validation("reward_inactive", "This reward is no longer available.")
	}
	if reward.Availability <= 0 {
		return nil, outOfStock()
	}

	user, err := s.store.GetUser(ctx, actor.TenantID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, engine.NotFound("user_not_found", "User not found.")
	}
	if user.PointsBalance < reward.PointsRequired {
		return nil, &engine.InsufficientBalanceError{
			UserID: user.ID, Available: user.PointsBalance, Requested: reward.PointsRequired,
		}
	}

	now := s.Now().UTC()
	r := engine.Redemption{
		ID:          engine.NewID(),
		TenantID:    actor.TenantID,
		UserID:      actor.ID,
		RewardID:    reward.ID,
		RewardTitle: reward.Title,
		PointsUsed:  reward.PointsRequired,
		Provider:    reward.Provider,
		Status:      InitialStatus(reward.Provider),
		RedeemedAt:  now,
	}

	steps := []engine.Step{reserveStep(r.TenantID, r.RewardID)}
	if r.PointsUsed > 0 {
		ref := engine.Reference{Type: engine.RefRedemption, ID: r.ID, Reason: engine.ReasonRewardRedemption}
		steps = append(steps, s.ledger.DebitStep(r.TenantID, r.UserID, r.PointsUsed, ref))
	}
	steps = append(steps, engine.Step{
		Name: "insert-redemption",
		Do: func(ctx context.Context, st engine.Store) error {
			return st.InsertRedemption(ctx, r)
		},
	})
	if err := s.writer.Run(ctx, steps...); err != nil {
		return nil, err
	}

	s.logger.Info("reward redeemed",
		zap.String("tenant_id", r.TenantID),
		zap.String("redemption_id", r.ID),
		zap.String("reward_id", r.RewardID),
		zap.String("user_id", r.UserID),
		zap.Int("points", r.PointsUsed))
	return &r, nil
}

func reserveStep(tenantID, rewardID string) engine.Step {
	return engine.Step{
		Name: "reserve:" + rewardID,
		Do: func(ctx context.Context, st engine.Store) error {
			ok, err := st.DecrementAvailability(ctx, tenantID, rewardID)
			if err != nil {
				return err
			}
			if !ok {
				return outOfStock()
			}
			return nil
		},
		Undo: func(ctx context.Context, st engine.Store) error {
			return st.IncrementAvailability(ctx, tenantID, rewardID)
		},
	}
}

func outOfStock() error {
	return engine.Exhausted(engine.ErrOutOfStock, "out_of_stock", "This reward is out of stock.")
}

// ListForUser returns the actor's redemptions, newest first.
func (s *Service) ListForUser(ctx context.Context, actor engine.User, limit int) ([]engine.Redemption, error) {
	return s.store.ListRedemptions(ctx, engine.RedemptionQuery{
		TenantID: actor.TenantID,
		UserID:   actor.ID,
		Limit:    clamp(limit),
	})
}

// =============================================================================
// FULFILLMENT
// =============================================================================

// ListByStatus is the admin work queue, oldest first. An empty status
// lists everything.
func (s *Service) ListByStatus(ctx context.Context, admin engine.User, status string, limit int) ([]engine.Redemption, error) {
	if !admin.Role.Elevated() {
		return nil, adminRequired()
	}
	q := engine.RedemptionQuery{TenantID: admin.TenantID, OldestFirst: true, Limit: clamp(limit)}
	if status != "" {
		st, ok := parseStatus(strings.ToLower(strings.TrimSpace(status)))
		if !ok {
			return nil, engine.Validation("invalid_status", fmt.Sprintf("unknown redemption status %q", status))
		}
		q.Status = st
	}
	return s.store.ListRedemptions(ctx, q)
}

// UpdateInput is an admin fulfillment change. Empty fields are left alone.
type UpdateInput struct {
	Status          string
	TrackingNumber  string
	FulfillmentCode string
	FulfilledAt     *time.Time
	DeliveredAt     *time.Time
}

func (s *Service) UpdateStatus(ctx context.Context, admin engine.User, id string, in UpdateInput) (*engine.Redemption, error) {
	if !admin.Role.Elevated() {
		return nil, adminRequired()
	}
	old, err := s.store.GetRedemption(ctx, admin.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load redemption: %w", err)
	}
	if old == nil {
		return nil, engine.NotFound("redemption_not_found", "Redemption not found.")
	}

	to := old.Status
	if raw := strings.ToLower(strings.TrimSpace(in.Status)); raw != "" {
		st, ok := parseStatus(raw)
		if !ok {
			return nil, engine.Validation("invalid_status", fmt.Sprintf("unknown redemption status %q", in.Status))
		}
		to = st
	}
	if to != old.Status && !canTransition(old.Status, to) {
		return nil, engine.Conflict("invalid_transition",
			fmt.Sprintf("Cannot move a redemption from %s to %s.", old.Status, to))
	}

	now := s.Now().UTC()
	updated := *old
	updated.Status = to
	if in.TrackingNumber != "" {
		updated.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	}
	if in.FulfillmentCode != "" {
		updated.FulfillmentCode = strings.TrimSpace(in.FulfillmentCode)
	}
	if to == engine.RedemptionFulfilled && old.Status != to {
		updated.FulfilledAt = orNow(in.FulfilledAt, now)
	}
	if to == engine.RedemptionDelivered && old.Status != to {
		updated.DeliveredAt = orNow(in.DeliveredAt, now)
	}

	steps := []engine.Step{updateStep(*old, updated)}
	if to == engine.RedemptionCancelled && old.Status != to {
		if old.PointsUsed > 0 {
			ref := engine.Reference{Type: engine.RefRedemption, ID: old.ID, Reason: engine.ReasonRedemptionRefund}
			steps = append(steps, s.ledger.RefundStep(old.TenantID, old.UserID, old.PointsUsed, ref))
		}
		steps = append(steps, restockStep(old.TenantID, old.RewardID))
	}
	steps = append(steps, auditStep(admin, *old, updated, now))

	if err := s.writer.Run(ctx, steps...); err != nil {
		return nil, err
	}

	s.logger.Info("redemption updated",
		zap.String("tenant_id", updated.TenantID),
		zap.String("redemption_id", updated.ID),
		zap.String("from", string(old.Status)),
		zap.String("to", string(updated.Status)))

	if old.Status != updated.Status {
		s.notifier.RedemptionStatusChanged(ctx, engine.RedemptionEvent{
			TenantID:   updated.TenantID,
			Redemption: updated,
			OldStatus:  old.Status,
			ActorID:    admin.ID,
			At:         now,
		})
	}
	return &updated, nil
}

// updateStep re-reads the redemption inside the unit so two admins racing
// on the same record cannot both apply a transition.
func updateStep(old, updated engine.Redemption) engine.Step {
	return engine.Step{
		Name: "update-redemption",
		Do: func(ctx context.Context, st engine.Store) error {
			cur, err := st.GetRedemption(ctx, old.TenantID, old.ID)
			if err != nil {
				return err
			}
			if cur == nil || cur.Status != old.Status {
				return engine.Conflict("invalid_transition", "Redemption was changed by someone else.")
			}
			return st.UpdateRedemption(ctx, updated)
		},
		Undo: func(ctx context.Context, st engine.Store) error {
			return st.UpdateRedemption(ctx, old)
		},
	}
}

func restockStep(tenantID, rewardID string) engine.Step {
	return engine.Step{
		Name: "restock:" + rewardID,
		Do: func(ctx context.Context, st engine.Store) error {
			return st.IncrementAvailability(ctx, tenantID, rewardID)
		},
		Undo: func(ctx context.Context, st engine.Store) error {
			_, err := st.DecrementAvailability(ctx, tenantID, rewardID)
			return err
		},
	}
}

func auditStep(admin engine.User, old, updated engine.Redemption, at time.Time) engine.Step {
	diff := map[string]any{
		"status": map[string]any{"from": string(old.Status), "to": string(updated.Status)},
	}
	if updated.TrackingNumber != old.TrackingNumber {
		diff["tracking_number"] = updated.TrackingNumber
	}
	if updated.FulfillmentCode != old.FulfillmentCode {
		diff["fulfillment_code_set"] = true
	}
	return engine.Step{
		Name: "audit",
		Do: func(ctx context.Context, st engine.Store) error {
			return st.AppendAudit(ctx, engine.AuditEntry{
				ID:         engine.NewID(),
				TenantID:   old.TenantID,
				ActorID:    admin.ID,
				Action:     engine.AuditRedemptionStatusUpdated,
				EntityType: "redemption",
				EntityID:   old.ID,
				Diff:       diff,
				Timestamp:  at,
			})
		},
	}
}

func orNow(t *time.Time, now time.Time) *time.Time {
	if t != nil {
		v := t.UTC()
		return &v
	}
	return &now
}

func adminRequired() error {
	return engine.Forbidden("admin_required", "Only HR and executive leaders can manage rewards.")
}

func clamp(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
