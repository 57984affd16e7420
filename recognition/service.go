/*
Package recognition implements the recognition workflow.

PURPOSE:
  Orchestrates recipient validation, the scope authorization matrix,
  points determination, approval gating, persistence and notification.
  Gated recognitions (points above engine.ApprovalThreshold) wait in
  "pending" until an elevated approver approves or rejects them.

FLOW (create):
  1. Validate message, dedupe recipients, drop the actor
  2. Load recipients within the tenant
  3. Downline (managers) -> Authorize -> DeterminePoints
  4. Validate values tags and the manager's monthly allowance
  5. One atomic unit: insert recognition, credit recipients, bump spend
  6. Notify (public only, fire-and-forget)

Nothing is written before step 5, so every rejection leaves no state.

SEE ALSO:
  - authz.go: Scope matrix and points determination
  - hierarchy.go: Downline traversal
  - feed.go: Feed and history queries
  - engine/atomic.go: MultiWriter
*/
package recognition

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/recognition-engine/engine"
)

// Service is the recognition workflow.
type Service struct {
	store    engine.Store
	writer   *engine.MultiWriter
	ledger   *engine.PointsLedger
	notifier engine.Notifier
	logger   *zap.Logger

	// Now is the clock used for created/approved timestamps.
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

// CreateInput is a recognition request. Points is nil when the caller did
// not ask for a specific amount.
type CreateInput struct {
	RecipientIDs    []string
	Message         string
	Type            engine.RecognitionType
	AchievementType string
	IsPublic        bool
	Scope           engine.Scope
	ValuesTags      []string
	Points          *int
}

// =============================================================================
// CREATE
// =============================================================================

func (s *Service) Create(ctx context.Context, actor engine.User, in CreateInput) (*engine.Recognition, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, engine.Validation("message_required", "A recognition message is required.")
	}

	ids, err := recipientIDs(actor.ID, in.RecipientIDs)
	if err != nil {
		return nil, err
	}
	recipients, err := s.loadRecipients(ctx, actor.TenantID, ids)
	if err != nil {
		return nil, err
	}

	scope := in.Scope
	if scope == "" {
		scope = engine.ScopeGlobal
	}
	typ := in.Type
	if typ == "" {
		typ = engine.TypePeerToPeer
	}

	var downline map[string]bool
	if actor.Role.ManagerTier() {
		if downline, err = Downline(ctx, s.store, actor.TenantID, actor.ID); err != nil {
			return nil, fmt.Errorf("resolve downline: %w", err)
		}
	}

	decision, err := Authorize(actor, recipients, scope, downline)
	if err != nil {
		return nil, err
	}
	points, err := DeterminePoints(actor, typ, in.Points, decision.Points)
	if err != nil {
		return nil, err
	}
	tags, err := normalizeTags(in.ValuesTags)
	if err != nil {
		return nil, err
	}
	if err := checkAllowance(actor, points); err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	rec := engine.Recognition{
		ID:              engine.NewID(),
		TenantID:        actor.TenantID,
		SenderID:        actor.ID,
		RecipientIDs:    ids,
		Message:         message,
		PointsAwarded:   points,
		Type:            typ,
		AchievementType: strings.TrimSpace(in.AchievementType),
		Scope:           scope,
		IsPublic:        in.IsPublic,
		Status:          engine.StatusPending,
		Sender:          actor.Snapshot(),
		Recipients:      snapshots(recipients),
		ValuesTags:      tags,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	gated := rec.RequiresApproval()
	if !gated {
		rec.Status = engine.StatusApproved
		rec.ApprovedBy = actor.ID
		rec.ApprovedAt = &now
	}

	steps := []engine.Step{{
		Name: "insert-recognition",
		Do: func(ctx context.Context, st engine.Store) error {
			return st.InsertRecognition(ctx, rec)
		},
		Undo: func(ctx context.Context, st engine.Store) error {
			return st.DeleteRecognition(ctx, rec.TenantID, rec.ID)
		},
	}}
	if !gated {
		steps = append(steps, s.awardSteps(rec, actor)...)
	}
	if err := s.writer.Run(ctx, steps...); err != nil {
		return nil, err
	}

	s.logger.Info("recognition created",
		zap.String("tenant_id", rec.TenantID),
		zap.String("recognition_id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Int("points", rec.PointsAwarded),
		zap.Int("recipients", len(rec.RecipientIDs)))

	if rec.IsPublic {
		s.notifier.RecognitionCreated(ctx, engine.RecognitionEvent{
			TenantID:    rec.TenantID,
			Recognition: rec.Clone(),
			Org:         s.org(ctx, rec.TenantID),
		})
	}
	return &rec, nil
}

// awardSteps credits every recipient and charges the sender's allowance.
func (s *Service) awardSteps(rec engine.Recognition, sender engine.User) []engine.Step {
	if rec.PointsAwarded <= 0 {
		return nil
	}
	ref := engine.Reference{Type: engine.RefRecognition, ID: rec.ID, Reason: engine.ReasonRecognitionAward}
	var steps []engine.Step
	for _, id := range rec.RecipientIDs {
		steps = append(steps, s.ledger.CreditStep(rec.TenantID, id, rec.PointsAwarded, ref))
	}
	if sender.Role.ManagerTier() {
		points := rec.PointsAwarded
		steps = append(steps, engine.Step{
			Name: "monthly-spend",
			Do: func(ctx context.Context, st engine.Store) error {
				return st.IncrementMonthlySpent(ctx, rec.TenantID, sender.ID, points)
			},
			Undo: func(ctx context.Context, st engine.Store) error {
				return st.IncrementMonthlySpent(ctx, rec.TenantID, sender.ID, -points)
			},
		})
	}
	return steps
}

func recipientIDs(actorID string, raw []string) ([]string, error) {
	var ids []string
	self := false
	for _, id := range raw {
		id = strings.TrimSpace(id)
		switch {
		case id == "":
		case id == actorID:
			self = true
		case !slices.Contains(ids, id):
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		if self {
			return nil, engine.Validation("self_recognition", "You must choose someone other than yourself.")
		}
		return nil, engine.Validation("recipient_required", "At least one recipient is required.")
	}
	return ids, nil
}

// loadRecipients returns the users in the order of ids.
func (s *Service) loadRecipients(ctx context.Context, tenantID string, ids []string) ([]engine.User, error) {
	found, err := s.store.FindUsers(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	byID := make(map[string]engine.User, len(found))
	for _, u := range found {
		if u.IsActive {
			byID[u.ID] = u
		}
	}
	out := make([]engine.User, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, engine.NotFound("recipient_not_found", "One or more selected teammates were not found.")
		}
		out = append(out, u)
	}
	return out, nil
}

func normalizeTags(raw []string) ([]string, error) {
	var tags []string
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	if len(tags) > engine.MaxValuesTags {
		return nil, engine.Validation("too_many_values",
			fmt.Sprintf("Choose between 1 and %d values.", engine.MaxValuesTags))
	}
	return tags, nil
}

func checkAllowance(sender engine.User, points int) error {
	if !sender.Role.ManagerTier() || points <= 0 || sender.MonthlyPointsAllowance == nil {
		return nil
	}
	allowance := *sender.MonthlyPointsAllowance
	if sender.MonthlyPointsSpent+points > allowance {
		return &engine.Error{
			Kind: engine.KindValidation,
			Code: "allowance_exceeded",
			Message: fmt.Sprintf("Monthly points allowance exceeded: %d of %d already used, %d requested.",
				sender.MonthlyPointsSpent, allowance, points),
			Err: engine.ErrAllowanceExceeded,
		}
	}
	return nil
}

func snapshots(users []engine.User) []engine.UserSnapshot {
	out := make([]engine.UserSnapshot, len(users))
	for i, u := range users {
		out[i] = u.Snapshot()
	}
	return out
}

func (s *Service) org(ctx context.Context, tenantID string) *engine.Org {
	org, err := s.store.GetOrg(ctx, tenantID)
	if err != nil {
		s.logger.Warn("load org for notification", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil
	}
	return org
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

// Approve credits a pending recognition. The sender's allowance is checked
// again because the month may have moved on since creation.
func (s *Service) Approve(ctx context.Context, approver engine.User, id string) (*engine.Recognition, error) {
	rec, err := s.pending(ctx, approver, id)
	if err != nil {
		return nil, err
	}

	sender := engine.User{ID: rec.SenderID, TenantID: rec.TenantID}
	stored, err := s.store.GetUser(ctx, rec.TenantID, rec.SenderID)
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}
	if stored != nil {
		sender = *stored
		if err := checkAllowance(sender, rec.PointsAwarded); err != nil {
			return nil, err
		}
	}

	now := s.Now().UTC()
	steps := []engine.Step{s.transitionStep(*rec, engine.Transition{
		From: engine.StatusPending, To: engine.StatusApproved,
		ApprovedBy: approver.ID, ApprovedAt: &now, At: now,
	})}
	steps = append(steps, s.awardSteps(*rec, sender)...)
	steps = append(steps, s.auditStep(approver, *rec, engine.AuditRecognitionApproved, now))

	if err := s.writer.Run(ctx, steps...); err != nil {
		return nil, err
	}

	rec.Status = engine.StatusApproved
	rec.ApprovedBy = approver.ID
	rec.ApprovedAt = &now
	rec.UpdatedAt = now
	s.logger.Info("recognition approved",
		zap.String("tenant_id", rec.TenantID),
		zap.String("recognition_id", rec.ID),
		zap.String("approver_id", approver.ID))
	return rec, nil
}

// Reject closes a pending recognition without touching any balance.
func (s *Service) Reject(ctx context.Context, approver engine.User, id string) (*engine.Recognition, error) {
	rec, err := s.pending(ctx, approver, id)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	err = s.writer.Run(ctx,
		s.transitionStep(*rec, engine.Transition{
			From: engine.StatusPending, To: engine.StatusRejected,
			ApprovedBy: approver.ID, ApprovedAt: &now, At: now,
		}),
		s.auditStep(approver, *rec, engine.AuditRecognitionRejected, now),
	)
	if err != nil {
		return nil, err
	}

	rec.Status = engine.StatusRejected
	rec.ApprovedBy = approver.ID
	rec.ApprovedAt = &now
	rec.UpdatedAt = now
	return rec, nil
}

func (s *Service) pending(ctx context.Context, approver engine.User, id string) (*engine.Recognition, error) {
	if !approver.Role.Elevated() {
		return nil, engine.Forbidden("approver_required", "Only HR and executive leaders can review recognitions.")
	}
	rec, err := s.store.GetRecognition(ctx, approver.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load recognition: %w", err)
	}
	if rec == nil {
		return nil, engine.NotFound("recognition_not_found", "Recognition not found.")
	}
	if rec.Status != engine.StatusPending {
		return nil, engine.Conflict("not_pending",
			fmt.Sprintf("Recognition is %s, only pending recognitions can be reviewed.", rec.Status))
	}
	return rec, nil
}

func (s *Service) transitionStep(rec engine.Recognition, t engine.Transition) engine.Step {
	return engine.Step{
		Name: "transition:" + string(t.To),
		Do: func(ctx context.Context, st engine.Store) error {
			ok, err := st.TransitionRecognition(ctx, rec.TenantID, rec.ID, t)
			if err != nil {
				return err
			}
			if !ok {
				return engine.Conflict("not_pending", "Recognition was already reviewed.")
			}
			return nil
		},
		Undo: func(ctx context.Context, st engine.Store) error {
			_, err := st.TransitionRecognition(ctx, rec.TenantID, rec.ID, engine.Transition{
				From: t.To, To: engine.StatusPending, At: rec.UpdatedAt,
			})
			return err
		},
	}
}

func (s *Service) auditStep(actor engine.User, rec engine.Recognition, action engine.AuditAction, at time.Time) engine.Step {
	return engine.Step{
		Name: "audit",
		Do: func(ctx context.Context, st engine.Store) error {
			return st.AppendAudit(ctx, engine.AuditEntry{
				ID:         engine.NewID(),
				TenantID:   rec.TenantID,
				ActorID:    actor.ID,
				Action:     action,
				EntityType: "recognition",
				EntityID:   rec.ID,
				Diff: map[string]any{
					"status": map[string]any{"from": string(engine.StatusPending), "to": statusFor(action)},
					"points": rec.PointsAwarded,
				},
				Timestamp: at,
			})
		},
	}
}

func statusFor(action engine.AuditAction) string {
	if action == engine.AuditRecognitionApproved {
		return string(engine.StatusApproved)
	}
	return string(engine.StatusRejected)
}

// ListPending returns recognitions awaiting review, oldest first.
func (s *Service) ListPending(ctx context.Context, approver engine.User, limit int) ([]engine.Recognition, error) {
	if !approver.Role.Elevated() {
		return nil, engine.Forbidden("approver_required", "Only HR and executive leaders can review recognitions.")
	}
	return s.store.QueryRecognitions(ctx, engine.RecognitionQuery{
		TenantID:    approver.TenantID,
		Status:      engine.StatusPending,
		OldestFirst: true,
		Limit:       clamp(limit, DefaultHistoryLimit, MaxHistoryLimit),
	})
}
