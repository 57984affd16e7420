package redemption

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/recognition-engine/engine"
)

// RewardInput creates a reward when ID is empty, otherwise replaces it.
type RewardInput struct {
	ID             string
	Title          string
	Description    string
	Provider       string
	PointsRequired int
	Availability   int
	IsActive       bool
	Prices         map[string]decimal.Decimal
}

func (s *Service) SaveReward(ctx context.Context, admin engine.User, in RewardInput) (*engine.Reward, error) {
	if !admin.Role.Elevated() {
		return nil, adminRequired()
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, engine.Validation("title_required", "A reward title is required.")
	}
	if in.PointsRequired < 0 {
		return nil, engine.Validation("invalid_points", "points_required cannot be negative.")
	}
	if in.Availability < 0 {
		return nil, engine.Validation("invalid_availability", "availability cannot be negative.")
	}
	provider, err := engine.ParseProvider(in.Provider)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]decimal.Decimal, len(in.Prices))
	for cur, p := range in.Prices {
		if p.IsNegative() {
			return nil, engine.Validation("invalid_price", fmt.Sprintf("price in %s cannot be negative", cur))
		}
		prices[strings.ToUpper(strings.TrimSpace(cur))] = p.Round(2)
	}

	r := engine.Reward{
		ID:             in.ID,
		TenantID:       admin.TenantID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		Provider:       provider,
		PointsRequired: in.PointsRequired,
		Availability:   in.Availability,
		IsActive:       in.IsActive,
		Prices:         prices,
		CreatedAt:      s.Now().UTC(),
	}
	created := r.ID == ""
	if created {
		r.ID = engine.NewID()
	} else {
		existing, err := s.store.GetReward(ctx, admin.TenantID, r.ID)
		if err != nil {
			return nil, fmt.Errorf("load reward: %w", err)
		}
		if existing == nil {
			return nil, engine.NotFound("reward_not_found", "Reward not found.")
		}
		r.CreatedAt = existing.CreatedAt
	}

	err = s.writer.Run(ctx,
		engine.Step{
			Name: "save-reward",
			Do: func(ctx context.Context, st engine.Store) error {
				return st.SaveReward(ctx, r)
			},
		},
		engine.Step{
			Name: "audit",
			Do: func(ctx context.Context, st engine.Store) error {
				return st.AppendAudit(ctx, engine.AuditEntry{
					ID:         engine.NewID(),
					TenantID:   r.TenantID,
					ActorID:    admin.ID,
					Action:     engine.AuditRewardSaved,
					EntityType: "reward",
					EntityID:   r.ID,
					Diff: map[string]any{
						"created":         created,
						"points_required": r.PointsRequired,
						"availability":    r.Availability,
						"is_active":       r.IsActive,
					},
					Timestamp: s.Now().UTC(),
				})
			},
		},
	)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reward saved", zap.String("tenant_id", r.TenantID), zap.String("reward_id", r.ID), zap.Bool("created", created))
	return &r, nil
}

// ListRewards returns the tenant catalog ordered by price. Inactive rewards
// are only listed for admins.
func (s *Service) ListRewards(ctx context.Context, actor engine.User, includeInactive bool) ([]engine.Reward, error) {
	return s.store.ListRewards(ctx, actor.TenantID, !(includeInactive && actor.Role.Elevated()))
}
