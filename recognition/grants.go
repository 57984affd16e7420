package recognition

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/recognition-engine/engine"
)

// GrantPoints adds points to a user's balance outside of a recognition,
// for onboarding bonuses and corrections. The grant is a ledger entry
// (reason admin_grant) plus an audit entry, written as one unit. It does
// not count toward lifetime earnings or the recognition count.
func (s *Service) GrantPoints(ctx context.Context, admin engine.User, userID string, points int, note string) (*engine.User, error) {
	if !admin.Role.Elevated() {
		return nil, engine.Forbidden("admin_required", "Only HR and executive leaders can grant points.")
	}
	if points <= 0 || points > engine.MaxPoints {
		return nil, engine.Validation("invalid_points",
			fmt.Sprintf("Points must be between 1 and %d.", engine.MaxPoints))
	}
	user, err := s.store.GetUser(ctx, admin.TenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, engine.NotFound("user_not_found", "User not found.")
	}

	grantID := engine.NewID()
	now := s.Now().UTC()
	note = strings.TrimSpace(note)
	ref := engine.Reference{Type: engine.RefGrant, ID: grantID, Reason: engine.ReasonAdminGrant}

	err = s.writer.Run(ctx,
		s.ledger.GrantStep(admin.TenantID, user.ID, points, ref),
		engine.Step{
			Name: "audit",
			Do: func(ctx context.Context, st engine.Store) error {
				return st.AppendAudit(ctx, engine.AuditEntry{
					ID:         engine.NewID(),
					TenantID:   admin.TenantID,
					ActorID:    admin.ID,
					Action:     engine.AuditPointsGranted,
					EntityType: "user",
					EntityID:   user.ID,
					Diff:       map[string]any{"points": points, "grant_id": grantID, "note": note},
					Timestamp:  now,
				})
			},
		},
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info("points granted",
		zap.String("tenant_id", admin.TenantID),
		zap.String("user_id", user.ID),
		zap.String("actor_id", admin.ID),
		zap.Int("points", points))

	updated, err := s.store.GetUser(ctx, admin.TenantID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	return updated, nil
}
