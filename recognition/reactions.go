package recognition

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/warp/recognition-engine/engine"
)

// ToggleReaction adds the user to the emoji's reactors, or removes them if
// they already reacted. An emoji left without reactors is dropped.
func (s *Service) ToggleReaction(ctx context.Context, actor engine.User, id, emoji string) (*engine.Recognition, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, engine.Validation("emoji_required", "An emoji is required.")
	}

	rec, err := s.store.GetRecognition(ctx, actor.TenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load recognition: %w", err)
	}
	if rec == nil {
		return nil, engine.NotFound("recognition_not_found", "Recognition not found.")
	}

	rec.Reactions = toggle(rec.Reactions, emoji, actor.ID)
	if err := s.store.SetReactions(ctx, rec.TenantID, rec.ID, rec.Reactions); err != nil {
		return nil, err
	}
	return rec, nil
}

func toggle(reactions []engine.Reaction, emoji, userID string) []engine.Reaction {
	out := engine.CloneReactions(reactions)
	for i, r := range out {
		if r.Emoji != emoji {
			continue
		}
		if j := slices.Index(r.UserIDs, userID); j >= 0 {
			r.UserIDs = slices.Delete(r.UserIDs, j, j+1)
			if len(r.UserIDs) == 0 {
				return slices.Delete(out, i, i+1)
			}
			out[i] = r
			return out
		}
		out[i].UserIDs = append(r.UserIDs, userID)
		return out
	}
	return append(out, engine.Reaction{Emoji: emoji, UserIDs: []string{userID}})
}
