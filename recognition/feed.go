package recognition

import (
	"context"
	"strings"

	"github.com/warp/recognition-engine/engine"
)

const (
	DefaultFeedLimit    = 20
	MaxFeedLimit        = 100
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

type FeedQuery struct {
	Limit    int
	Cursor   string
	Search   string
	ValueTag string
}

// FeedPage is one page of the public feed. NextCursor is empty on the
// last page.
type FeedPage struct {
	Items      []engine.Recognition
	NextCursor string
}

// Feed returns public recognitions of the tenant in (created_at desc, id desc)
// order, starting strictly after the cursor.
func (s *Service) Feed(ctx context.Context, tenantID string, q FeedQuery) (FeedPage, error) {
	limit := clamp(q.Limit, DefaultFeedLimit, MaxFeedLimit)
	rq := engine.RecognitionQuery{
		TenantID:   tenantID,
		PublicOnly: true,
		Search:     strings.TrimSpace(q.Search),
		ValueTag:   strings.TrimSpace(q.ValueTag),
		Limit:      limit,
	}
	if q.Cursor != "" {
		c, err := engine.DecodeCursor(q.Cursor)
		if err != nil {
			return FeedPage{}, err
		}
		rq.After = &c
	}

	items, err := s.store.QueryRecognitions(ctx, rq)
	if err != nil {
		return FeedPage{}, err
	}
	page := FeedPage{Items: items}
	if len(items) == limit {
		page.NextCursor = engine.CursorOf(items[len(items)-1]).Encode()
	}
	return page, nil
}

type HistoryQuery struct {
	Direction engine.Direction
	Type      engine.RecognitionType
	Limit     int
	Offset    int
}

// History lists recognitions the actor sent and/or received, including
// private ones.
func (s *Service) History(ctx context.Context, actor engine.User, q HistoryQuery) ([]engine.Recognition, error) {
	dir := engine.Direction(strings.ToLower(string(q.Direction)))
	switch dir {
	case "":
		dir = engine.DirectionAll
	case engine.DirectionSent, engine.DirectionReceived, engine.DirectionAll:
	default:
		return nil, engine.Validation("invalid_direction", "direction must be sent, received or all")
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	return s.store.QueryRecognitions(ctx, engine.RecognitionQuery{
		TenantID:      actor.TenantID,
		ParticipantID: actor.ID,
		Direction:     dir,
		Type:          q.Type,
		Offset:        q.Offset,
		Limit:         clamp(q.Limit, DefaultHistoryLimit, MaxHistoryLimit),
	})
}

func clamp(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
