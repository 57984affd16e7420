package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/recognition-engine/engine"
)

// =============================================================================
// LOG
// =============================================================================

type LogSink struct {
	Logger *zap.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Recognition(_ context.Context, ev engine.RecognitionEvent) error {
	s.Logger.Info("recognition published",
		zap.String("tenant_id", ev.TenantID),
		zap.String("recognition_id", ev.Recognition.ID),
		zap.String("text", RecognitionText(ev.Recognition)))
	return nil
}

func (s LogSink) Redemption(_ context.Context, ev engine.RedemptionEvent) error {
	s.Logger.Info("redemption status changed",
		zap.String("tenant_id", ev.TenantID),
		zap.String("redemption_id", ev.Redemption.ID),
		zap.String("user_id", ev.Redemption.UserID),
		zap.String("from", string(ev.OldStatus)),
		zap.String("to", string(ev.Redemption.Status)))
	return nil
}

// =============================================================================
// WEBHOOK
// =============================================================================

// WebhookSink posts recognition messages to the org's Slack and Teams
// incoming webhooks. Orgs without URLs are skipped. Redemptions are
// personal and never posted to shared channels.
type WebhookSink struct {
	Client *http.Client
}

func NewWebhookSink(timeout time.Duration) *WebhookSink {
	return &WebhookSink{Client: &http.Client{Timeout: timeout}}
}

func (*WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Recognition(ctx context.Context, ev engine.RecognitionEvent) error {
	if ev.Org == nil {
		return nil
	}
	text := RecognitionText(ev.Recognition)
	var firstErr error
	for _, url := range []string{ev.Org.SlackWebhookURL, ev.Org.TeamsWebhookURL} {
		if url == "" {
			continue
		}
		if err := s.post(ctx, url, map[string]string{"text": text}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (*WebhookSink) Redemption(context.Context, engine.RedemptionEvent) error { return nil }

func (s *WebhookSink) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// =============================================================================
// REDIS
// =============================================================================

// Publisher is the slice of the redis client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink publishes events as JSON on "<prefix>:<tenant_id>" so
// subscribers can follow a single organization.
type RedisSink struct {
	Client Publisher
	Prefix string
}

func (*RedisSink) Name() string { return "redis" }

type Message struct {
	Event     string               `json:"event"`
	TenantID  string               `json:"tenant_id"`
	ID        string               `json:"id"`
	Text      string               `json:"text"`
	UserIDs   []string             `json:"user_ids"`
	Sender    *engine.UserSnapshot `json:"sender,omitempty"`
	Points    int                  `json:"points"`
	Status    string               `json:"status,omitempty"`
	OldStatus string               `json:"old_status,omitempty"`
	At        time.Time            `json:"at"`
}

func (s *RedisSink) Recognition(ctx context.Context, ev engine.RecognitionEvent) error {
	r := ev.Recognition
	sender := r.Sender
	return s.publish(ctx, ev.TenantID, Message{
		Event:    "recognition.created",
		TenantID: ev.TenantID,
		ID:       r.ID,
		Text:     RecognitionText(r),
		UserIDs:  r.RecipientIDs,
		Sender:   &sender,
		Points:   r.PointsAwarded,
		Status:   string(r.Status),
		At:       r.CreatedAt,
	})
}

func (s *RedisSink) Redemption(ctx context.Context, ev engine.RedemptionEvent) error {
	return s.publish(ctx, ev.TenantID, Message{
		Event:     "redemption.status_changed",
		TenantID:  ev.TenantID,
		ID:        ev.Redemption.ID,
		Text:      RedemptionText(ev),
		UserIDs:   []string{ev.Redemption.UserID},
		Points:    ev.Redemption.PointsUsed,
		Status:    string(ev.Redemption.Status),
		OldStatus: string(ev.OldStatus),
		At:        ev.At,
	})
}

func (s *RedisSink) Channel(tenantID string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "recognition_events"
	}
	return prefix + ":" + tenantID
}

func (s *RedisSink) publish(ctx context.Context, tenantID string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.Client.Publish(ctx, s.Channel(tenantID), payload).Err()
}
