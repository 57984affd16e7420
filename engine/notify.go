package engine

import (
	"context"
	"time"
)

// RecognitionEvent is emitted after a recognition becomes visible to its
// recipients, i.e. on creation.
type RecognitionEvent struct {
	TenantID    string
	Recognition Recognition
	Org         *Org
}

// RedemptionEvent is emitted on every redemption status change.
type RedemptionEvent struct {
	TenantID   string
	Redemption Redemption
	OldStatus  RedemptionStatus
	ActorID    string
	At         time.Time
}

// Notifier is fire-and-forget: implementations must not block the caller
// for the duration of delivery and never report delivery errors back to
// the workflow that triggered them.
type Notifier interface {
	RecognitionCreated(ctx context.Context, ev RecognitionEvent)
	RedemptionStatusChanged(ctx context.Context, ev RedemptionEvent)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) RecognitionCreated(context.Context, RecognitionEvent)     {}
func (NopNotifier) RedemptionStatusChanged(context.Context, RedemptionEvent) {}
