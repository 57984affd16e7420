/*
Package notify delivers recognition and redemption events to side channels.

PURPOSE:
  Workflows must never wait for, or fail because of, a notification.
  Dispatcher implements engine.Notifier by handing each event to every
  Sink on its own goroutine with a deadline. Sink errors and panics are
  logged and dropped.

SINKS:
  LogSink      structured log line per event
  WebhookSink  Slack / Teams incoming webhooks configured on the org
  RedisSink    JSON payload on a pub/sub channel

SEE ALSO:
  - engine/notify.go: Notifier contract
  - format.go: Human-readable message text
*/
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/recognition-engine/engine"
)

const DefaultTimeout = 3 * time.Second

// Sink is one delivery channel. Implementations may block; the
// dispatcher bounds them with a timeout.
type Sink interface {
	Name() string
	Recognition(ctx context.Context, ev engine.RecognitionEvent) error
	Redemption(ctx context.Context, ev engine.RedemptionEvent) error
}

type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(logger *zap.Logger, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{sinks: sinks, timeout: timeout, logger: logger}
}

func (d *Dispatcher) RecognitionCreated(ctx context.Context, ev engine.RecognitionEvent) {
	for _, s := range d.sinks {
		s := s
		d.send(ctx, s.Name(), zap.String("recognition_id", ev.Recognition.ID), func(ctx context.Context) error {
			return s.Recognition(ctx, ev)
		})
	}
}

func (d *Dispatcher) RedemptionStatusChanged(ctx context.Context, ev engine.RedemptionEvent) {
	for _, s := range d.sinks {
		s := s
		d.send(ctx, s.Name(), zap.String("redemption_id", ev.Redemption.ID), func(ctx context.Context) error {
			return s.Redemption(ctx, ev)
		})
	}
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) send(parent context.Context, sink string, ref zap.Field, fn func(context.Context) error) {
	// the request context is cancelled as soon as the handler returns
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification sink panicked",
					zap.String("sink", sink), ref, zap.String("panic", fmt.Sprint(r)))
			}
		}()
		if err := fn(ctx); err != nil {
			d.logger.Warn("notification failed", zap.String("sink", sink), ref, zap.Error(err))
		}
	}()
}

var _ engine.Notifier = (*Dispatcher)(nil)
