/*
atomic.go - Atomic multi-write port

PURPOSE:
  Workflows like "create recognition and credit every recipient" or
  "reserve stock, debit points, record redemption" touch several
  documents. MultiWriter runs them as one unit:

    1. If the store is a TxStore, every step runs inside WithTx and the
       store rolls back on the first error.
    2. If WithTx reports ErrTxUnsupported, or the store has no
       transactions at all, steps run in order and the Undo of every
       completed step runs in reverse when a later step fails.

COMPENSATION GUARANTEES:
  The fallback path is best-effort. Undo failures are logged and the
  original error is returned. A crash between Do and Undo leaves the
  partial state in place.

SEE ALSO:
  - store.go: TxStore
  - ledger.go: Credit/Debit steps and their reversals
*/
package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Step is one write in a multi-document unit. Undo may be nil when the
// step has nothing to compensate (typically the last one).
type Step struct {
	Name string
	Do   func(ctx context.Context, s Store) error
	Undo func(ctx context.Context, s Store) error
}

type MultiWriter struct {
	store  Store
	logger *zap.Logger
}

func NewMultiWriter(store Store, logger *zap.Logger) *MultiWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiWriter{store: store, logger: logger}
}

// Store returns the underlying store for reads outside a unit.
func (w *MultiWriter) Store() Store {
	return w.store
}

// Run executes steps atomically when possible, with compensation otherwise.
func (w *MultiWriter) Run(ctx context.Context, steps ...Step) error {
	if txs, ok := w.store.(TxStore); ok {
		err := txs.WithTx(ctx, func(tx Store) error {
			for _, step := range steps {
				if err := step.Do(ctx, tx); err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, ErrTxUnsupported) {
			return err
		}
		w.logger.Warn("transactions unavailable, using compensating writes", zap.Int("steps", len(steps)))
	}
	return w.runCompensating(ctx, steps)
}

func (w *MultiWriter) runCompensating(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		if err := step.Do(ctx, w.store); err != nil {
			w.compensate(ctx, steps[:i], step.Name)
			return err
		}
	}
	return nil
}

func (w *MultiWriter) compensate(ctx context.Context, done []Step, failed string) {
	// Compensation must run even if the request was cancelled.
	ctx = context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(ctx, w.store); err != nil {
			w.logger.Error("compensation failed",
				zap.String("step", step.Name),
				zap.String("failed_step", failed),
				zap.Error(err))
		}
	}
}
