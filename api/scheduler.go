/*
scheduler.go - Monthly allowance reset scheduler

PURPOSE:
  Managers spend points against a monthly allowance. The counter has to
  go back to zero when the calendar month changes. This scheduler checks
  periodically and resets monthly_points_spent for every user of every
  tenant the first time it runs in a new month.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Remembers the month it last reset (initialized to the start month,
    so a restart mid-month does not wipe the counters)
  - RunNow resets one tenant immediately for the admin endpoint

USAGE:
  scheduler := NewAllowanceScheduler(store, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ResetAllowances endpoint
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/recognition-engine/engine"
)

// AllowanceScheduler resets monthly manager spend.
type AllowanceScheduler struct {
	Store         engine.Store
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex

	monthMu   sync.Mutex
	lastMonth time.Time
}

// NewAllowanceScheduler creates a new scheduler.
func NewAllowanceScheduler(store engine.Store, logger *zap.Logger) *AllowanceScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AllowanceScheduler{
		Store:         store,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
		logger:        logger,
	}
	s.lastMonth = monthOf(s.Now())
	return s
}

// Start begins the scheduler.
func (s *AllowanceScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("allowance scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan bool)
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.logger.Info("allowance scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight check.
func (s *AllowanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("allowance scheduler stopped")
	}
}

func (s *AllowanceScheduler) run(ticker *time.Ticker, stop chan bool) {
	defer s.wg.Done()

	for {
		select {
		case <-ticker.C:
			s.Check(context.Background())
		case <-stop:
			return
		}
	}
}

// Check resets every tenant when the month has rolled over since the
// last reset. It reports whether a reset ran.
func (s *AllowanceScheduler) Check(ctx context.Context) bool {
	month := monthOf(s.Now())

	s.monthMu.Lock()
	due := month.After(s.lastMonth)
	s.monthMu.Unlock()
	if !due {
		return false
	}

	n, err := s.Store.ResetMonthlySpent(ctx, "")
	if err != nil {
		s.logger.Error("monthly allowance reset failed", zap.Error(err))
		return false
	}

	s.monthMu.Lock()
	s.lastMonth = month
	s.monthMu.Unlock()
	s.logger.Info("monthly allowances reset",
		zap.String("month", month.Format("2006-01")),
		zap.Int64("users_reset", n))
	return true
}

// RunNow resets one tenant immediately and records who asked for it.
func (s *AllowanceScheduler) RunNow(ctx context.Context, admin engine.User) (int64, error) {
	n, err := s.Store.ResetMonthlySpent(ctx, admin.TenantID)
	if err != nil {
		return 0, err
	}
	err = s.Store.AppendAudit(ctx, engine.AuditEntry{
		ID:         engine.NewID(),
		TenantID:   admin.TenantID,
		ActorID:    admin.ID,
		Action:     engine.AuditAllowancesReset,
		EntityType: "tenant",
		EntityID:   admin.TenantID,
		Diff:       map[string]any{"users_reset": n},
		Timestamp:  s.Now(),
	})
	if err != nil {
		// the reset itself already happened
		s.logger.Warn("failed to audit allowance reset", zap.String("tenant_id", admin.TenantID), zap.Error(err))
	}
	s.logger.Info("monthly allowances reset on demand",
		zap.String("tenant_id", admin.TenantID),
		zap.String("actor_id", admin.ID),
		zap.Int64("users_reset", n))
	return n, nil
}

// NextCheck returns when the next scheduled check will occur.
func (s *AllowanceScheduler) NextCheck() time.Time {
	return s.Now().Add(s.CheckInterval)
}

func monthOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
