package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/engine"
	"github.com/warp/recognition-engine/engine/store"
)

func seedSpender(t *testing.T, s engine.Store, tenantID, id string, spent int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, engine.User{
		ID: id, TenantID: tenantID, Role: engine.RoleManager, IsActive: true,
		MonthlyPointsAllowance: intPtr(100),
	}))
	require.NoError(t, s.IncrementMonthlySpent(ctx, tenantID, id, spent))
}

func spentOf(t *testing.T, s engine.Store, tenantID, id string) int {
	t.Helper()
	u, err := s.GetUser(context.Background(), tenantID, id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u.MonthlyPointsSpent
}

func TestAllowanceScheduler_ResetsOncePerMonth(t *testing.T) {
	// GIVEN: a scheduler started mid-January and two tenants with spend
	// WHEN: checks run later in January, then in February
	// THEN: only the first February check resets, for every tenant

	ctx := context.Background()
	s := store.NewMemory()
	seedSpender(t, s, "acme", "m1", 40)
	seedSpender(t, s, "globex", "m2", 25)

	now := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	sched := NewAllowanceScheduler(s, nil)
	sched.Now = func() time.Time { return now }
	sched.lastMonth = monthOf(now)

	now = now.AddDate(0, 0, 10)
	assert.False(t, sched.Check(ctx))
	assert.Equal(t, 40, spentOf(t, s, "acme", "m1"))

	now = time.Date(2025, 2, 1, 0, 5, 0, 0, time.UTC)
	assert.True(t, sched.Check(ctx))
	assert.Equal(t, 0, spentOf(t, s, "acme", "m1"))
	assert.Equal(t, 0, spentOf(t, s, "globex", "m2"))

	require.NoError(t, s.IncrementMonthlySpent(ctx, "acme", "m1", 5))
	assert.False(t, sched.Check(ctx), "already reset this month")
	assert.Equal(t, 5, spentOf(t, s, "acme", "m1"))
}

func TestAllowanceScheduler_RunNowIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seedSpender(t, s, "acme", "m1", 40)
	seedSpender(t, s, "globex", "m2", 25)

	sched := NewAllowanceScheduler(s, nil)
	n, err := sched.RunNow(ctx, engine.User{ID: "hr", TenantID: "acme", Role: engine.RoleHRAdmin})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 0, spentOf(t, s, "acme", "m1"))
	assert.Equal(t, 25, spentOf(t, s, "globex", "m2"))

	audit, err := s.ListAudit(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, engine.AuditAllowancesReset, audit[0].Action)
	assert.Equal(t, "hr", audit[0].ActorID)
}

func TestAllowanceScheduler_StartStop(t *testing.T) {
	s := store.NewMemory()
	sched := NewAllowanceScheduler(s, nil)
	sched.CheckInterval = time.Millisecond

	sched.Start()
	sched.Start()
	time.Sleep(5 * time.Millisecond)
	sched.Stop()
	sched.Stop()

	sched = NewAllowanceScheduler(s, nil)
	sched.Enabled = false
	sched.Start()
	sched.Stop()
}
