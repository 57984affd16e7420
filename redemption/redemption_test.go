package redemption_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/engine"
	"github.com/warp/recognition-engine/engine/store"
	"github.com/warp/recognition-engine/redemption"
	"github.com/warp/recognition-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const tenant = "acme"

type events struct {
	mu  sync.Mutex
	got []engine.RedemptionEvent
}

func (e *events) RecognitionCreated(context.Context, engine.RecognitionEvent) {}

func (e *events) RedemptionStatusChanged(_ context.Context, ev engine.RedemptionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, ev)
}

type fixture struct {
	t      *testing.T
	store  engine.Store
	svc    *redemption.Service
	events *events
	admin  engine.User
}

func newFixture(t *testing.T, s engine.Store) *fixture {
	t.Helper()
	ev := &events{}
	f := &fixture{
		t:      t,
		store:  s,
		svc:    redemption.NewService(s, ev, nil),
		events: ev,
		admin:  engine.User{ID: "hr", TenantID: tenant, Role: engine.RoleHRAdmin, IsActive: true},
	}
	require.NoError(t, s.SaveUser(context.Background(), f.admin))
	return f
}

func newSQLiteFixture(t *testing.T) *fixture {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return newFixture(t, s)
}

func (f *fixture) employee(id string, balance int) engine.User {
	f.t.Helper()
	u := engine.User{ID: id, TenantID: tenant, FirstName: id, Role: engine.RoleEmployee, IsActive: true, PointsBalance: balance}
	require.NoError(f.t, f.store.SaveUser(context.Background(), u))
	return u
}

func (f *fixture) reward(provider engine.Provider, points, stock int) engine.Reward {
	f.t.Helper()
	r := engine.Reward{
		ID: engine.NewID(), TenantID: tenant, Title: "Coffee voucher", Provider: provider,
		PointsRequired: points, Availability: stock, IsActive: true,
	}
	require.NoError(f.t, f.store.SaveReward(context.Background(), r))
	return r
}

func (f *fixture) balance(id string) int {
	f.t.Helper()
	u, err := f.store.GetUser(context.Background(), tenant, id)
	require.NoError(f.t, err)
	return u.PointsBalance
}

func (f *fixture) stock(id string) int {
	f.t.Helper()
	r, err := f.store.GetReward(context.Background(), tenant, id)
	require.NoError(f.t, err)
	return r.Availability
}

func (f *fixture) ledgerSum(userID string) (int, []engine.LedgerEntry) {
	f.t.Helper()
	entries, err := f.store.ListLedgerEntries(context.Background(), tenant, userID, 0)
	require.NoError(f.t, err)
	sum := 0
	for _, e := range entries {
		sum += e.Delta
	}
	return sum, entries
}

// =============================================================================
// REDEEM
// =============================================================================

func TestRedeem_CouplesStockAndPoints(t *testing.T) {
	// GIVEN: reward with 3 in stock at 100 points, user with 250
	// WHEN: the user redeems it
	// THEN: one redemption, stock 2, balance 150, one -100 ledger entry

	f := newSQLiteFixture(t)
	ctx := context.Background()
	u := f.employee("e1", 250)
	r := f.reward(engine.ProviderInternal, 100, 3)

	red, err := f.svc.Redeem(ctx, u, r.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.RedemptionPendingFulfillment, red.Status)
	assert.Equal(t, 100, red.PointsUsed)
	assert.Equal(t, "Coffee voucher", red.RewardTitle)

	assert.Equal(t, 2, f.stock(r.ID))
	assert.Equal(t, 150, f.balance("e1"))

	sum, entries := f.ledgerSum("e1")
	require.Len(t, entries, 1)
	assert.Equal(t, -100, sum)
	assert.Equal(t, engine.ReasonRewardRedemption, entries[0].Reason)
	assert.Equal(t, red.ID, entries[0].RefID)

	mine, err := f.svc.ListForUser(ctx, u, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, red.ID, mine[0].ID)
}

func TestRedeem_InitialStatusFollowsProvider(t *testing.T) {
	assert.Equal(t, engine.RedemptionPendingCode, redemption.InitialStatus(engine.ProviderExternalGiftCard))
	assert.Equal(t, engine.RedemptionPendingFulfillment, redemption.InitialStatus(engine.ProviderManualVendor))
	assert.Equal(t, engine.RedemptionPendingFulfillment, redemption.InitialStatus(engine.ProviderInternal))
}

func TestRedeem_Rejections(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	u := f.employee("e1", 50)

	_, err := f.svc.Redeem(ctx, u, "missing")
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))

	empty := f.reward(engine.ProviderInternal, 10, 0)
	_, err = f.svc.Redeem(ctx, u, empty.ID)
	assert.ErrorIs(t, err, engine.ErrOutOfStock)
	assert.Equal(t, engine.KindExhausted, engine.KindOf(err))

	pricey := f.reward(engine.ProviderInternal, 500, 5)
	_, err = f.svc.Redeem(ctx, u, pricey.ID)
	assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
	assert.Equal(t, 5, f.stock(pricey.ID))

	retired := f.reward(engine.ProviderInternal, 10, 5)
	retired.IsActive = false
	require.NoError(t, f.store.SaveReward(ctx, retired))
	_, err = f.svc.Redeem(ctx, u, retired.ID)
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))

	assert.Equal(t, 50, f.balance("e1"))
}

func TestRedeem_LastUnitRace(t *testing.T) {
	// GIVEN: one unit in stock, eight users who can all afford it
	// WHEN: they redeem concurrently
	// THEN: exactly one wins, the rest see out-of-stock, nobody loses points

	stores := map[string]func(t *testing.T) *fixture{
		"sqlite":   newSQLiteFixture,
		"fallback": func(t *testing.T) *fixture { return newFixture(t, store.NewMemory()) },
		"txmemory": func(t *testing.T) *fixture { return newFixture(t, store.NewTxMemory()) },
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			f := mk(t)
			ctx := context.Background()
			r := f.reward(engine.ProviderInternal, 40, 1)
			var users []engine.User
			for _, id := range []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"} {
				users = append(users, f.employee(id, 100))
			}

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				wins     int
				outOfStk int
			)
			for _, u := range users {
				wg.Add(1)
				go func(u engine.User) {
					defer wg.Done()
					_, err := f.svc.Redeem(ctx, u, r.ID)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case assert.ErrorIs(t, err, engine.ErrOutOfStock):
						outOfStk++
					}
				}(u)
			}
			wg.Wait()

			assert.Equal(t, 1, wins)
			assert.Equal(t, 7, outOfStk)
			assert.Equal(t, 0, f.stock(r.ID))

			total := 0
			for _, u := range users {
				total += f.balance(u.ID)
			}
			assert.Equal(t, 8*100-40, total)
		})
	}
}

func TestRedeem_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	stores := map[string]func(t *testing.T) *fixture{
		"sqlite":   newSQLiteFixture,
		"fallback": func(t *testing.T) *fixture { return newFixture(t, store.NewMemory()) },
		"txmemory": func(t *testing.T) *fixture { return newFixture(t, store.NewTxMemory()) },
	}
	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			f := mk(t)
			ctx := context.Background()
			u := f.employee("e1", 100)
			r := f.reward(engine.ProviderInternal, 100, 5)

			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					f.svc.Redeem(ctx, u, r.ID)
				}()
			}
			wg.Wait()

			assert.Equal(t, 0, f.balance("e1"))
			assert.Equal(t, 4, f.stock(r.ID), "losing attempts restock")
			sum, _ := f.ledgerSum("e1")
			assert.Equal(t, -100, sum)
		})
	}
}

// failingRedemptions refuses to store redemption records.
type failingRedemptions struct {
	*store.Memory
}

func (failingRedemptions) InsertRedemption(context.Context, engine.Redemption) error {
	return assert.AnError
}

func TestRedeem_CompensatesWhenRecordFails(t *testing.T) {
	// GIVEN: a store without transactions that cannot insert redemptions
	// WHEN: a user redeems
	// THEN: stock and balance are restored, the ledger nets to zero

	f := newFixture(t, failingRedemptions{store.NewMemory()})
	ctx := context.Background()
	u := f.employee("e1", 100)
	r := f.reward(engine.ProviderInternal, 60, 2)

	_, err := f.svc.Redeem(ctx, u, r.ID)
	require.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, 2, f.stock(r.ID))
	assert.Equal(t, 100, f.balance("e1"))
	sum, entries := f.ledgerSum("e1")
	assert.Equal(t, 0, sum)
	require.Len(t, entries, 2)
	assert.Equal(t, engine.ReasonReversal, entries[0].Reason)
}

// =============================================================================
// FULFILLMENT
// =============================================================================

func TestUpdateStatus_Lifecycle(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	f.svc.Now = func() time.Time { return at }

	u := f.employee("e1", 100)
	r := f.reward(engine.ProviderExternalGiftCard, 25, 3)
	red, err := f.svc.Redeem(ctx, u, r.ID)
	require.NoError(t, err)
	require.Equal(t, engine.RedemptionPendingCode, red.Status)

	queue, err := f.svc.ListByStatus(ctx, f.admin, "pending_code", 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	got, err := f.svc.UpdateStatus(ctx, f.admin, red.ID, redemption.UpdateInput{
		Status: "fulfilled", FulfillmentCode: "GIFT-1234",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.RedemptionFulfilled, got.Status)
	require.NotNil(t, got.FulfilledAt)
	assert.Equal(t, at, *got.FulfilledAt)

	got, err = f.svc.UpdateStatus(ctx, f.admin, red.ID, redemption.UpdateInput{Status: "delivered"})
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
	assert.Equal(t, "GIFT-1234", got.FulfillmentCode)

	_, err = f.svc.UpdateStatus(ctx, f.admin, red.ID, redemption.UpdateInput{Status: "cancelled"})
	assert.Equal(t, engine.KindConflict, engine.KindOf(err), "delivered is terminal")

	stored, err := f.store.GetRedemption(ctx, tenant, red.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.RedemptionDelivered, stored.Status)

	require.Len(t, f.events.got, 2)
	assert.Equal(t, engine.RedemptionPendingCode, f.events.got[0].OldStatus)
	assert.Equal(t, engine.RedemptionFulfilled, f.events.got[1].OldStatus)

	audit, err := f.store.ListAudit(ctx, tenant, 0)
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.Equal(t, engine.AuditRedemptionStatusUpdated, audit[0].Action)
	assert.Equal(t, red.ID, audit[0].EntityID)
	assert.Equal(t, map[string]any{"from": "fulfilled", "to": "delivered"}, audit[0].Diff["status"])
}

func TestUpdateStatus_CancelRefundsAndRestocks(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	u := f.employee("e1", 100)
	r := f.reward(engine.ProviderManualVendor, 70, 1)

	red, err := f.svc.Redeem(ctx, u, r.ID)
	require.NoError(t, err)
	require.Equal(t, 30, f.balance("e1"))

	got, err := f.svc.UpdateStatus(ctx, f.admin, red.ID, redemption.UpdateInput{Status: "CANCELLED"})
	require.NoError(t, err)
	assert.Equal(t, engine.RedemptionCancelled, got.Status)

	assert.Equal(t, 100, f.balance("e1"))
	assert.Equal(t, 1, f.stock(r.ID))

	stored, err := f.store.GetUser(ctx, tenant, "e1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.TotalPointsEarned, "refunds are not earnings")

	sum, entries := f.ledgerSum("e1")
	assert.Equal(t, 0, sum)
	require.Len(t, entries, 2)
	assert.Equal(t, engine.ReasonRedemptionRefund, entries[0].Reason)
	assert.Equal(t, 70, entries[0].Delta)

	_, err = f.svc.UpdateStatus(ctx, f.admin, red.ID, redemption.UpdateInput{Status: "cancelled"})
	require.NoError(t, err, "same status is a no-op transition")
	assert.Equal(t, 100, f.balance("e1"), "no second refund")
}

func TestUpdateStatus_Guards(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	u := f.employee("e1", 100)
	r := f.reward(engine.ProviderInternal, 10, 3)
	red, err := f.svc.Redeem(ctx, u, r.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, u, red.ID, redemption.UpdateInput{Status: "fulfilled"})
	assert.Equal(t, engine.KindForbidden, engine.KindOf(err))

	_, err = f.svc.UpdateStatus(ctx, f.admin, "missing", redemption.UpdateInput{Status: "fulfilled"})
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))

	_, err = f.svc.UpdateStatus(ctx, f.admin, red.ID, redemption.UpdateInput{Status: "shipped"})
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))

	_, err = f.svc.UpdateStatus(ctx, f.admin, red.ID, redemption.UpdateInput{Status: "delivered"})
	assert.Equal(t, engine.KindConflict, engine.KindOf(err), "must be fulfilled first")

	_, err = f.svc.ListByStatus(ctx, u, "", 0)
	assert.Equal(t, engine.KindForbidden, engine.KindOf(err))
}

// =============================================================================
// CATALOG
// =============================================================================

func TestSaveReward(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	u := f.employee("e1", 0)

	_, err := f.svc.SaveReward(ctx, u, redemption.RewardInput{Title: "Mug"})
	assert.Equal(t, engine.KindForbidden, engine.KindOf(err))

	_, err = f.svc.SaveReward(ctx, f.admin, redemption.RewardInput{Title: "Mug", Provider: "drone"})
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))

	mug, err := f.svc.SaveReward(ctx, f.admin, redemption.RewardInput{
		Title: "Mug", Provider: "internal", PointsRequired: 50, Availability: 10, IsActive: true,
		Prices: map[string]decimal.Decimal{"usd": decimal.RequireFromString("12.499")},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, mug.ID)

	card, err := f.svc.SaveReward(ctx, f.admin, redemption.RewardInput{
		Title: "Gift card", Provider: "amazon_giftcard", PointsRequired: 20, Availability: 5, IsActive: false,
	})
	require.NoError(t, err)
	assert.Equal(t, engine.ProviderExternalGiftCard, card.Provider)

	visible, err := f.svc.ListRewards(ctx, u, true)
	require.NoError(t, err)
	require.Len(t, visible, 1, "employees never see inactive rewards")
	assert.True(t, decimal.RequireFromString("12.50").Equal(visible[0].Prices["USD"]))

	all, err := f.svc.ListRewards(ctx, f.admin, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Gift card", all[0].Title, "ordered by points")

	_, err = f.svc.SaveReward(ctx, f.admin, redemption.RewardInput{
		ID: mug.ID, Title: "Mug", Provider: "internal", PointsRequired: 50, IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(mug.ID))

	_, err = f.svc.SaveReward(ctx, f.admin, redemption.RewardInput{ID: "ghost", Title: "x"})
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
}
