package recognition_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recognition-engine/engine"
	"github.com/warp/recognition-engine/engine/store"
	"github.com/warp/recognition-engine/recognition"
	"github.com/warp/recognition-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const tenant = "acme"

type recorder struct {
	mu     sync.Mutex
	events []engine.RecognitionEvent
}

func (r *recorder) RecognitionCreated(_ context.Context, ev engine.RecognitionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) RedemptionStatusChanged(context.Context, engine.RedemptionEvent) {}

type fixture struct {
	t     *testing.T
	store engine.Store
	svc   *recognition.Service
	sink  *recorder
}

// newFixture seeds this org chart:
//
//	hr (hr_admin)
//	m (manager, eng) -> e1, e2 ; e1 -> g
//	m2 (manager, sales) -> e3
//	solo (employee, no manager, eng)
func newFixture(t *testing.T, s engine.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	users := []engine.User{
		{ID: "hr", FirstName: "Hana", LastName: "Ross", Role: engine.RoleHRAdmin},
		{ID: "m", FirstName: "Mia", LastName: "Cole", Role: engine.RoleManager, Department: "eng"},
		{ID: "e1", FirstName: "Eli", LastName: "Park", Role: engine.RoleEmployee, ManagerID: "m", Department: "eng"},
		{ID: "e2", FirstName: "Eve", LastName: "Hart", Role: engine.RoleEmployee, ManagerID: "m", Department: "eng"},
		{ID: "g", FirstName: "Gus", LastName: "Lane", Role: engine.RoleEmployee, ManagerID: "e1", Department: "eng"},
		{ID: "m2", FirstName: "Max", LastName: "Ford", Role: engine.RoleManager, Department: "sales"},
		{ID: "e3", FirstName: "Ada", LastName: "Snow", Role: engine.RoleEmployee, ManagerID: "m2", Department: "sales"},
		{ID: "solo", FirstName: "Sol", LastName: "Vega", Role: engine.RoleEmployee, Department: "eng"},
	}
	for _, u := range users {
		u.TenantID = tenant
		u.IsActive = true
		require.NoError(t, s.SaveUser(ctx, u))
	}
	sink := &recorder{}
	return &fixture{t: t, store: s, svc: recognition.NewService(s, sink, nil), sink: sink}
}

func newSQLiteStore(t *testing.T) *sqlite.Store {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newSQLiteFixture(t *testing.T) *fixture {
	return newFixture(t, newSQLiteStore(t))
}

func (f *fixture) user(id string) engine.User {
	f.t.Helper()
	u, err := f.store.GetUser(context.Background(), tenant, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, u, id)
	return *u
}

func (f *fixture) ledger(id string) []engine.LedgerEntry {
	f.t.Helper()
	entries, err := f.store.ListLedgerEntries(context.Background(), tenant, id, 0)
	require.NoError(f.t, err)
	return entries
}

func points(n int) *int { return &n }

// =============================================================================
// END TO END
// =============================================================================

func TestCreate_PeerRecognitionCreditsDefault(t *testing.T) {
	// GIVEN: e1 and e2 share manager m
	// WHEN: e1 sends a peer recognition without points
	// THEN: 10 points, approved, e2 balance +10, one ledger entry

	f := newSQLiteFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Create(ctx, f.user("e1"), recognition.CreateInput{
		RecipientIDs: []string{"e2"},
		Message:      "Thanks for pairing on the release",
		Type:         engine.TypePeerToPeer,
		Scope:        engine.ScopePeer,
		IsPublic:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, rec.PointsAwarded)
	assert.Equal(t, engine.StatusApproved, rec.Status)
	assert.Equal(t, "e1", rec.ApprovedBy)
	assert.Equal(t, engine.PointsStatusCredited, rec.PointsStatus())
	assert.Equal(t, "Eve", rec.Recipients[0].FirstName)

	e2 := f.user("e2")
	assert.Equal(t, 10, e2.PointsBalance)
	assert.Equal(t, 10, e2.TotalPointsEarned)
	assert.Equal(t, 1, e2.RecognitionCount)

	entries := f.ledger("e2")
	require.Len(t, entries, 1)
	assert.Equal(t, 10, entries[0].Delta)
	assert.Equal(t, rec.ID, entries[0].RefID)

	require.Len(t, f.sink.events, 1)
	assert.Equal(t, rec.ID, f.sink.events[0].Recognition.ID)
}

func TestCreate_PrivateRecognitionIsNotBroadcast(t *testing.T) {
	f := newSQLiteFixture(t)
	_, err := f.svc.Create(context.Background(), f.user("e1"), recognition.CreateInput{
		RecipientIDs: []string{"e2"}, Message: "quiet thanks", Scope: engine.ScopePeer, IsPublic: false,
	})
	require.NoError(t, err)
	assert.Empty(t, f.sink.events)
}

// =============================================================================
// PEER SCOPE
// =============================================================================

func TestCreate_PeerScopeSymmetry(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	for _, pair := range [][2]string{{"e1", "e2"}, {"e2", "e1"}} {
		_, err := f.svc.Create(ctx, f.user(pair[0]), recognition.CreateInput{
			RecipientIDs: []string{pair[1]}, Message: "peer", Scope: engine.ScopePeer,
		})
		assert.NoError(t, err, "%s -> %s", pair[0], pair[1])
	}

	_, err := f.svc.Create(ctx, f.user("e1"), recognition.CreateInput{
		RecipientIDs: []string{"e3"}, Message: "peer", Scope: engine.ScopePeer,
	})
	require.Error(t, err)
	assert.Equal(t, engine.KindForbidden, engine.KindOf(err))
}

func TestCreate_PeerScopeRejectsWholeRequest(t *testing.T) {
	// GIVEN: e2 is a peer of e1, e3 is not
	// WHEN: e1 recognizes both under peer scope
	// THEN: forbidden, nobody is credited

	f := newSQLiteFixture(t)
	_, err := f.svc.Create(context.Background(), f.user("e1"), recognition.CreateInput{
		RecipientIDs: []string{"e2", "e3"}, Message: "team", Scope: engine.ScopePeer,
	})
	require.Error(t, err)
	assert.Equal(t, engine.KindForbidden, engine.KindOf(err))
	assert.Equal(t, 0, f.user("e2").PointsBalance)
}

func TestCreate_PeerScopeFallsBackToDepartment(t *testing.T) {
	f := newSQLiteFixture(t)
	_, err := f.svc.Create(context.Background(), f.user("solo"), recognition.CreateInput{
		RecipientIDs: []string{"m"}, Message: "dept peer", Scope: engine.ScopePeer,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, f.user("m").PointsBalance)
}

// =============================================================================
// REPORT SCOPE
// =============================================================================

func TestCreate_ReportScopeReachesWholeDownline(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.user("m"), recognition.CreateInput{
		RecipientIDs: []string{"g"}, Message: "skip-level shoutout", Scope: engine.ScopeReport,
		Type: engine.TypeManagerToEmployee,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, f.user("g").PointsBalance)

	_, err = f.svc.Create(ctx, f.user("m"), recognition.CreateInput{
		RecipientIDs: []string{"e3"}, Message: "not mine", Scope: engine.ScopeReport,
	})
	require.Error(t, err)
	assert.Equal(t, engine.KindForbidden, engine.KindOf(err))
	assert.Equal(t, 0, f.user("e3").PointsBalance)
}

func TestCreate_ReportScopeForbiddenForEmployees(t *testing.T) {
	f := newSQLiteFixture(t)
	_, err := f.svc.Create(context.Background(), f.user("e1"), recognition.CreateInput{
		RecipientIDs: []string{"g"}, Message: "hi", Scope: engine.ScopeReport,
	})
	assert.Equal(t, engine.KindForbidden, engine.KindOf(err))
}

// =============================================================================
// GLOBAL SCOPE
// =============================================================================

func TestCreate_GlobalScopeZeroPointsForNonQualifyingActors(t *testing.T) {
	f := newSQLiteFixture(t)
	rec, err := f.svc.Create(context.Background(), f.user("e1"), recognition.CreateInput{
		RecipientIDs: []string{"e3"}, Message: "cross-team kudos", Points: points(50),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.ScopeGlobal, rec.Scope, "scope defaults to global")
	assert.Equal(t, 0, rec.PointsAwarded)
	assert.Equal(t, engine.PointsStatusNone, rec.PointsStatus())
	assert.Equal(t, 0, f.user("e3").PointsBalance)
	assert.Empty(t, f.ledger("e3"))
}

func TestCreate_GlobalScopeManagerDownlineGetsDefault(t *testing.T) {
	f := newSQLiteFixture(t)
	rec, err := f.svc.Create(context.Background(), f.user("m"), recognition.CreateInput{
		RecipientIDs: []string{"e1", "g"}, Message: "great quarter", Points: points(80),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, rec.PointsAwarded, "overrides are ignored for managers")
	assert.Equal(t, 10, f.user("e1").PointsBalance)
	assert.Equal(t, 10, f.user("g").PointsBalance)
	assert.Equal(t, 10, f.user("m").MonthlyPointsSpent)
}

func TestCreate_KudosAlwaysZero(t *testing.T) {
	f := newSQLiteFixture(t)
	rec, err := f.svc.Create(context.Background(), f.user("hr"), recognition.CreateInput{
		RecipientIDs: []string{"e1"}, Message: "nice", Type: engine.TypeKudos, Points: points(100),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, rec.PointsAwarded)
	assert.Equal(t, 0, f.user("e1").PointsBalance)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestCreate_ValidationErrors(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	e1 := f.user("e1")

	cases := []struct {
		name string
		in   recognition.CreateInput
		kind engine.Kind
		code string
	}{
		{"no recipients", recognition.CreateInput{Message: "hi"}, engine.KindValidation, "recipient_required"},
		{"self only", recognition.CreateInput{RecipientIDs: []string{"e1"}, Message: "me"}, engine.KindValidation, "self_recognition"},
		{"missing recipient", recognition.CreateInput{RecipientIDs: []string{"e2", "ghost"}, Message: "hi"}, engine.KindNotFound, "recipient_not_found"},
		{"empty message", recognition.CreateInput{RecipientIDs: []string{"e2"}, Message: "  "}, engine.KindValidation, "message_required"},
		{"too many tags", recognition.CreateInput{
			RecipientIDs: []string{"e2"}, Message: "hi", Scope: engine.ScopePeer,
			ValuesTags: []string{"a", "b", "c", "d"},
		}, engine.KindValidation, "too_many_values"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, e1, tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, engine.KindOf(err))
			assert.Equal(t, tc.code, engine.CodeOf(err))
		})
	}

	assert.Equal(t, 0, f.user("e2").PointsBalance)
}

func TestCreate_SelfIsFilteredFromRecipients(t *testing.T) {
	f := newSQLiteFixture(t)
	rec, err := f.svc.Create(context.Background(), f.user("e1"), recognition.CreateInput{
		RecipientIDs: []string{"e1", "e2", "e2"}, Message: "us", Scope: engine.ScopePeer,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e2"}, rec.RecipientIDs)
	assert.Equal(t, 0, f.user("e1").PointsBalance)
}

func TestCreate_ElevatedPointsBounds(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	hr := f.user("hr")

	_, err := f.svc.Create(ctx, hr, recognition.CreateInput{RecipientIDs: []string{"e1"}, Message: "x", Points: points(-1)})
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))

	_, err = f.svc.Create(ctx, hr, recognition.CreateInput{RecipientIDs: []string{"e1"}, Message: "x", Points: points(engine.MaxPoints + 1)})
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))

	rec, err := f.svc.Create(ctx, hr, recognition.CreateInput{RecipientIDs: []string{"e1"}, Message: "x", Points: points(150)})
	require.NoError(t, err)
	assert.Equal(t, 150, rec.PointsAwarded)
	assert.Equal(t, engine.StatusApproved, rec.Status)
	assert.Equal(t, 150, f.user("e1").PointsBalance)
}

// =============================================================================
// APPROVAL GATING (P3, P4)
// =============================================================================

func TestApprovalGating_NoEffectUntilApproved(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	hr := f.user("hr")

	rec, err := f.svc.Create(ctx, hr, recognition.CreateInput{
		RecipientIDs: []string{"e1", "e2"}, Message: "launch heroes", Points: points(500),
		Type: engine.TypeSpotAward, IsPublic: true,
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, rec.Status)
	assert.Equal(t, engine.PointsStatusPending, rec.PointsStatus())
	assert.Equal(t, 0, rec.CreditedPoints())
	assert.Equal(t, 0, f.user("e1").PointsBalance)
	assert.Empty(t, f.ledger("e1"))

	pending, err := f.svc.ListPending(ctx, hr, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved, err := f.svc.Approve(ctx, hr, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, approved.Status)
	assert.Equal(t, 500, approved.CreditedPoints())

	for _, id := range []string{"e1", "e2"} {
		assert.Equal(t, 500, f.user(id).PointsBalance, id)
		entries := f.ledger(id)
		require.Len(t, entries, 1, id)
		assert.Equal(t, 500, entries[0].Delta)
	}

	_, err = f.svc.Approve(ctx, hr, rec.ID)
	assert.Equal(t, engine.KindConflict, engine.KindOf(err), "second approval must fail")
	assert.Len(t, f.ledger("e1"), 1)
}

func TestReject_IsTerminal(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	hr := f.user("hr")

	rec, err := f.svc.Create(ctx, hr, recognition.CreateInput{
		RecipientIDs: []string{"e1"}, Message: "maybe", Points: points(300),
	})
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, hr, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRejected, rejected.Status)
	assert.Equal(t, engine.PointsStatusNone, rejected.PointsStatus())

	_, err = f.svc.Approve(ctx, hr, rec.ID)
	assert.Equal(t, engine.KindConflict, engine.KindOf(err))
	assert.Equal(t, 0, f.user("e1").PointsBalance)
	assert.Empty(t, f.ledger("e1"))

	stored, err := f.store.GetRecognition(ctx, tenant, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRejected, stored.Status)
}

func TestApprove_RequiresElevatedRole(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	rec, err := f.svc.Create(ctx, f.user("hr"), recognition.CreateInput{
		RecipientIDs: []string{"e1"}, Message: "big", Points: points(1000),
	})
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, f.user("m"), rec.ID)
	assert.Equal(t, engine.KindForbidden, engine.KindOf(err))

	_, err = f.svc.Approve(ctx, f.user("hr"), "missing")
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
}

func TestApprove_ConcurrentApprovalsCreditOnce(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()
	hr := f.user("hr")
	rec, err := f.svc.Create(ctx, hr, recognition.CreateInput{
		RecipientIDs: []string{"e1"}, Message: "big", Points: points(250),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.Approve(ctx, hr, rec.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 250, f.user("e1").PointsBalance)
	assert.Len(t, f.ledger("e1"), 1)
}

// insertPending stores a gated recognition directly, the way one created
// before a directory change would look when it finally gets reviewed.
func (f *fixture) insertPending(id, senderID string, points int, recipientIDs ...string) {
	f.t.Helper()
	now := time.Now().UTC()
	sender := f.user(senderID)
	require.NoError(f.t, f.store.InsertRecognition(context.Background(), engine.Recognition{
		ID: id, TenantID: tenant, SenderID: senderID, RecipientIDs: recipientIDs,
		Message: "held for review", PointsAwarded: points, Type: engine.TypeSpotAward,
		Scope: engine.ScopeGlobal, IsPublic: true, Status: engine.StatusPending,
		Sender:    engine.UserSnapshot{ID: sender.ID, FirstName: sender.FirstName, Role: sender.Role},
		CreatedAt: now, UpdatedAt: now,
	}))
}

func (f *fixture) status(id string) engine.Status {
	f.t.Helper()
	rec, err := f.store.GetRecognition(context.Background(), tenant, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, rec)
	return rec.Status
}

func TestApprove_RechecksSenderAllowance(t *testing.T) {
	// GIVEN: a pending 300-point recognition from manager m, whose monthly
	//        allowance is 100
	// WHEN: hr approves it
	// THEN: validation error, still pending, no balance or spend change

	f := newSQLiteFixture(t)
	ctx := context.Background()
	m := f.user("m")
	m.MonthlyPointsAllowance = points(100)
	require.NoError(t, f.store.SaveUser(ctx, m))
	f.insertPending("rec-gated", "m", 300, "e1")

	_, err := f.svc.Approve(ctx, f.user("hr"), "rec-gated")
	require.Error(t, err)
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
	assert.ErrorIs(t, err, engine.ErrAllowanceExceeded)

	assert.Equal(t, engine.StatusPending, f.status("rec-gated"))
	assert.Equal(t, 0, f.user("e1").PointsBalance)
	assert.Empty(t, f.ledger("e1"))
	assert.Equal(t, 0, f.user("m").MonthlyPointsSpent)

	// Raising the allowance lets the same recognition through.
	m.MonthlyPointsAllowance = points(300)
	require.NoError(t, f.store.SaveUser(ctx, m))
	approved, err := f.svc.Approve(ctx, f.user("hr"), "rec-gated")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusApproved, approved.Status)
	assert.Equal(t, 300, f.user("e1").PointsBalance)
	assert.Equal(t, 300, f.user("m").MonthlyPointsSpent)
}

func TestApprove_VanishedRecipientCreditsNobody(t *testing.T) {
	// GIVEN: a pending recognition for e1 and a recipient no longer in the
	//        directory
	// WHEN: hr approves it
	// THEN: NotFound, nothing credited, no orphan ledger entry, still pending

	for name, s := range map[string]engine.Store{
		"transactional": newSQLiteStore(t),
		"compensating":  store.NewMemory(),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, s)
			f.insertPending("rec-orphan", "hr", 250, "e1", "departed")

			_, err := f.svc.Approve(context.Background(), f.user("hr"), "rec-orphan")
			require.Error(t, err)
			assert.Equal(t, engine.KindNotFound, engine.KindOf(err))

			assert.Equal(t, engine.StatusPending, f.status("rec-orphan"))
			assert.Equal(t, 0, f.user("e1").PointsBalance)
			total := 0
			for _, e := range f.ledger("e1") {
				total += e.Delta
			}
			assert.Equal(t, 0, total)
			assert.Empty(t, f.ledger("departed"))
		})
	}
}

// =============================================================================
// MONTHLY ALLOWANCE
// =============================================================================

func TestAllowance_ManagerCannotOverspend(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	m := f.user("m")
	m.MonthlyPointsAllowance = points(5)
	require.NoError(t, f.store.SaveUser(ctx, m))

	_, err := f.svc.Create(ctx, f.user("m"), recognition.CreateInput{
		RecipientIDs: []string{"e1"}, Message: "ten", Scope: engine.ScopeReport,
	})
	require.Error(t, err)
	assert.Equal(t, engine.KindValidation, engine.KindOf(err))
	assert.ErrorIs(t, err, engine.ErrAllowanceExceeded)
	assert.Equal(t, 0, f.user("e1").PointsBalance)
	assert.Equal(t, 0, f.user("m").MonthlyPointsSpent)

	rec, err := f.svc.Create(ctx, f.user("m"), recognition.CreateInput{
		RecipientIDs: []string{"e1"}, Message: "five", Scope: engine.ScopeReport, Points: points(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 5, rec.PointsAwarded)
	assert.Equal(t, 5, f.user("m").MonthlyPointsSpent)
	assert.Equal(t, 5, f.user("e1").PointsBalance)
}

// =============================================================================
// COMPENSATING PATH
// =============================================================================

// failingLedger fails the nth AppendLedgerEntry call.
type failingLedger struct {
	*store.Memory
	mu    sync.Mutex
	calls int
	failN int
}

func (s *failingLedger) AppendLedgerEntry(ctx context.Context, e engine.LedgerEntry) error {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if n == s.failN {
		return assert.AnError
	}
	return s.Memory.AppendLedgerEntry(ctx, e)
}

func TestCreate_CompensatesWithoutTransactions(t *testing.T) {
	// GIVEN: a store without transactions whose second ledger append fails
	// WHEN: hr credits two recipients
	// THEN: the error surfaces, the recognition is gone, balances net to zero

	s := &failingLedger{Memory: store.NewMemory(), failN: 2}
	f := newFixture(t, s)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.user("hr"), recognition.CreateInput{
		RecipientIDs: []string{"e1", "e2"}, Message: "oops", Points: points(50),
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, 0, f.user("e1").PointsBalance)
	assert.Equal(t, 0, f.user("e1").RecognitionCount)
	assert.Equal(t, 0, f.user("e2").PointsBalance)

	recs, err := s.QueryRecognitions(ctx, engine.RecognitionQuery{TenantID: tenant})
	require.NoError(t, err)
	assert.Empty(t, recs)

	total := 0
	for _, e := range f.ledger("e1") {
		total += e.Delta
	}
	assert.Equal(t, 0, total, "reversal entries cancel the credit")
}

func TestCreate_TransactionalMemoryStore(t *testing.T) {
	f := newFixture(t, store.NewTxMemory())
	f.svc.Now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }

	rec, err := f.svc.Create(context.Background(), f.user("e1"), recognition.CreateInput{
		RecipientIDs: []string{"e2"}, Message: "tx path", Scope: engine.ScopePeer,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), rec.CreatedAt)
	assert.Equal(t, 10, f.user("e2").PointsBalance)
}
