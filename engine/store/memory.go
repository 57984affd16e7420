// Package store provides in-memory Store implementations.
//
// Memory has no transaction support, so workflows running on it exercise
// the compensating-write path. TxMemory adds snapshot/rollback
// transactions on top of the same state.
package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/recognition-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu *sync.RWMutex
	// held is set on the view handed to WithTx callbacks; the parent
	// already owns the write lock.
	held bool
	st   *memState
}

type key struct {
	TenantID string
	ID       string
}

type memState struct {
	orgs         map[string]engine.Org
	users        map[key]engine.User
	recognitions map[key]engine.Recognition
	ledger       []engine.LedgerEntry
	rewards      map[key]engine.Reward
	redemptions  map[key]engine.Redemption
	audit        []engine.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		mu: &sync.RWMutex{},
		st: &memState{
			orgs:         make(map[string]engine.Org),
			users:        make(map[key]engine.User),
			recognitions: make(map[key]engine.Recognition),
			rewards:      make(map[key]engine.Reward),
			redemptions:  make(map[key]engine.Redemption),
		},
	}
}

func (m *Memory) lock() func() {
	if m.held {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Memory) rlock() func() {
	if m.held {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveOrg(_ context.Context, org engine.Org) error {
	defer m.lock()()
	m.st.orgs[org.ID] = org
	return nil
}

func (m *Memory) GetOrg(_ context.Context, id string) (*engine.Org, error) {
	defer m.rlock()()
	org, ok := m.st.orgs[id]
	if !ok {
		return nil, nil
	}
	return &org, nil
}

func (m *Memory) SaveUser(_ context.Context, u engine.User) error {
	defer m.lock()()
	m.st.users[key{u.TenantID, u.ID}] = cloneUser(u)
	return nil
}

func (m *Memory) GetUser(_ context.Context, tenantID, id string) (*engine.User, error) {
	defer m.rlock()()
	u, ok := m.st.users[key{tenantID, id}]
	if !ok {
		return nil, nil
	}
	u = cloneUser(u)
	return &u, nil
}

func (m *Memory) FindUsers(_ context.Context, tenantID string, ids []string) ([]engine.User, error) {
	defer m.rlock()()
	var out []engine.User
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if u, ok := m.st.users[key{tenantID, id}]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (m *Memory) ListUsers(_ context.Context, tenantID string, activeOnly bool) ([]engine.User, error) {
	defer m.rlock()()
	var out []engine.User
	for k, u := range m.st.users {
		if k.TenantID != tenantID || (activeOnly && !u.IsActive) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) IncrementPoints(_ context.Context, tenantID, userID string, inc engine.PointsIncrement) error {
	defer m.lock()()
	k := key{tenantID, userID}
	u, ok := m.st.users[k]
	if !ok {
		return engine.NotFound("user_not_found", "User not found.")
	}
	u.PointsBalance += inc.Balance
	u.TotalPointsEarned += inc.TotalEarned
	u.RecognitionCount += inc.RecognitionCount
	m.st.users[k] = u
	return nil
}

func (m *Memory) DebitPoints(_ context.Context, tenantID, userID string, points int) (bool, error) {
	defer m.lock()()
	k := key{tenantID, userID}
	u, ok := m.st.users[k]
	if !ok || u.PointsBalance < points {
		return false, nil
	}
	u.PointsBalance -= points
	m.st.users[k] = u
	return true, nil
}

func (m *Memory) IncrementMonthlySpent(_ context.Context, tenantID, userID string, points int) error {
	defer m.lock()()
	k := key{tenantID, userID}
	if u, ok := m.st.users[k]; ok {
		u.MonthlyPointsSpent += points
		m.st.users[k] = u
	}
	return nil
}

func (m *Memory) ResetMonthlySpent(_ context.Context, tenantID string) (int64, error) {
	defer m.lock()()
	var n int64
	for k, u := range m.st.users {
		if u.MonthlyPointsSpent == 0 || (tenantID != "" && k.TenantID != tenantID) {
			continue
		}
		u.MonthlyPointsSpent = 0
		m.st.users[k] = u
		n++
	}
	return n, nil
}

func cloneUser(u engine.User) engine.User {
	if u.MonthlyPointsAllowance != nil {
		a := *u.MonthlyPointsAllowance
		u.MonthlyPointsAllowance = &a
	}
	return u
}

// =============================================================================
// RECOGNITIONS
// =============================================================================

func (m *Memory) InsertRecognition(_ context.Context, r engine.Recognition) error {
	defer m.lock()()
	m.st.recognitions[key{r.TenantID, r.ID}] = r.Clone()
	return nil
}

func (m *Memory) GetRecognition(_ context.Context, tenantID, id string) (*engine.Recognition, error) {
	defer m.rlock()()
	r, ok := m.st.recognitions[key{tenantID, id}]
	if !ok {
		return nil, nil
	}
	r = r.Clone()
	return &r, nil
}

func (m *Memory) DeleteRecognition(_ context.Context, tenantID, id string) error {
	defer m.lock()()
	delete(m.st.recognitions, key{tenantID, id})
	return nil
}

func (m *Memory) TransitionRecognition(_ context.Context, tenantID, id string, t engine.Transition) (bool, error) {
	defer m.lock()()
	k := key{tenantID, id}
	r, ok := m.st.recognitions[k]
	if !ok || r.Status != t.From {
		return false, nil
	}
	r = r.Clone()
	r.Status = t.To
	r.ApprovedBy = t.ApprovedBy
	r.ApprovedAt = t.ApprovedAt
	r.UpdatedAt = t.At
	m.st.recognitions[k] = r
	return true, nil
}

func (m *Memory) SetReactions(_ context.Context, tenantID, id string, reactions []engine.Reaction) error {
	defer m.lock()()
	k := key{tenantID, id}
	r, ok := m.st.recognitions[k]
	if !ok {
		return nil
	}
	r = r.Clone()
	r.Reactions = engine.CloneReactions(reactions)
	m.st.recognitions[k] = r
	return nil
}

func (m *Memory) QueryRecognitions(_ context.Context, q engine.RecognitionQuery) ([]engine.Recognition, error) {
	defer m.rlock()()
	var out []engine.Recognition
	for k, r := range m.st.recognitions {
		if k.TenantID == q.TenantID && matches(r, q) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if q.OldestFirst {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if q.OldestFirst {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	return page(out, q.Offset, q.Limit), nil
}

func matches(r engine.Recognition, q engine.RecognitionQuery) bool {
	if q.PublicOnly && !r.IsPublic {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.Type != "" && r.Type != q.Type {
		return false
	}
	if q.ParticipantID != "" {
		sent := r.SenderID == q.ParticipantID
		received := r.HasRecipient(q.ParticipantID)
		switch q.Direction {
		case engine.DirectionSent:
			if !sent {
				return false
			}
		case engine.DirectionReceived:
			if !received {
				return false
			}
		default:
			if !sent && !received {
				return false
			}
		}
	}
	if q.ValueTag != "" && !slices.Contains(r.ValuesTags, q.ValueTag) {
		return false
	}
	if q.Search != "" && !strings.Contains(searchText(r), strings.ToLower(q.Search)) {
		return false
	}
	if q.After != nil && !q.After.Admits(r.CreatedAt, r.ID) {
		return false
	}
	return true
}

func searchText(r engine.Recognition) string {
	parts := []string{r.Message, r.Sender.FullName()}
	for _, s := range r.Recipients {
		parts = append(parts, s.FullName())
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (m *Memory) CountRecognitionsSince(_ context.Context, tenantID string, since time.Time) (int, error) {
	defer m.rlock()()
	n := 0
	for k, r := range m.st.recognitions {
		if k.TenantID == tenantID && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountByRecipientDepartment(_ context.Context, tenantID string) (map[string]int, error) {
	defer m.rlock()()
	out := make(map[string]int)
	for k, r := range m.st.recognitions {
		if k.TenantID != tenantID {
			continue
		}
		for _, rcp := range r.Recipients {
			out[rcp.Department]++
		}
	}
	return out, nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) AppendLedgerEntry(_ context.Context, e engine.LedgerEntry) error {
	defer m.lock()()
	m.st.ledger = append(m.st.ledger, e)
	return nil
}

func (m *Memory) ListLedgerEntries(_ context.Context, tenantID, userID string, limit int) ([]engine.LedgerEntry, error) {
	defer m.rlock()()
	var out []engine.LedgerEntry
	for i := len(m.st.ledger) - 1; i >= 0; i-- {
		e := m.st.ledger[i]
		if e.TenantID == tenantID && e.UserID == userID {
			out = append(out, e)
		}
	}
	return page(out, 0, limit), nil
}

func (m *Memory) NetDeltaByRefType(_ context.Context, tenantID string) (map[engine.RefType]int, error) {
	defer m.rlock()()
	out := make(map[engine.RefType]int)
	for _, e := range m.st.ledger {
		if e.TenantID == tenantID {
			out[e.RefType] += e.Delta
		}
	}
	return out, nil
}

// =============================================================================
// REWARDS & REDEMPTIONS
// =============================================================================

func (m *Memory) SaveReward(_ context.Context, r engine.Reward) error {
	defer m.lock()()
	r.Prices = maps.Clone(r.Prices)
	m.st.rewards[key{r.TenantID, r.ID}] = r
	return nil
}

func (m *Memory) GetReward(_ context.Context, tenantID, id string) (*engine.Reward, error) {
	defer m.rlock()()
	r, ok := m.st.rewards[key{tenantID, id}]
	if !ok {
		return nil, nil
	}
	r.Prices = maps.Clone(r.Prices)
	return &r, nil
}

func (m *Memory) ListRewards(_ context.Context, tenantID string, activeOnly bool) ([]engine.Reward, error) {
	defer m.rlock()()
	var out []engine.Reward
	for k, r := range m.st.rewards {
		if k.TenantID != tenantID || (activeOnly && !r.IsActive) {
			continue
		}
		r.Prices = maps.Clone(r.Prices)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointsRequired != out[j].PointsRequired {
			return out[i].PointsRequired < out[j].PointsRequired
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) DecrementAvailability(_ context.Context, tenantID, rewardID string) (bool, error) {
	defer m.lock()()
	k := key{tenantID, rewardID}
	r, ok := m.st.rewards[k]
	if !ok || r.Availability <= 0 {
		return false, nil
	}
	r.Availability--
	m.st.rewards[k] = r
	return true, nil
}

func (m *Memory) IncrementAvailability(_ context.Context, tenantID, rewardID string) error {
	defer m.lock()()
	k := key{tenantID, rewardID}
	if r, ok := m.st.rewards[k]; ok {
		r.Availability++
		m.st.rewards[k] = r
	}
	return nil
}

func (m *Memory) InsertRedemption(_ context.Context, r engine.Redemption) error {
	defer m.lock()()
	m.st.redemptions[key{r.TenantID, r.ID}] = r
	return nil
}

func (m *Memory) GetRedemption(_ context.Context, tenantID, id string) (*engine.Redemption, error) {
	defer m.rlock()()
	r, ok := m.st.redemptions[key{tenantID, id}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) UpdateRedemption(_ context.Context, r engine.Redemption) error {
	defer m.lock()()
	k := key{r.TenantID, r.ID}
	if _, ok := m.st.redemptions[k]; ok {
		m.st.redemptions[k] = r
	}
	return nil
}

func (m *Memory) ListRedemptions(_ context.Context, q engine.RedemptionQuery) ([]engine.Redemption, error) {
	defer m.rlock()()
	var out []engine.Redemption
	for k, r := range m.st.redemptions {
		if k.TenantID != q.TenantID {
			continue
		}
		if (q.UserID != "" && r.UserID != q.UserID) || (q.Status != "" && r.Status != q.Status) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if q.OldestFirst {
			a, b = b, a
		}
		if !a.RedeemedAt.Equal(b.RedeemedAt) {
			return a.RedeemedAt.After(b.RedeemedAt)
		}
		return a.ID > b.ID
	})
	return page(out, 0, q.Limit), nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, e engine.AuditEntry) error {
	defer m.lock()()
	e.Diff = maps.Clone(e.Diff)
	m.st.audit = append(m.st.audit, e)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, tenantID string, limit int) ([]engine.AuditEntry, error) {
	defer m.rlock()()
	var out []engine.AuditEntry
	for i := len(m.st.audit) - 1; i >= 0; i-- {
		if m.st.audit[i].TenantID == tenantID {
			out = append(out, m.st.audit[i])
		}
	}
	return page(out, 0, limit), nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized by the store's write lock.
func (tm *TxMemory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()
	view := &Memory{mu: tm.mu, held: true, st: tm.st}

	if err := fn(view); err != nil {
		*tm.st = snapshot
		return err
	}
	return nil
}

// Stored values are replaced on every write, never mutated in place, so
// copying the containers is enough.
func (s *memState) clone() memState {
	return memState{
		orgs:         maps.Clone(s.orgs),
		users:        maps.Clone(s.users),
		recognitions: maps.Clone(s.recognitions),
		ledger:       slices.Clone(s.ledger),
		rewards:      maps.Clone(s.rewards),
		redemptions:  maps.Clone(s.redemptions),
		audit:        slices.Clone(s.audit),
	}
}

var (
	_ engine.Store   = (*Memory)(nil)
	_ engine.TxStore = (*TxMemory)(nil)
)
