package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftreader/swiftreader/internal/users"
)

// memStore mirrors the record store's atomic conditional-update contract
// in memory so the engine and its races can be tested without Postgres.
type memStore struct {
	mu         sync.Mutex
	accounts   map[uuid.UUID]*users.Account
	resetCalls int
	resets     int
	incCalls   int
	failReset  error
	failInc    error
}

func newMemStore(accounts ...*users.Account) *memStore {
	s := &memStore{accounts: make(map[uuid.UUID]*users.Account)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *memStore) ResetPeriodIfStale(_ context.Context, id uuid.UUID, now time.Time) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
	if s.failReset != nil {
		return 0, time.Time{}, s.failReset
	}
	a, ok := s.accounts[id]
	if !ok {
		return 0, time.Time{}, errors.New("account not found")
	}
	ay, am, _ := a.UsageResetAt.Date()
	ny, nm, _ := now.Date()
	if ay != ny || am != nm {
		a.UsageCount = 0
		a.UsageResetAt = now
		s.resets++
	}
	return a.UsageCount, a.UsageResetAt, nil
}

func (s *memStore) IncrementUsage(_ context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incCalls++
	if s.failInc != nil {
		return 0, s.failInc
	}
	a, ok := s.accounts[id]
	if !ok {
		return 0, errors.New("account not found")
	}
	a.UsageCount++
	return a.UsageCount, nil
}

func freeAccount(used int, resetAt time.Time) *users.Account {
	return &users.Account{
		ID:           uuid.New(),
		Email:        "reader@example.com",
		Tier:         users.TierFree,
		Status:       users.StatusActive,
		UsageCount:   used,
		UsageResetAt: resetAt,
	}
}

func fixedNow() time.Time {
	return time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(store Store, unrestricted bool) *Engine {
	e := NewEngine(store, DefaultLimits(), unrestricted)
	e.now = fixedNow
	return e
}

func TestEngine_AllowsUnderLimit(t *testing.T) {
	acct := freeAccount(3, fixedNow())
	e := newTestEngine(newMemStore(acct), false)

	dec, err := e.Check(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, 3, dec.Used)
	require.NotNil(t, dec.Limit)
	assert.Equal(t, 5, *dec.Limit)
	assert.Equal(t, "free", dec.Tier)
	assert.False(t, dec.Beta)
}

func TestEngine_FreeTierAtLimit(t *testing.T) {
	acct := freeAccount(5, fixedNow())
	e := newTestEngine(newMemStore(acct), false)

	_, err := e.Check(context.Background(), acct)
	var limitErr *LimitReachedError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 5, limitErr.Used)
	assert.Equal(t, 5, limitErr.Limit)
	assert.Equal(t, users.TierFree, limitErr.Tier)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), limitErr.ResetsAt)
}

func TestEngine_PaidTiersUnbounded(t *testing.T) {
	for _, tier := range []users.Tier{users.TierStudent, users.TierPro} {
		t.Run(string(tier), func(t *testing.T) {
			acct := freeAccount(10_000, fixedNow())
			acct.Tier = tier
			e := newTestEngine(newMemStore(acct), false)

			dec, err := e.Check(context.Background(), acct)
			require.NoError(t, err)
			assert.Nil(t, dec.Limit)
			assert.Equal(t, string(tier), dec.Tier)
		})
	}
}

func TestEngine_PastDueDeniesBeforeQuotaMath(t *testing.T) {
	acct := freeAccount(0, fixedNow().AddDate(0, -2, 0))
	acct.Status = users.StatusPastDue
	store := newMemStore(acct)
	e := newTestEngine(store, false)

	_, err := e.Check(context.Background(), acct)
	require.ErrorIs(t, err, ErrPaymentRequired)
	// Even a stale period is not rolled over for a past_due account.
	assert.Zero(t, store.resetCalls)
}

func TestEngine_MonthlyRollover(t *testing.T) {
	// Anchored in May, checked in June: the counter resets before the limit
	// is evaluated, so an exhausted account is allowed again.
	acct := freeAccount(5, time.Date(2025, time.May, 20, 8, 0, 0, 0, time.UTC))
	store := newMemStore(acct)
	e := newTestEngine(store, false)

	dec, err := e.Check(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, 0, dec.Used)
	assert.Equal(t, fixedNow(), acct.UsageResetAt)

	// A second check in the same month must not reset again.
	acct.UsageCount = 2
	dec, err = e.Check(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, 2, dec.Used)
}

func TestEngine_StaleSnapshotAfterConcurrentRollover(t *testing.T) {
	// A racing request already re-anchored the month: the store row reads
	// June/0 while this request still holds the May/5 snapshot it loaded
	// before the reset. The limit must be evaluated against the store's
	// fresh count, not the snapshot, or an exhausted-looking account is
	// spuriously denied right after its counter reset.
	snapshot := freeAccount(5, time.Date(2025, time.May, 20, 8, 0, 0, 0, time.UTC))
	stored := *snapshot
	stored.UsageCount = 0
	stored.UsageResetAt = fixedNow()
	store := newMemStore(&stored)
	e := newTestEngine(store, false)

	dec, err := e.Check(context.Background(), snapshot)
	require.NoError(t, err)
	assert.Equal(t, 0, dec.Used)
	assert.Equal(t, fixedNow(), snapshot.UsageResetAt)
	assert.Equal(t, 0, store.resets, "the row was already anchored, no second reset")
}

func TestEngine_RolloverSkippedSameMonth(t *testing.T) {
	acct := freeAccount(4, fixedNow().Add(-24*time.Hour))
	e := newTestEngine(newMemStore(acct), false)

	dec, err := e.Check(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, 4, dec.Used)
}

func TestEngine_UnrestrictedBypassesGates(t *testing.T) {
	// past_due AND over the free limit: beta mode must allow anyway.
	acct := freeAccount(50, fixedNow())
	acct.Status = users.StatusPastDue
	store := newMemStore(acct)
	e := newTestEngine(store, true)

	dec, err := e.Check(context.Background(), acct)
	require.NoError(t, err)
	assert.True(t, dec.Beta)
	assert.Equal(t, TierBeta, dec.Tier)
	assert.Nil(t, dec.Limit)
	assert.Zero(t, store.resetCalls)

	// Accounting is still recorded on success.
	used, err := e.Commit(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 51, used)
}

func TestEngine_CommitReturnsNewCount(t *testing.T) {
	acct := freeAccount(1, fixedNow())
	e := newTestEngine(newMemStore(acct), false)

	used, err := e.Commit(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, used)
}

func TestEngine_StoreFailuresPropagate(t *testing.T) {
	acct := freeAccount(0, fixedNow())
	store := newMemStore(acct)
	store.failReset = errors.New("connection refused")
	e := newTestEngine(store, false)

	_, err := e.Check(context.Background(), acct)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPaymentRequired)

	store.failReset = nil
	store.failInc = errors.New("connection refused")
	_, err = e.Commit(context.Background(), acct.ID)
	require.Error(t, err)
}

func TestStore_ConcurrentRolloverResetsOnce(t *testing.T) {
	acct := freeAccount(5, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))
	store := newMemStore(acct)
	now := fixedNow()

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			used, _, err := store.ResetPeriodIfStale(context.Background(), acct.ID, now)
			require.NoError(t, err)
			assert.Equal(t, 0, used, "every racer must observe the post-reset count")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.resets, "exactly one request may perform the rollover")
	assert.Equal(t, 0, acct.UsageCount)
}

func TestStore_ConcurrentIncrementsNeverUndercount(t *testing.T) {
	acct := freeAccount(0, fixedNow())
	store := newMemStore(acct)

	const workers = 64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementUsage(context.Background(), acct.ID)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, acct.UsageCount)
}
