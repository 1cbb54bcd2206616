package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swiftreader/swiftreader/internal/users"
)

// TierBeta is the tier reported in usage envelopes while unrestricted mode
// is on.
const TierBeta = "beta"

// Store is the slice of the record store the engine mutates. Both operations
// are atomic read-modify-writes against the account row; see users.Repository.
type Store interface {
	ResetPeriodIfStale(ctx context.Context, id uuid.UUID, now time.Time) (int, time.Time, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) (int, error)
}

// Engine owns the per-account quota state machine: the payment gate, the lazy
// monthly rollover, and the limit decision. The unrestricted flag is injected
// at construction so both modes are testable deterministically.
type Engine struct {
	store        Store
	limits       LimitTable
	unrestricted bool
	now          func() time.Time
}

func NewEngine(store Store, limits LimitTable, unrestricted bool) *Engine {
	return &Engine{
		store:        store,
		limits:       limits,
		unrestricted: unrestricted,
		now:          time.Now,
	}
}

// Unrestricted reports whether the global beta-mode bypass is on.
func (e *Engine) Unrestricted() bool {
	return e.unrestricted
}

// Decision is the allow outcome of a quota check: the usage snapshot the
// caller-facing envelope is built from. Limit nil means unbounded.
type Decision struct {
	Used  int
	Limit *int
	Tier  string
	Beta  bool
}

// Check runs the pre-summarization gate for an account the caller has already
// resolved. In unrestricted mode every gate is skipped and the request is
// allowed outright; otherwise a past_due status denies before any quota math,
// then the monthly rollover is applied, then the limit is evaluated.
//
// Denials are ErrPaymentRequired or *LimitReachedError; any other error is a
// record-store failure.
func (e *Engine) Check(ctx context.Context, account *users.Account) (*Decision, error) {
	if e.unrestricted {
		return &Decision{Used: account.UsageCount, Limit: nil, Tier: TierBeta, Beta: true}, nil
	}

	if account.Status == users.StatusPastDue {
		return nil, ErrPaymentRequired
	}

	now := e.now()
	used, resetAt, err := e.store.ResetPeriodIfStale(ctx, account.ID, now)
	if err != nil {
		return nil, fmt.Errorf("rolling usage period: %w", err)
	}
	// The store reports the row as it stands after the rollover. The limit
	// must be evaluated against that, not the caller's snapshot: a racing
	// request may have re-anchored the month since the account was loaded.
	account.UsageCount = used
	account.UsageResetAt = resetAt

	limit := e.limits.Monthly(account.Tier)
	if limit != nil && account.UsageCount >= *limit {
		return nil, &LimitReachedError{
			Used:     account.UsageCount,
			Limit:    *limit,
			Tier:     account.Tier,
			ResetsAt: firstOfNextMonth(now),
		}
	}

	return &Decision{Used: account.UsageCount, Limit: limit, Tier: string(account.Tier), Beta: false}, nil
}

// Usage reports the current envelope for display without touching the
// store: no rollover, no denial. The counter is only as fresh as the
// account's last request, which is all the lazy reset promises.
func (e *Engine) Usage(account *users.Account) *Decision {
	if e.unrestricted {
		return &Decision{Used: account.UsageCount, Limit: nil, Tier: TierBeta, Beta: true}
	}
	return &Decision{
		Used:  account.UsageCount,
		Limit: e.limits.Monthly(account.Tier),
		Tier:  string(account.Tier),
		Beta:  false,
	}
}

// Commit charges one summary after a delivered result. It runs in
// unrestricted mode too: accounting is always recorded, only the gates are
// bypassed.
func (e *Engine) Commit(ctx context.Context, id uuid.UUID) (int, error) {
	used, err := e.store.IncrementUsage(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("charging usage: %w", err)
	}
	return used, nil
}

func firstOfNextMonth(t time.Time) time.Time {
	year, month, _ := t.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
}
