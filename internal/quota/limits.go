package quota

import "github.com/swiftreader/swiftreader/internal/users"

// LimitTable maps a subscription tier to its monthly summary allowance.
// A nil entry means unbounded; finite limits are compared exactly, never
// against a sentinel number.
type LimitTable map[users.Tier]*int

// DefaultLimits returns the production limit table: free accounts get five
// summaries per month, paid tiers are unbounded.
func DefaultLimits() LimitTable {
	free := 5
	return LimitTable{
		users.TierFree:    &free,
		users.TierStudent: nil,
		users.TierPro:     nil,
	}
}

// Monthly returns the limit for a tier. Tiers missing from the table fall
// back to the free allowance rather than unlimited.
func (t LimitTable) Monthly(tier users.Tier) *int {
	limit, ok := t[tier]
	if !ok {
		return t[users.TierFree]
	}
	if limit == nil {
		return nil
	}
	v := *limit
	return &v
}
