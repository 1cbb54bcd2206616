package quota

import (
	"errors"
	"fmt"
	"time"

	"github.com/swiftreader/swiftreader/internal/users"
)

// ErrPaymentRequired blocks usage while the account's billing status is
// past_due. No quota evaluation happens behind it.
var ErrPaymentRequired = errors.New("subscription payment is past due")

// LimitReachedError is returned when a finite monthly allowance is used up.
// ResetsAt is the first day of the next calendar month, when the lazy
// rollover will zero the counter.
type LimitReachedError struct {
	Used     int
	Limit    int
	Tier     users.Tier
	ResetsAt time.Time
}

func (e *LimitReachedError) Error() string {
	return fmt.Sprintf("monthly limit reached: %d/%d summaries used on tier %s", e.Used, e.Limit, e.Tier)
}
