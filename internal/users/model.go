package users

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the subscription level governing the monthly summary quota.
type Tier string

const (
	TierFree    Tier = "free"
	TierStudent Tier = "student"
	TierPro     Tier = "pro"
)

// Status is the billing state of an account, written by the Stripe webhook
// handler and only read everywhere else.
type Status string

const (
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
)

// Account matches the users table schema. UsageCount accumulates over the
// rolling monthly window anchored at UsageResetAt.
type Account struct {
	ID                   uuid.UUID `json:"id"`
	Email                string    `json:"email"`
	PasswordHash         string    `json:"-"`
	Tier                 Tier      `json:"tier"`
	Status               Status    `json:"status"`
	UsageCount           int       `json:"usage_count"`
	UsageResetAt         time.Time `json:"usage_reset_at"`
	StripeCustomerID     *string   `json:"-"`
	StripeSubscriptionID *string   `json:"-"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
