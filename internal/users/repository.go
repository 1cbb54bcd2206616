package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	// ResetPeriodIfStale zeroes the usage counter and re-anchors the period
	// at now, but only when now falls in a different calendar month than the
	// stored anchor. A single atomic UPDATE so two concurrent requests
	// cannot double-reset, returning the row's current count and anchor:
	// callers must evaluate limits against these, never against a snapshot
	// loaded before the call (a racing request may have reset in between).
	ResetPeriodIfStale(ctx context.Context, id uuid.UUID, now time.Time) (int, time.Time, error)

	// IncrementUsage atomically adds one consumed summary and returns the
	// new count.
	IncrementUsage(ctx context.Context, id uuid.UUID) (int, error)

	SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error
	ActivateSubscription(ctx context.Context, id uuid.UUID, tier Tier, customerID, subscriptionID string) error
	UpdateStatusBySubscription(ctx context.Context, subscriptionID string, status Status) error
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const accountColumns = `id, email, password_hash, tier, status, usage_count, usage_reset_at,
	stripe_customer_id, stripe_subscription_id, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	a := &Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Tier, &a.Status, &a.UsageCount, &a.UsageResetAt,
		&a.StripeCustomerID, &a.StripeSubscriptionID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *postgresRepository) Create(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO users (id, email, password_hash, tier, status, usage_count, usage_reset_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.Tier, account.Status,
		account.UsageCount, account.UsageResetAt, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`

	account, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying account by id: %w", err)
	}
	return account, nil
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = $1`

	account, err := scanAccount(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying account by email: %w", err)
	}
	return account, nil
}

func (r *postgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

func (r *postgresRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, passwordHash)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

func (r *postgresRepository) ResetPeriodIfStale(ctx context.Context, id uuid.UUID, now time.Time) (int, time.Time, error) {
	var count int
	var resetAt time.Time
	err := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET usage_count = CASE
		         WHEN date_trunc('month', usage_reset_at) <> date_trunc('month', $2::timestamptz) THEN 0
		         ELSE usage_count
		     END,
		     usage_reset_at = CASE
		         WHEN date_trunc('month', usage_reset_at) <> date_trunc('month', $2::timestamptz) THEN $2::timestamptz
		         ELSE usage_reset_at
		     END,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING usage_count, usage_reset_at`,
		id, now).Scan(&count, &resetAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("resetting usage period: %w", err)
	}
	return count, resetAt, nil
}

func (r *postgresRepository) IncrementUsage(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET usage_count = usage_count + 1,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING usage_count`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incrementing usage: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) SetStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`,
		id, customerID)
	if err != nil {
		return fmt.Errorf("setting stripe customer: %w", err)
	}
	return nil
}

func (r *postgresRepository) ActivateSubscription(ctx context.Context, id uuid.UUID, tier Tier, customerID, subscriptionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET tier = $2,
		     status = $3,
		     stripe_customer_id = $4,
		     stripe_subscription_id = $5,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, tier, StatusActive, customerID, subscriptionID)
	if err != nil {
		return fmt.Errorf("activating subscription: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpdateStatusBySubscription(ctx context.Context, subscriptionID string, status Status) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET status = $2, updated_at = NOW() WHERE stripe_subscription_id = $1`,
		subscriptionID, status)
	if err != nil {
		return fmt.Errorf("updating subscription status: %w", err)
	}
	return nil
}

func (r *postgresRepository) CancelSubscription(ctx context.Context, subscriptionID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET tier = $2,
		     status = $3,
		     stripe_subscription_id = NULL,
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $1`,
		subscriptionID, TierFree, StatusCancelled)
	if err != nil {
		return fmt.Errorf("cancelling subscription: %w", err)
	}
	return nil
}
