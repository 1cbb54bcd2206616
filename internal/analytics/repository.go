package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles usage_events PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new analytics Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a single usage record.
func (r *Repository) Insert(ctx context.Context, rec *UsageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO usage_events (id, user_id, tier, beta, section_title, model, input_tokens, output_tokens, degraded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.UserID, rec.Tier, rec.Beta, rec.SectionTitle, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.Degraded, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// ListByUser returns paginated usage records for a user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, params ListParams) ([]UsageRecord, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	conditions := []string{"user_id = $1"}
	args := []any{userID}
	argIdx := 2

	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int64
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM usage_events WHERE %s`, where), args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting usage records: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	query := fmt.Sprintf(
		`SELECT id, user_id, tier, beta, section_title, model, input_tokens, output_tokens, degraded, created_at
		 FROM usage_events
		 WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing usage records: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var rec UsageRecord
		err := rows.Scan(&rec.ID, &rec.UserID, &rec.Tier, &rec.Beta, &rec.SectionTitle,
			&rec.Model, &rec.InputTokens, &rec.OutputTokens, &rec.Degraded, &rec.CreatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning usage record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating usage records: %w", err)
	}

	return records, total, nil
}
