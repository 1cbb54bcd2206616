package analytics

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord matches the usage_events table schema: one row per delivered
// summary, written by the NATS consumer.
type UsageRecord struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Tier         string    `json:"tier"`
	Beta         bool      `json:"beta"`
	SectionTitle string    `json:"section_title,omitempty"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Degraded     bool      `json:"degraded"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListParams holds pagination and time-range filters for usage queries.
type ListParams struct {
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
