package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds analytics events.
const StreamEvents = "SWIFTREADER_EVENTS"

// SubjectUsageEvent carries one event per delivered summary.
const SubjectUsageEvent = "swiftreader.events.usage"

// UsageEvent is published after a summary has been delivered and charged.
// Beta marks requests that bypassed the quota gates; Degraded marks replies
// the parser could not fully structure.
type UsageEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	Tier         string    `json:"tier"`
	Beta         bool      `json:"beta"`
	SectionTitle string    `json:"section_title,omitempty"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Degraded     bool      `json:"degraded"`
	Timestamp    time.Time `json:"timestamp"`
}
