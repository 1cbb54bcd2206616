package analytics

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/swiftreader/swiftreader/internal/nats"
)

// Consumer listens on the usage event NATS subject and persists entries to
// the database.
type Consumer struct {
	repo        *Repository
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new usage event Consumer.
func NewConsumer(repo *Repository, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "usage-persister", inats.SubjectUsageEvent)
	if err != nil {
		return err
	}

	slog.Info("usage consumer started", "consumer", "usage-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("usage consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.UsageEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("usage consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	rec := &UsageRecord{
		ID:           uuid.New(),
		UserID:       event.UserID,
		Tier:         event.Tier,
		Beta:         event.Beta,
		SectionTitle: event.SectionTitle,
		Model:        event.Model,
		InputTokens:  event.InputTokens,
		OutputTokens: event.OutputTokens,
		Degraded:     event.Degraded,
		CreatedAt:    event.Timestamp,
	}

	if err := c.repo.Insert(ctx, rec); err != nil {
		slog.Error("usage consumer: persisting usage record", "error", err, "user_id", event.UserID)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("usage consumer: persisted event", "user_id", event.UserID, "tier", event.Tier)
}
