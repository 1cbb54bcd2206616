package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/swiftreader/swiftreader/internal/metrics"
	"github.com/swiftreader/swiftreader/internal/nats"
	"github.com/swiftreader/swiftreader/internal/quota"
	"github.com/swiftreader/swiftreader/internal/sanitize"
	"github.com/swiftreader/swiftreader/internal/users"
)

// Summarizer is the upstream completion dependency of the pipeline.
type Summarizer interface {
	Summarize(ctx context.Context, sectionTitle, content string) (*Reply, error)
}

// Service runs the summary pipeline: quota gate, sanitization, upstream
// call, usage charge, usage event.
type Service struct {
	engine    *quota.Engine
	client    Summarizer
	publisher *nats.Publisher
}

// NewService wires the pipeline. publisher may be nil when the event bus is
// not configured; usage events are then skipped.
func NewService(engine *quota.Engine, client Summarizer, publisher *nats.Publisher) *Service {
	return &Service{engine: engine, client: client, publisher: publisher}
}

// Summarize runs the full pipeline for an authenticated account. The quota
// check runs before any content work so denied callers cost nothing; the
// charge lands only after a summary has actually been produced.
func (s *Service) Summarize(ctx context.Context, account *users.Account, req Request) (*Result, error) {
	decision, err := s.engine.Check(ctx, account)
	if err != nil {
		if errors.Is(err, quota.ErrPaymentRequired) {
			metrics.QuotaDenialsTotal.WithLabelValues("payment").Inc()
		}
		var limitErr *quota.LimitReachedError
		if errors.As(err, &limitErr) {
			metrics.QuotaDenialsTotal.WithLabelValues("limit").Inc()
		}
		return nil, err
	}

	content, err := sanitize.Clean(req.Content)
	if err != nil {
		return nil, err
	}

	reply, err := s.client.Summarize(ctx, req.SectionTitle, content)
	if err != nil {
		return nil, err
	}

	used, err := s.engine.Commit(ctx, account.ID)
	if err != nil {
		// The summary was produced but could not be charged. Fail the
		// request rather than hand out unaccounted usage, and keep the
		// context for investigation.
		slog.Error("recording summary usage",
			"error", err,
			"user_id", account.ID,
			"model", reply.Model,
			"output_tokens", reply.OutputTokens,
		)
		return nil, fmt.Errorf("recording usage: %w", err)
	}

	metrics.SummariesGeneratedTotal.WithLabelValues(decision.Tier).Inc()
	s.publishUsage(ctx, account, decision, req.SectionTitle, reply)

	return &Result{
		Summary: reply.Summary,
		Usage: UsageEnvelope{
			Used:     used,
			Limit:    decision.Limit,
			Tier:     decision.Tier,
			BetaMode: decision.Beta,
		},
		Degraded: reply.Degraded,
	}, nil
}

// Usage reports the current quota envelope without running the gate.
func (s *Service) Usage(account *users.Account) UsageEnvelope {
	d := s.engine.Usage(account)
	return UsageEnvelope{Used: d.Used, Limit: d.Limit, Tier: d.Tier, BetaMode: d.Beta}
}

// publishUsage emits the analytics event, best effort. A summary already
// delivered is never failed over analytics.
func (s *Service) publishUsage(ctx context.Context, account *users.Account, decision *quota.Decision, sectionTitle string, reply *Reply) {
	if s.publisher == nil {
		return
	}

	event := nats.UsageEvent{
		UserID:       account.ID,
		Tier:         decision.Tier,
		Beta:         decision.Beta,
		SectionTitle: sectionTitle,
		Model:        reply.Model,
		InputTokens:  reply.InputTokens,
		OutputTokens: reply.OutputTokens,
		Degraded:     reply.Degraded,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.publisher.PublishUsage(ctx, event); err != nil {
		slog.Warn("publishing usage event", "error", err, "user_id", account.ID)
	}
}
