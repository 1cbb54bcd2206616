package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"

	"github.com/swiftreader/swiftreader/internal/config"
	"github.com/swiftreader/swiftreader/internal/users"
)

// ErrStudentEmailRequired denies the student plan to non-university emails.
var ErrStudentEmailRequired = fmt.Errorf("student plan requires a .edu email address")

// Service creates checkout sessions and applies webhook events to accounts.
type Service struct {
	repo users.Repository
	cfg  config.StripeConfig
}

func NewService(repo users.Repository, cfg config.StripeConfig) *Service {
	stripe.Key = cfg.SecretKey
	return &Service{repo: repo, cfg: cfg}
}

// Enabled reports whether billing is configured at all.
func (s *Service) Enabled() bool {
	return s.cfg.SecretKey != ""
}

// CreateCheckout starts a Stripe Checkout session upgrading the account to
// tier. The student plan is gated to .edu addresses, same as the discount it
// carries.
func (s *Service) CreateCheckout(ctx context.Context, account *users.Account, tier users.Tier, successURL, cancelURL string) (string, error) {
	var priceID string
	switch tier {
	case users.TierPro:
		priceID = s.cfg.ProPriceID
	case users.TierStudent:
		if !strings.HasSuffix(strings.ToLower(account.Email), ".edu") {
			return "", ErrStudentEmailRequired
		}
		priceID = s.cfg.StudentPriceID
	default:
		return "", fmt.Errorf("tier %q is not purchasable", tier)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail: stripe.String(account.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.AddMetadata("user_id", account.ID.String())
	params.AddMetadata("tier", string(tier))

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("creating checkout session: %w", err)
	}
	return sess.URL, nil
}

// HandleEvent applies one verified webhook event to the account store.
// Unhandled event types are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		slog.Debug("ignoring stripe event", "type", event.Type)
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("decoding checkout session: %w", err)
	}

	userID, err := uuid.Parse(sess.Metadata["user_id"])
	if err != nil {
		return fmt.Errorf("checkout session %s has no valid user_id metadata", sess.ID)
	}
	tier := users.Tier(sess.Metadata["tier"])
	if tier != users.TierPro && tier != users.TierStudent {
		return fmt.Errorf("checkout session %s has unknown tier %q", sess.ID, tier)
	}

	var customerID, subscriptionID string
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}

	if err := s.repo.ActivateSubscription(ctx, userID, tier, customerID, subscriptionID); err != nil {
		return fmt.Errorf("activating subscription: %w", err)
	}
	slog.Info("subscription activated", "user_id", userID, "tier", tier)
	return nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("decoding subscription: %w", err)
	}

	status := mapSubscriptionStatus(sub.Status)
	if err := s.repo.UpdateStatusBySubscription(ctx, sub.ID, status); err != nil {
		return fmt.Errorf("updating subscription status: %w", err)
	}
	slog.Info("subscription status updated", "subscription_id", sub.ID, "status", status)
	return nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("decoding subscription: %w", err)
	}

	if err := s.repo.CancelSubscription(ctx, sub.ID); err != nil {
		return fmt.Errorf("cancelling subscription: %w", err)
	}
	slog.Info("subscription cancelled, account downgraded", "subscription_id", sub.ID)
	return nil
}

// mapSubscriptionStatus folds Stripe's subscription states into the three the
// quota gate knows about. Anything unpaid-shaped becomes past_due.
func mapSubscriptionStatus(status stripe.SubscriptionStatus) users.Status {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return users.StatusActive
	case stripe.SubscriptionStatusCanceled:
		return users.StatusCancelled
	default:
		return users.StatusPastDue
	}
}
