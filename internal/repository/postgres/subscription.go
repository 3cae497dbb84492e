package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emailmind/emailmind/internal/billing"
	"github.com/emailmind/emailmind/internal/domain"
)

// SubscriptionRepo implements billing.SubscriptionStore against PostgreSQL.
type SubscriptionRepo struct{ db *sql.DB }

// NewSubscriptionRepo creates a Postgres-backed subscription repository.
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

const subscriptionColumns = `id, user_id, stripe_subscription_id, stripe_customer_id, stripe_price_id,
	status, tier, amount_cents, COALESCE(currency,'usd'), billing_cycle,
	current_period_start, current_period_end, cancel_at_period_end, canceled_at,
	emails_this_period, api_calls_this_period, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (*domain.Subscription, error) {
	s := &domain.Subscription{}
	err := row.Scan(
		&s.ID, &s.UserID, &s.StripeSubscriptionID, &s.StripeCustomerID, &s.StripePriceID,
		&s.Status, &s.Tier, &s.AmountCents, &s.Currency, &s.Cycle,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CanceledAt,
		&s.EmailsThisPeriod, &s.APICallsThisPeriod, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, billing.ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return s, nil
}

// GetCurrent returns the user's most recent non-canceled subscription.
func (r *SubscriptionRepo) GetCurrent(ctx context.Context, userID string) (*domain.Subscription, error) {
	return scanSubscription(r.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status <> 'canceled'
		ORDER BY created_at DESC
		LIMIT 1
	`, userID))
}

func (r *SubscriptionRepo) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error) {
	return scanSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = $1`,
		stripeSubscriptionID))
}

func (r *SubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, stripe_subscription_id, stripe_customer_id, stripe_price_id,
			status, tier, amount_cents, currency, billing_cycle,
			current_period_start, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`, s.ID, s.UserID, s.StripeSubscriptionID, s.StripeCustomerID, s.StripePriceID,
		s.Status, s.Tier, s.AmountCents, s.Currency, s.Cycle,
		s.CurrentPeriodStart, s.CurrentPeriodEnd)
	if err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// SyncFromStripe refreshes the locally mirrored Stripe state after a
// webhook or an API-initiated change.
func (r *SubscriptionRepo) SyncFromStripe(ctx context.Context, s *domain.Subscription) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, tier = $2, stripe_price_id = $3, amount_cents = $4, billing_cycle = $5,
			current_period_start = $6, current_period_end = $7,
			cancel_at_period_end = $8, canceled_at = $9, updated_at = NOW()
		WHERE stripe_subscription_id = $10
	`, s.Status, s.Tier, s.StripePriceID, s.AmountCents, s.Cycle,
		s.CurrentPeriodStart, s.CurrentPeriodEnd,
		s.CancelAtPeriodEnd, s.CanceledAt, s.StripeSubscriptionID)
	if err != nil {
		return fmt.Errorf("sync subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return billing.ErrNoSubscription
	}
	return nil
}

func (r *SubscriptionRepo) SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, cancel bool) error {
	var canceledAt any
	if cancel {
		canceledAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET cancel_at_period_end = $1, canceled_at = $2, updated_at = NOW()
		WHERE stripe_subscription_id = $3
	`, cancel, canceledAt, stripeSubscriptionID)
	if err != nil {
		return fmt.Errorf("set cancel at period end: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return billing.ErrNoSubscription
	}
	return nil
}

func (r *SubscriptionRepo) MarkCanceled(ctx context.Context, stripeSubscriptionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'canceled', canceled_at = NOW(), updated_at = NOW()
		WHERE stripe_subscription_id = $1
	`, stripeSubscriptionID)
	if err != nil {
		return fmt.Errorf("mark canceled: %w", err)
	}
	return nil
}

// ResetPeriodUsage zeroes the usage counters at the start of a new billing
// period, driven by invoice.payment_succeeded.
func (r *SubscriptionRepo) ResetPeriodUsage(ctx context.Context, stripeSubscriptionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET emails_this_period = 0, api_calls_this_period = 0, updated_at = NOW()
		WHERE stripe_subscription_id = $1
	`, stripeSubscriptionID)
	if err != nil {
		return fmt.Errorf("reset period usage: %w", err)
	}
	return nil
}

func (r *SubscriptionRepo) AddPeriodUsage(ctx context.Context, userID string, emails, apiCalls int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET emails_this_period = emails_this_period + $1,
			api_calls_this_period = api_calls_this_period + $2,
			updated_at = NOW()
		WHERE user_id = $3 AND status <> 'canceled'
	`, emails, apiCalls, userID)
	if err != nil {
		return fmt.Errorf("add period usage: %w", err)
	}
	return nil
}
