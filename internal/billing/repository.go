package billing

import (
	"context"
	"errors"
	"time"

	"github.com/emailmind/emailmind/internal/domain"
)

// Sentinel errors for the billing service layer.
var (
	ErrNoSubscription = errors.New("no active subscription")
	ErrUnknownPlan    = errors.New("unknown plan or billing cycle")
	ErrNoPriceID      = errors.New("no Stripe price configured for plan")
)

// SubscriptionStore defines the local subscription mirror.
// Implementations must be safe for concurrent use.
type SubscriptionStore interface {
	// GetCurrent returns the user's most recent non-canceled subscription.
	// Returns ErrNoSubscription if there is none.
	GetCurrent(ctx context.Context, userID string) (*domain.Subscription, error)

	// GetByStripeID looks a subscription up by its Stripe ID.
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (*domain.Subscription, error)

	Create(ctx context.Context, s *domain.Subscription) error

	// SyncFromStripe refreshes the mirrored Stripe state.
	SyncFromStripe(ctx context.Context, s *domain.Subscription) error

	SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, cancel bool) error
	MarkCanceled(ctx context.Context, stripeSubscriptionID string) error

	// ResetPeriodUsage zeroes usage counters at the start of a new billing
	// period.
	ResetPeriodUsage(ctx context.Context, stripeSubscriptionID string) error
}

// UserStore is the slice of user persistence billing needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByStripeCustomer(ctx context.Context, customerID string) (*domain.User, error)
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	SetTier(ctx context.Context, userID string, tier domain.SubscriptionTier, endDate *time.Time) error
}
