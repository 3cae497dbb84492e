package domain

import "time"

// SubscriptionTier enumerates the plan levels that gate usage limits.
type SubscriptionTier string

const (
	TierFreeTrial    SubscriptionTier = "free_trial"
	TierStarter      SubscriptionTier = "starter"
	TierProfessional SubscriptionTier = "professional"
	TierEnterprise   SubscriptionTier = "enterprise"
)

// Valid reports whether the tier is one of the known plan levels.
func (t SubscriptionTier) Valid() bool {
	switch t {
	case TierFreeTrial, TierStarter, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// TierLimits holds the per-tier usage quotas. -1 means unlimited.
type TierLimits struct {
	EmailsPerMonth int `json:"emails_per_month"`
	APICalls       int `json:"api_calls"`
	AIInsights     int `json:"ai_insights"`
}

// Limits returns the usage quotas for the tier. Unknown tiers fall back to
// the free trial quotas.
func (t SubscriptionTier) Limits() TierLimits {
	switch t {
	case TierStarter:
		return TierLimits{EmailsPerMonth: 10000, APICalls: 1000, AIInsights: 5}
	case TierProfessional:
		return TierLimits{EmailsPerMonth: 100000, APICalls: 10000, AIInsights: 50}
	case TierEnterprise:
		return TierLimits{EmailsPerMonth: -1, APICalls: -1, AIInsights: -1}
	default:
		return TierLimits{EmailsPerMonth: 1000, APICalls: 100, AIInsights: 2}
	}
}

// User is an EmailMind account holder.
type User struct {
	ID             string           `json:"id" db:"id"`
	Email          string           `json:"email" db:"email"`
	HashedPassword string           `json:"-" db:"hashed_password"`
	FullName       string           `json:"full_name" db:"full_name"`
	IsActive       bool             `json:"is_active" db:"is_active"`
	IsVerified     bool             `json:"is_verified" db:"is_verified"`
	Tier           SubscriptionTier `json:"subscription_tier" db:"subscription_tier"`

	StripeCustomerID    string     `json:"-" db:"stripe_customer_id"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date" db:"subscription_end_date"`

	// Usage counters. EmailsProcessed is lifetime; APICallsThisMonth resets
	// on the first of each month.
	EmailsProcessed   int `json:"emails_processed" db:"emails_processed"`
	APICallsThisMonth int `json:"api_calls_this_month" db:"api_calls_this_month"`

	LastEmailSync *time.Time `json:"last_email_sync" db:"last_email_sync"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}
