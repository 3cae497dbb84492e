package domain

import "time"

// SubscriptionStatus mirrors the Stripe subscription lifecycle states we
// track locally.
type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

// BillingCycle is how often a subscription renews.
type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingYearly  BillingCycle = "yearly"
)

// Subscription is the local record of a user's Stripe subscription.
type Subscription struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	StripeSubscriptionID string `json:"-" db:"stripe_subscription_id"`
	StripeCustomerID     string `json:"-" db:"stripe_customer_id"`
	StripePriceID        string `json:"-" db:"stripe_price_id"`

	Status SubscriptionStatus `json:"status" db:"status"`
	Tier   SubscriptionTier   `json:"tier" db:"tier"`

	// AmountCents is the recurring charge in cents.
	AmountCents int64        `json:"amount_cents" db:"amount_cents"`
	Currency    string       `json:"currency" db:"currency"`
	Cycle       BillingCycle `json:"billing_cycle" db:"billing_cycle"`

	CurrentPeriodStart time.Time  `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd   time.Time  `json:"current_period_end" db:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty" db:"canceled_at"`

	EmailsThisPeriod   int `json:"emails_processed_this_period" db:"emails_this_period"`
	APICallsThisPeriod int `json:"api_calls_this_period" db:"api_calls_this_period"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Invoice is a simplified view of a Stripe invoice for billing history.
type Invoice struct {
	ID          string     `json:"id"`
	AmountPaid  float64    `json:"amount_paid"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	Created     time.Time  `json:"created"`
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`
	InvoicePDF  string     `json:"invoice_pdf,omitempty"`
}

// PaymentMethod is a simplified view of a stored card.
type PaymentMethod struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// BillingAddress is the customer's billing address as sent to Stripe.
type BillingAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}
