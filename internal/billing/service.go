// Package billing integrates Stripe subscriptions: the plan catalog,
// checkout, plan changes, cancellation, payment methods, billing history,
// and the webhook that keeps the local mirror in sync.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/invoice"
	"github.com/stripe/stripe-go/v76/paymentmethod"
	"github.com/stripe/stripe-go/v76/subscription"

	"github.com/emailmind/emailmind/internal/domain"
)

// Service implements subscription billing on top of Stripe.
type Service struct {
	users         UserStore
	subs          SubscriptionStore
	priceIDs      map[string]string // "<tier>_<cycle>" -> Stripe price ID
	webhookSecret string
}

// NewService creates a billing service. apiKey configures the global
// Stripe client; priceIDs maps "<tier>_<cycle>" keys to Stripe prices.
func NewService(apiKey, webhookSecret string, priceIDs map[string]string, users UserStore, subs SubscriptionStore) *Service {
	stripe.Key = apiKey
	return &Service{
		users:         users,
		subs:          subs,
		priceIDs:      priceIDs,
		webhookSecret: webhookSecret,
	}
}

func priceKey(tier domain.SubscriptionTier, cycle domain.BillingCycle) string {
	return fmt.Sprintf("%s_%s", tier, cycle)
}

func (s *Service) priceID(tier domain.SubscriptionTier, cycle domain.BillingCycle) (string, error) {
	if PlanFor(tier) == nil {
		return "", ErrUnknownPlan
	}
	if cycle != domain.BillingMonthly && cycle != domain.BillingYearly {
		return "", ErrUnknownPlan
	}
	id, ok := s.priceIDs[priceKey(tier, cycle)]
	if !ok || id == "" {
		return "", ErrNoPriceID
	}
	return id, nil
}

// tierForPrice is the reverse lookup used when mirroring webhook state.
func (s *Service) tierForPrice(priceID string) (domain.SubscriptionTier, domain.BillingCycle) {
	for key, id := range s.priceIDs {
		if id != priceID {
			continue
		}
		for _, tier := range []domain.SubscriptionTier{domain.TierStarter, domain.TierProfessional, domain.TierEnterprise} {
			if key == priceKey(tier, domain.BillingMonthly) {
				return tier, domain.BillingMonthly
			}
			if key == priceKey(tier, domain.BillingYearly) {
				return tier, domain.BillingYearly
			}
		}
	}
	return "", ""
}

// ensureCustomer returns the user's Stripe customer ID, creating the
// customer on first use.
func (s *Service) ensureCustomer(ctx context.Context, user *domain.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.FullName),
	}
	params.AddMetadata("user_id", user.ID)
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	if err := s.users.SetStripeCustomer(ctx, user.ID, c.ID); err != nil {
		return "", err
	}
	user.StripeCustomerID = c.ID
	return c.ID, nil
}

// CheckoutResult is what the frontend needs to confirm payment.
type CheckoutResult struct {
	SubscriptionID string `json:"subscription_id"`
	ClientSecret   string `json:"client_secret"`
	Status         string `json:"status"`
}

// Subscribe creates a Stripe subscription in default_incomplete mode and
// mirrors it locally. The returned client secret finishes payment on the
// frontend.
func (s *Service) Subscribe(ctx context.Context, userID string, tier domain.SubscriptionTier, cycle domain.BillingCycle, paymentMethodID string) (*CheckoutResult, error) {
	price, err := s.priceID(tier, cycle)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	if paymentMethodID != "" {
		if _, err := paymentmethod.Attach(paymentMethodID, &stripe.PaymentMethodAttachParams{
			Customer: stripe.String(customerID),
		}); err != nil {
			return nil, fmt.Errorf("attach payment method: %w", err)
		}
		if _, err := customer.Update(customerID, &stripe.CustomerParams{
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(paymentMethodID),
			},
		}); err != nil {
			return nil, fmt.Errorf("set default payment method: %w", err)
		}
	}

	params := &stripe.SubscriptionParams{
		Customer:        stripe.String(customerID),
		Items:           []*stripe.SubscriptionItemsParams{{Price: stripe.String(price)}},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.AddMetadata("user_id", userID)
	params.AddMetadata("tier", string(tier))
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := subscription.New(params)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	local := &domain.Subscription{
		UserID:               userID,
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     customerID,
		StripePriceID:        price,
		Status:               domain.SubscriptionIncomplete,
		Tier:                 tier,
		AmountCents:          AmountCents(tier, cycle),
		Currency:             "usd",
		Cycle:                cycle,
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
	if err := s.subs.Create(ctx, local); err != nil {
		return nil, err
	}

	result := &CheckoutResult{SubscriptionID: sub.ID, Status: string(sub.Status)}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		result.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	return result, nil
}

// ChangePlan moves an active subscription to a different tier or cycle,
// prorating immediately with remaining time.
func (s *Service) ChangePlan(ctx context.Context, userID string, tier domain.SubscriptionTier, cycle domain.BillingCycle) (*domain.Subscription, error) {
	price, err := s.priceID(tier, cycle)
	if err != nil {
		return nil, err
	}

	local, err := s.subs.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}

	current, err := subscription.Get(local.StripeSubscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	if len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("subscription %s has no items", local.StripeSubscriptionID)
	}

	updated, err := subscription.Update(local.StripeSubscriptionID, &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(current.Items.Data[0].ID),
			Price: stripe.String(price),
		}},
		ProrationBehavior: stripe.String("immediate_with_remaining_time"),
	})
	if err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	local.Tier = tier
	local.Cycle = cycle
	local.StripePriceID = price
	local.AmountCents = AmountCents(tier, cycle)
	local.Status = domain.SubscriptionStatus(updated.Status)
	local.CurrentPeriodStart = time.Unix(updated.CurrentPeriodStart, 0).UTC()
	local.CurrentPeriodEnd = time.Unix(updated.CurrentPeriodEnd, 0).UTC()
	if err := s.subs.SyncFromStripe(ctx, local); err != nil {
		return nil, err
	}
	if err := s.users.SetTier(ctx, userID, tier, &local.CurrentPeriodEnd); err != nil {
		return nil, err
	}
	return local, nil
}

// Cancel schedules cancellation at period end so the user keeps access
// until the cycle they paid for runs out.
func (s *Service) Cancel(ctx context.Context, userID string) (*domain.Subscription, error) {
	local, err := s.subs.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := subscription.Update(local.StripeSubscriptionID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}); err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}
	if err := s.subs.SetCancelAtPeriodEnd(ctx, local.StripeSubscriptionID, true); err != nil {
		return nil, err
	}
	local.CancelAtPeriodEnd = true
	return local, nil
}

// Reactivate undoes a pending cancellation.
func (s *Service) Reactivate(ctx context.Context, userID string) (*domain.Subscription, error) {
	local, err := s.subs.GetCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := subscription.Update(local.StripeSubscriptionID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}); err != nil {
		return nil, fmt.Errorf("reactivate subscription: %w", err)
	}
	if err := s.subs.SetCancelAtPeriodEnd(ctx, local.StripeSubscriptionID, false); err != nil {
		return nil, err
	}
	local.CancelAtPeriodEnd = false
	local.CanceledAt = nil
	return local, nil
}

// Current returns the user's subscription mirror.
func (s *Service) Current(ctx context.Context, userID string) (*domain.Subscription, error) {
	return s.subs.GetCurrent(ctx, userID)
}

// PaymentMethods lists the user's stored cards.
func (s *Service) PaymentMethods(ctx context.Context, userID string) ([]domain.PaymentMethod, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == "" {
		return nil, nil
	}

	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(user.StripeCustomerID),
		Type:     stripe.String("card"),
	}
	var out []domain.PaymentMethod
	iter := paymentmethod.List(params)
	for iter.Next() {
		pm := iter.PaymentMethod()
		if pm.Card == nil {
			continue
		}
		out = append(out, domain.PaymentMethod{
			ID:       pm.ID,
			Brand:    string(pm.Card.Brand),
			Last4:    pm.Card.Last4,
			ExpMonth: pm.Card.ExpMonth,
			ExpYear:  pm.Card.ExpYear,
		})
	}
	return out, iter.Err()
}

// AddPaymentMethod attaches a card to the user's customer.
func (s *Service) AddPaymentMethod(ctx context.Context, userID, paymentMethodID string, setDefault bool) (*domain.PaymentMethod, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	pm, err := paymentmethod.Attach(paymentMethodID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	})
	if err != nil {
		return nil, fmt.Errorf("attach payment method: %w", err)
	}
	if setDefault {
		if _, err := customer.Update(customerID, &stripe.CustomerParams{
			InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
				DefaultPaymentMethod: stripe.String(paymentMethodID),
			},
		}); err != nil {
			return nil, fmt.Errorf("set default payment method: %w", err)
		}
	}

	out := &domain.PaymentMethod{ID: pm.ID}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.Last4 = pm.Card.Last4
		out.ExpMonth = pm.Card.ExpMonth
		out.ExpYear = pm.Card.ExpYear
	}
	return out, nil
}

// RemovePaymentMethod detaches a card.
func (s *Service) RemovePaymentMethod(ctx context.Context, paymentMethodID string) error {
	if _, err := paymentmethod.Detach(paymentMethodID, nil); err != nil {
		return fmt.Errorf("detach payment method: %w", err)
	}
	return nil
}

// BillingHistory lists the user's recent invoices.
func (s *Service) BillingHistory(ctx context.Context, userID string, limit int) ([]domain.Invoice, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == "" {
		return nil, nil
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	params := &stripe.InvoiceListParams{Customer: stripe.String(user.StripeCustomerID)}
	params.Limit = stripe.Int64(int64(limit))

	var out []domain.Invoice
	iter := invoice.List(params)
	for iter.Next() {
		inv := iter.Invoice()
		rec := domain.Invoice{
			ID:         inv.ID,
			AmountPaid: float64(inv.AmountPaid) / 100,
			Currency:   string(inv.Currency),
			Status:     string(inv.Status),
			Created:    time.Unix(inv.Created, 0).UTC(),
			InvoicePDF: inv.InvoicePDF,
		}
		if inv.PeriodStart > 0 {
			t := time.Unix(inv.PeriodStart, 0).UTC()
			rec.PeriodStart = &t
		}
		if inv.PeriodEnd > 0 {
			t := time.Unix(inv.PeriodEnd, 0).UTC()
			rec.PeriodEnd = &t
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Usage reports the user's consumption against their tier limits. Limits
// of -1 mean unlimited.
type Usage struct {
	Tier              domain.SubscriptionTier `json:"tier"`
	EmailsProcessed   int                     `json:"emails_processed"`
	EmailsLimit       int                     `json:"emails_limit"`
	APICallsThisMonth int                     `json:"api_calls_this_month"`
	APICallsLimit     int                     `json:"api_calls_limit"`

	// Per-billing-period counters, present only with an active subscription.
	PeriodStart        *time.Time `json:"period_start,omitempty"`
	PeriodEnd          *time.Time `json:"period_end,omitempty"`
	EmailsThisPeriod   int        `json:"emails_this_period"`
	APICallsThisPeriod int        `json:"api_calls_this_period"`
}

// Usage returns the user's current consumption and limits. Users without a
// paid subscription get their tier limits with no period counters.
func (s *Service) Usage(ctx context.Context, userID string) (*Usage, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	limits := user.Tier.Limits()
	u := &Usage{
		Tier:              user.Tier,
		EmailsProcessed:   user.EmailsProcessed,
		EmailsLimit:       limits.EmailsPerMonth,
		APICallsThisMonth: user.APICallsThisMonth,
		APICallsLimit:     limits.APICalls,
	}

	sub, err := s.subs.GetCurrent(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoSubscription) {
			return u, nil
		}
		return nil, err
	}
	u.PeriodStart = &sub.CurrentPeriodStart
	u.PeriodEnd = &sub.CurrentPeriodEnd
	u.EmailsThisPeriod = sub.EmailsThisPeriod
	u.APICallsThisPeriod = sub.APICallsThisPeriod
	return u, nil
}

// UpdateBillingAddress sets the customer's billing address on Stripe.
func (s *Service) UpdateBillingAddress(ctx context.Context, userID string, addr domain.BillingAddress) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return err
	}
	_, err = customer.Update(customerID, &stripe.CustomerParams{
		Address: &stripe.AddressParams{
			Line1:      stripe.String(addr.Line1),
			Line2:      stripe.String(addr.Line2),
			City:       stripe.String(addr.City),
			State:      stripe.String(addr.State),
			PostalCode: stripe.String(addr.PostalCode),
			Country:    stripe.String(addr.Country),
		},
	})
	if err != nil {
		return fmt.Errorf("update billing address: %w", err)
	}
	return nil
}
