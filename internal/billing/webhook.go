package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/emailmind/emailmind/internal/domain"
)

// HandleWebhook verifies a Stripe webhook signature and applies the event
// to the local subscription mirror. Unknown event types are ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return fmt.Errorf("verify webhook signature: %w", err)
	}
	return s.ApplyEvent(ctx, event)
}

// ApplyEvent dispatches a verified Stripe event to its handler.
func (s *Service) ApplyEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription event: %w", err)
		}
		return s.subscriptionUpdated(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription event: %w", err)
		}
		return s.subscriptionDeleted(ctx, &sub)

	case "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice event: %w", err)
		}
		return s.paymentSucceeded(ctx, &inv)

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice event: %w", err)
		}
		return s.paymentFailed(ctx, &inv)

	default:
		log.Printf("[billing.Service] Ignoring webhook event type %s", event.Type)
		return nil
	}
}

func (s *Service) subscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	local, err := s.subs.GetByStripeID(ctx, sub.ID)
	if err != nil {
		// Subscriptions created outside the API (e.g. from the Stripe
		// dashboard) have no mirror; nothing to update.
		log.Printf("[billing.Service] Webhook for unknown subscription %s: %v", sub.ID, err)
		return nil
	}

	local.Status = domain.SubscriptionStatus(sub.Status)
	local.CurrentPeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	local.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	local.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.CanceledAt > 0 {
		t := time.Unix(sub.CanceledAt, 0).UTC()
		local.CanceledAt = &t
	} else {
		local.CanceledAt = nil
	}

	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		if tier, cycle := s.tierForPrice(sub.Items.Data[0].Price.ID); tier != "" {
			local.Tier = tier
			local.Cycle = cycle
			local.StripePriceID = sub.Items.Data[0].Price.ID
			local.AmountCents = AmountCents(tier, cycle)
		}
	}

	if err := s.subs.SyncFromStripe(ctx, local); err != nil {
		return err
	}
	if local.Status == domain.SubscriptionActive {
		if err := s.users.SetTier(ctx, local.UserID, local.Tier, &local.CurrentPeriodEnd); err != nil {
			return err
		}
	}
	log.Printf("[billing.Service] Synced subscription %s: status=%s tier=%s", sub.ID, local.Status, local.Tier)
	return nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	local, err := s.subs.GetByStripeID(ctx, sub.ID)
	if err != nil {
		log.Printf("[billing.Service] Webhook for unknown subscription %s: %v", sub.ID, err)
		return nil
	}
	if err := s.subs.MarkCanceled(ctx, sub.ID); err != nil {
		return err
	}
	if err := s.users.SetTier(ctx, local.UserID, domain.TierFreeTrial, nil); err != nil {
		return err
	}
	log.Printf("[billing.Service] Subscription %s canceled, user %s downgraded", sub.ID, local.UserID)
	return nil
}

func (s *Service) paymentSucceeded(ctx context.Context, inv *stripe.Invoice) error {
	if inv.Subscription == nil {
		return nil
	}
	local, err := s.subs.GetByStripeID(ctx, inv.Subscription.ID)
	if err != nil {
		log.Printf("[billing.Service] Payment for unknown subscription %s: %v", inv.Subscription.ID, err)
		return nil
	}

	local.Status = domain.SubscriptionActive
	if inv.PeriodStart > 0 {
		local.CurrentPeriodStart = time.Unix(inv.PeriodStart, 0).UTC()
	}
	if inv.PeriodEnd > 0 {
		local.CurrentPeriodEnd = time.Unix(inv.PeriodEnd, 0).UTC()
	}
	if err := s.subs.SyncFromStripe(ctx, local); err != nil {
		return err
	}
	// A fresh period resets the usage counters.
	if err := s.subs.ResetPeriodUsage(ctx, inv.Subscription.ID); err != nil {
		return err
	}
	if err := s.users.SetTier(ctx, local.UserID, local.Tier, &local.CurrentPeriodEnd); err != nil {
		return err
	}
	log.Printf("[billing.Service] Payment succeeded for subscription %s", inv.Subscription.ID)
	return nil
}

func (s *Service) paymentFailed(ctx context.Context, inv *stripe.Invoice) error {
	if inv.Subscription == nil {
		return nil
	}
	local, err := s.subs.GetByStripeID(ctx, inv.Subscription.ID)
	if err != nil {
		log.Printf("[billing.Service] Failed payment for unknown subscription %s: %v", inv.Subscription.ID, err)
		return nil
	}
	local.Status = domain.SubscriptionPastDue
	if err := s.subs.SyncFromStripe(ctx, local); err != nil {
		return err
	}
	log.Printf("[billing.Service] Payment failed for subscription %s, marked past_due", inv.Subscription.ID)
	return nil
}
