package billing

import "github.com/emailmind/emailmind/internal/domain"

// Plan describes one purchasable subscription tier.
type Plan struct {
	ID           domain.SubscriptionTier `json:"id"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	PriceMonthly float64                 `json:"price_monthly"`
	PriceYearly  float64                 `json:"price_yearly"`
	Features     []string                `json:"features"`
	Limits       domain.TierLimits       `json:"limits"`
}

// Plans is the purchasable plan catalog. The free trial is not listed;
// every new account starts there.
func Plans() []Plan {
	return []Plan{
		{
			ID:           domain.TierStarter,
			Name:         "Starter",
			Description:  "Perfect for individuals getting started with email analytics",
			PriceMonthly: 9.00,
			PriceYearly:  90.00,
			Features: []string{
				"10,000 emails per month",
				"Basic analytics",
				"Email categorization",
				"Sentiment analysis",
				"Email support",
			},
			Limits: domain.TierStarter.Limits(),
		},
		{
			ID:           domain.TierProfessional,
			Name:         "Professional",
			Description:  "For professionals who need advanced insights and automation",
			PriceMonthly: 29.00,
			PriceYearly:  290.00,
			Features: []string{
				"100,000 emails per month",
				"Advanced AI insights",
				"Importance scoring",
				"Smart unsubscribe recommendations",
				"Executive summaries",
				"Priority support",
			},
			Limits: domain.TierProfessional.Limits(),
		},
		{
			ID:           domain.TierEnterprise,
			Name:         "Enterprise",
			Description:  "For teams and organizations with unlimited needs",
			PriceMonthly: 99.00,
			PriceYearly:  990.00,
			Features: []string{
				"Unlimited emails",
				"All Professional features",
				"Custom AI models",
				"Dedicated account manager",
				"SLA guarantee",
			},
			Limits: domain.TierEnterprise.Limits(),
		},
	}
}

// PlanFor returns the catalog entry for a tier, or nil for free trial and
// unknown tiers.
func PlanFor(tier domain.SubscriptionTier) *Plan {
	for _, p := range Plans() {
		if p.ID == tier {
			return &p
		}
	}
	return nil
}

// AmountCents returns the recurring charge for a tier and cycle.
func AmountCents(tier domain.SubscriptionTier, cycle domain.BillingCycle) int64 {
	p := PlanFor(tier)
	if p == nil {
		return 0
	}
	if cycle == domain.BillingYearly {
		return int64(p.PriceYearly * 100)
	}
	return int64(p.PriceMonthly * 100)
}
