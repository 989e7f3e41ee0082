package rules

import "github.com/opensource-trust/kestrel/internal/domain"

// BuiltinRules returns the default invoice flag rules loaded when a tenant
// has no saved rule configs. Tenants override them via the rules API.
func BuiltinRules() []*domain.RuleConfig {
	zero := 0.0
	one := 1.0

	return []*domain.RuleConfig{
		{
			ID:          "builtin-high-amount",
			Name:        "High Invoice Amount",
			Description: "Flags invoice lines above 10000",
			Version:     "1.0.0",
			Expression:  "amount > 10000.0 ? 1.0 : 0.0",
			Bands: []domain.RuleBand{
				{LowerLimit: &zero, UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "Normal invoice amount"},
				{LowerLimit: &one, UpperLimit: nil, SubRuleRef: domain.RuleOutcomeFlag, Reason: "High invoice amount"},
			},
			Weight:  0.8,
			Enabled: true,
		},
		{
			ID:          "builtin-rush-delivery",
			Name:        "Rush Delivery",
			Description: "Flags large orders promised in under two days",
			Version:     "1.0.0",
			Expression:  "lead_time_days < 2.0 && quantity > 100.0 ? 1.0 : 0.0",
			Bands: []domain.RuleBand{
				{LowerLimit: &zero, UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "Plausible lead time"},
				{LowerLimit: &one, UpperLimit: nil, SubRuleRef: domain.RuleOutcomeFlag, Reason: "Large order with implausibly short lead time"},
			},
			Weight:  1.0,
			Enabled: true,
		},
		{
			ID:          "builtin-supplier-burst",
			Name:        "Supplier Velocity Burst",
			Description: "Flags suppliers submitting an unusual volume of records",
			Version:     "1.0.0",
			Expression:  "velocity_count > 50 ? 1.0 : 0.0",
			Bands: []domain.RuleBand{
				{LowerLimit: &zero, UpperLimit: &one, SubRuleRef: domain.RuleOutcomePass, Reason: "Normal supplier volume"},
				{LowerLimit: &one, UpperLimit: nil, SubRuleRef: domain.RuleOutcomeFlag, Reason: "Supplier volume burst"},
			},
			Weight:  0.6,
			Enabled: true,
		},
	}
}
