package catalog

// EventCategory classifies market events.
type EventCategory string

const (
	EventTechnology    EventCategory = "Technology"
	EventRegulatory    EventCategory = "Regulatory"
	EventEconomic      EventCategory = "Economic"
	EventEnvironmental EventCategory = "Environmental"
	EventMarket        EventCategory = "Market"
)

// Valid reports whether c is a known event category.
func (c EventCategory) Valid() bool {
	switch c {
	case EventTechnology, EventRegulatory, EventEconomic, EventEnvironmental, EventMarket:
		return true
	}
	return false
}

// EventEffects are percentage changes; nil means the target is untouched.
type EventEffects struct {
	AbatementCosts     *float64 `yaml:"abatement_costs,omitempty" json:"abatementCosts,omitempty"`
	AllowancePrices    *float64 `yaml:"allowance_prices,omitempty" json:"allowancePrices,omitempty"`
	OffsetAvailability *float64 `yaml:"offset_availability,omitempty" json:"offsetAvailability,omitempty"`
	EmissionsCap       *float64 `yaml:"emissions_cap,omitempty" json:"emissionsCap,omitempty"`
	CompanyBudgets     *float64 `yaml:"company_budgets,omitempty" json:"companyBudgets,omitempty"`
	PenaltyRate        *float64 `yaml:"penalty_rate,omitempty" json:"penaltyRate,omitempty"`
}

// TriggerConditions restrict when an event may fire.
type TriggerConditions struct {
	MinRound          *int     `yaml:"min_round,omitempty" json:"minRound,omitempty"`
	MaxRound          *int     `yaml:"max_round,omitempty" json:"maxRound,omitempty"`
	ComplianceRate    *float64 `yaml:"compliance_rate,omitempty" json:"complianceRate,omitempty"`       // fires only at or below this rate
	AvgAllowancePrice *float64 `yaml:"avg_allowance_price,omitempty" json:"avgAllowancePrice,omitempty"` // fires only at or above this price
}

// MarketEvent is a declarative market shock.
type MarketEvent struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description" json:"description"`
	Impact      string             `yaml:"impact" json:"impact"`
	ImpactValue float64            `yaml:"impact_value" json:"impactValue"`
	Category    EventCategory      `yaml:"category" json:"category"`
	Effects     EventEffects       `yaml:"effects" json:"effects"`
	Duration    int                `yaml:"duration" json:"duration"`       // rounds
	Probability float64            `yaml:"probability" json:"probability"` // 0-100
	Triggers    *TriggerConditions `yaml:"trigger_conditions,omitempty" json:"triggerConditions,omitempty"`
}

// EventsByCategory returns the events of one category.
func (c *Catalog) EventsByCategory(cat EventCategory) []MarketEvent {
	var out []MarketEvent
	for _, e := range c.Events {
		if e.Category == cat {
			out = append(out, e)
		}
	}
	return out
}

// Eligible reports whether the event's trigger conditions admit it.
// Nil complianceRate or avgPrice skip the corresponding check.
func (e MarketEvent) Eligible(round int, complianceRate, avgPrice *float64) bool {
	t := e.Triggers
	if t == nil {
		return true
	}
	if t.MinRound != nil && round < *t.MinRound {
		return false
	}
	if t.MaxRound != nil && round > *t.MaxRound {
		return false
	}
	if t.ComplianceRate != nil && complianceRate != nil && *complianceRate > *t.ComplianceRate {
		return false
	}
	if t.AvgAllowancePrice != nil && avgPrice != nil && *avgPrice < *t.AvgAllowancePrice {
		return false
	}
	return true
}

// AvailableEvents returns the events whose triggers admit the given state.
func (c *Catalog) AvailableEvents(round int, complianceRate, avgPrice *float64) []MarketEvent {
	var out []MarketEvent
	for _, e := range c.Events {
		if e.Eligible(round, complianceRate, avgPrice) {
			out = append(out, e)
		}
	}
	return out
}
