// Package ledger holds the per-player record of the trading game: market
// position, abatement choices, budget and the derived compliance summary.
// JSON field names are consumed verbatim by the results export.
package ledger

import (
	"time"

	"github.com/omakhlouk/ets-simulation/internal/catalog"
)

// Option selects one of a company's two abatement options.
type Option string

const (
	Option1 Option = "option1"
	Option2 Option = "option2"
)

// Investments records which abatement options a player has paid for.
// Flags only ever go from false to true.
type Investments struct {
	Option1 bool `json:"option1"`
	Option2 bool `json:"option2"`
}

// Invested reports the flag for opt.
func (inv Investments) Invested(opt Option) bool {
	switch opt {
	case Option1:
		return inv.Option1
	case Option2:
		return inv.Option2
	}
	return false
}

// Compliance is the cached result of the last compliance pass.
type Compliance struct {
	IsCompliant bool    `json:"isCompliant"`
	Penalty     float64 `json:"penalty"`
	CostPerTon  float64 `json:"costPerTon"`
}

// OTCTrades totals a player's over-the-counter activity.
type OTCTrades struct {
	Bought     int     `json:"bought"`
	Sold       int     `json:"sold"`
	TotalValue float64 `json:"totalValue"`
}

// Player is one participant, human or NPC.
type Player struct {
	ID      string                  `json:"id"`
	Name    string                  `json:"name"`
	Profile *catalog.CompanyProfile `json:"profile,omitempty"`

	AllowancesOwned     int `json:"allowancesOwned"`
	AllowancesPurchased int `json:"allowancesPurchased"`
	OffsetsPurchased    int `json:"offsetsPurchased"`
	ActualEmissions     int `json:"actualEmissions"`

	AbatementInvestments Investments `json:"abatementInvestments"`
	Compliance           Compliance  `json:"compliance"`
	Badges               []Badge     `json:"badges"`

	BudgetSpent     float64 `json:"budgetSpent"`
	RemainingBudget float64 `json:"remainingBudget"`

	// Set by market events; nil means 1.
	AbatementCostModifier *float64 `json:"abatementCostModifier,omitempty"`
	BudgetModifier        *float64 `json:"budgetModifier,omitempty"`

	OTCTrades     OTCTrades     `json:"otcTrades"`
	PhaseProgress PhaseProgress `json:"phaseProgress"`
	LastActivity  time.Time     `json:"lastActivity"`
}

// NewPlayer creates a player, optionally assigned to a company.
func NewPlayer(id, name string, profile *catalog.CompanyProfile, now time.Time) *Player {
	p := &Player{
		ID:           id,
		Name:         name,
		Badges:       []Badge{},
		LastActivity: now,
	}
	p.Assign(profile)
	return p
}

// Assign attaches a profile. Unset actual emissions default to the
// profile baseline.
func (p *Player) Assign(profile *catalog.CompanyProfile) {
	if profile == nil {
		return
	}
	p.Profile = profile
	if p.ActualEmissions == 0 {
		p.ActualEmissions = profile.Emissions
	}
	p.SyncBudget()
}

// Assigned reports whether the player runs a company.
func (p *Player) Assigned() bool {
	return p.Profile != nil
}

// Budget is the player's total budget after market event modifiers.
func (p *Player) Budget() float64 {
	if p.Profile == nil {
		return 0
	}
	return float64(p.Profile.Budget) * modifier(p.BudgetModifier)
}

// Option returns the profile's abatement option for opt.
func (p *Player) Option(opt Option) (catalog.AbatementOption, bool) {
	if p.Profile == nil {
		return catalog.AbatementOption{}, false
	}
	switch opt {
	case Option1:
		return p.Profile.AbatementOption1, true
	case Option2:
		return p.Profile.AbatementOption2, true
	}
	return catalog.AbatementOption{}, false
}

// OptionCost is what investing in opt costs now, after modifiers.
func (p *Player) OptionCost(opt Option) float64 {
	o, ok := p.Option(opt)
	if !ok {
		return 0
	}
	return float64(o.Cost) * modifier(p.AbatementCostModifier)
}

// SyncBudget restores remainingBudget = budget - budgetSpent. Call it after
// changing BudgetModifier.
func (p *Player) SyncBudget() {
	r := p.Budget() - p.BudgetSpent
	if r < 0 && r > -budgetEpsilon {
		// Rounding residue from fractional OTC prices.
		r = 0
	}
	p.RemainingBudget = r
}

const budgetEpsilon = 1e-6

// Clone returns a deep copy. The profile is shared; it is immutable.
func (p *Player) Clone() *Player {
	cp := *p
	cp.Badges = append([]Badge{}, p.Badges...)
	if p.AbatementCostModifier != nil {
		v := *p.AbatementCostModifier
		cp.AbatementCostModifier = &v
	}
	if p.BudgetModifier != nil {
		v := *p.BudgetModifier
		cp.BudgetModifier = &v
	}
	return &cp
}

func modifier(m *float64) float64 {
	if m == nil {
		return 1
	}
	return *m
}
