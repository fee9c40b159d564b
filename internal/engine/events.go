package engine

import (
	"math"

	"github.com/omakhlouk/ets-simulation/internal/catalog"
)

// Market events are opt-in: nothing here runs unless a caller applies an
// event. The driver never fires them.

// EventProbability adjusts an event's base probability for the game state:
// regulators react to high compliance, economic shocks grow likelier late.
func EventProbability(e catalog.MarketEvent, s *GameState) float64 {
	p := e.Probability
	if e.Category == catalog.EventRegulatory && s.ComplianceRate() > 90 {
		p *= 1.5
	}
	if e.Category == catalog.EventEconomic && s.CurrentRound > 2 {
		p *= 1.2
	}
	return math.Min(p, 100)
}

// AvailableEvents lists catalog events whose triggers admit the state.
func AvailableEvents(c *catalog.Catalog, s *GameState) []catalog.MarketEvent {
	rate := s.ComplianceRate()
	price := s.AllowancePrice()
	return c.AvailableEvents(s.CurrentRound, &rate, &price)
}

// ApplyEvent applies an event's percentage effects and records it as
// active from the current round for its duration.
func (s *GameState) ApplyEvent(e catalog.MarketEvent) {
	fx := e.Effects
	if fx.AbatementCosts != nil {
		f := factor(*fx.AbatementCosts)
		for _, p := range s.Players {
			p.AbatementCostModifier = scaled(p.AbatementCostModifier, f)
		}
	}
	if fx.AllowancePrices != nil {
		m := s.AllowancePriceModifier
		if m == 0 {
			m = 1
		}
		s.AllowancePriceModifier = m * factor(*fx.AllowancePrices)
	}
	if fx.EmissionsCap != nil {
		s.SystemCap = int(math.Floor(float64(s.SystemCap) * factor(*fx.EmissionsCap)))
	}
	if fx.PenaltyRate != nil {
		s.Settings.Penalty = math.Floor(s.Settings.Penalty * factor(*fx.PenaltyRate))
	}
	if fx.CompanyBudgets != nil {
		f := factor(*fx.CompanyBudgets)
		for _, p := range s.Players {
			p.BudgetModifier = scaled(p.BudgetModifier, f)
			p.SyncBudget()
		}
	}

	s.ActiveEvents = append(s.ActiveEvents, ActiveEvent{
		MarketEvent: e,
		StartRound:  s.CurrentRound,
		EndRound:    s.CurrentRound + e.Duration,
	})
}

// CurrentEvents returns the active events that have not yet ended.
func (s *GameState) CurrentEvents() []ActiveEvent {
	out := []ActiveEvent{}
	for _, e := range s.ActiveEvents {
		if e.EndRound >= s.CurrentRound {
			out = append(out, e)
		}
	}
	return out
}

// ExpireEvents drops events whose last round has passed. Their effects
// stay applied.
func (s *GameState) ExpireEvents() {
	s.ActiveEvents = s.CurrentEvents()
}

func factor(pct float64) float64 {
	return 1 + pct/100
}

func scaled(m *float64, f float64) *float64 {
	v := f
	if m != nil {
		v = *m * f
	}
	return &v
}
