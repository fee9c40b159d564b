package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omakhlouk/ets-simulation/internal/catalog"
	"github.com/omakhlouk/ets-simulation/internal/ledger"
)

func TestCalculateComplianceUpdatesTotals(t *testing.T) {
	short := ledger.NewPlayer("a", "Alice", profile("c1", 90000, 491200), fixedNow)
	short.AllowancesOwned = 50000
	short.OffsetsPurchased = 10000

	covered := ledger.NewPlayer("b", "Bob", profile("c2", 90000, 491200), fixedNow)
	covered.AbatementInvestments.Option1 = true
	covered.AllowancesOwned = 87800

	idle := ledger.NewPlayer("c", "Carol", nil, fixedNow)

	s := stateWith(short, covered, idle)
	s.CalculateCompliance()

	assert.False(t, short.Compliance.IsCompliant)
	assert.Equal(t, 3_000_000.0, short.Compliance.Penalty)
	assert.True(t, covered.Compliance.IsCompliant)
	assert.Zero(t, covered.Compliance.Penalty)
	assert.Equal(t, ledger.Compliance{}, idle.Compliance)

	assert.Equal(t, 1, s.ComplianceCount)
	assert.Equal(t, 180000, s.TotalEmissions)
	assert.InDelta(t, 50.0, s.ComplianceRate(), 1e-9)
}

func TestComplianceMatchesCoverageRule(t *testing.T) {
	s := stateWith()
	for i, owned := range []int{0, 87799, 87800, 87801, 200000} {
		p := ledger.NewPlayer(string(rune('a'+i)), "P", profile("c", 90000, 491200), fixedNow)
		p.AbatementInvestments.Option1 = true
		p.AllowancesOwned = owned
		s.Players = append(s.Players, p)
	}
	s.CalculateCompliance()
	for _, p := range s.Players {
		assert.Equal(t, p.Coverage() >= max(0, p.NetEmissions()), p.Compliance.IsCompliant, p.AllowancesOwned)
	}
}

func TestCalculateBadgesReplaces(t *testing.T) {
	p := ledger.NewPlayer("a", "Alice", profile("c1", 90000, 100000), fixedNow)
	p.Badges = []ledger.Badge{ledger.BadgeMasterTrader}
	s := stateWith(p)

	s.CalculateBadges()
	assert.Equal(t, []ledger.Badge{ledger.BadgeKingpin}, p.Badges)

	p.BudgetSpent = 95000
	p.SyncBudget()
	s.CalculateBadges()
	assert.Equal(t, []ledger.Badge{ledger.BadgeBankruptBandit}, p.Badges)
}

func TestLeaderboardOrdering(t *testing.T) {
	mk := func(id string, compliant bool, cpt float64) *ledger.Player {
		p := ledger.NewPlayer(id, id, profile("c-"+id, 1000, 1000), fixedNow)
		p.Compliance = ledger.Compliance{IsCompliant: compliant, CostPerTon: cpt}
		return p
	}
	s := stateWith(
		mk("A", true, 30),
		mk("B", true, 0),
		mk("C", false, 10),
		mk("D", true, 12),
		ledger.NewPlayer("E", "E", nil, fixedNow),
	)

	rows := s.Leaderboard()
	require.Len(t, rows, 4)
	var order []string
	for _, r := range rows {
		order = append(order, r.Name)
	}
	assert.Equal(t, []string{"D", "A", "B", "C"}, order)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, "Company c-D", rows[0].Company)
}

func f(v float64) *float64 { return &v }

func TestApplyEventEffects(t *testing.T) {
	p := ledger.NewPlayer("a", "Alice", profile("c1", 90000, 100000), fixedNow)
	p.BudgetSpent = 20000
	p.SyncBudget()
	s := stateWith(p)

	shock := catalog.MarketEvent{
		ID:       "shock",
		Name:     "Shock",
		Category: catalog.EventEconomic,
		Duration: 1,
		Effects: catalog.EventEffects{
			AbatementCosts:  f(20),
			AllowancePrices: f(25),
			EmissionsCap:    f(-10),
			PenaltyRate:     f(50),
			CompanyBudgets:  f(-10),
		},
	}
	s.ApplyEvent(shock)

	require.NotNil(t, p.AbatementCostModifier)
	assert.InDelta(t, 1.2, *p.AbatementCostModifier, 1e-9)
	assert.InDelta(t, 90000-20000, p.RemainingBudget, 1e-6)
	assert.InDelta(t, 1.25, s.AllowancePriceModifier, 1e-9)
	assert.InDelta(t, 31.25, s.AllowancePrice(), 1e-9)
	assert.Equal(t, 450000, s.SystemCap)
	assert.Equal(t, 150.0, s.Settings.Penalty)
	require.Len(t, s.ActiveEvents, 1)
	assert.Equal(t, 1, s.ActiveEvents[0].StartRound)
	assert.Equal(t, 2, s.ActiveEvents[0].EndRound)

	s.ApplyEvent(shock)
	assert.InDelta(t, 1.44, *p.AbatementCostModifier, 1e-9)
	assert.InDelta(t, 18010*1.44, p.OptionCost(ledger.Option1), 1e-6)
}

func TestExpireEvents(t *testing.T) {
	s := stateWith()
	s.ApplyEvent(catalog.MarketEvent{ID: "short", Duration: 0})
	s.ApplyEvent(catalog.MarketEvent{ID: "long", Duration: 2})

	s.CurrentRound = 2
	cur := s.CurrentEvents()
	require.Len(t, cur, 1)
	assert.Equal(t, "long", cur[0].ID)

	s.ExpireEvents()
	require.Len(t, s.ActiveEvents, 1)
	s.CurrentRound = 4
	s.ExpireEvents()
	assert.Empty(t, s.ActiveEvents)
}

func TestEventProbability(t *testing.T) {
	p := ledger.NewPlayer("a", "Alice", profile("c1", 1000, 1000), fixedNow)
	p.AllowancesOwned = 1000
	s := stateWith(p)
	s.CalculateCompliance()

	reg := catalog.MarketEvent{Category: catalog.EventRegulatory, Probability: 40}
	assert.Equal(t, 60.0, EventProbability(reg, s))
	reg.Probability = 80
	assert.Equal(t, 100.0, EventProbability(reg, s))

	econ := catalog.MarketEvent{Category: catalog.EventEconomic, Probability: 20}
	assert.Equal(t, 20.0, EventProbability(econ, s))
	s.CurrentRound = 3
	assert.InDelta(t, 24.0, EventProbability(econ, s), 1e-9)
}

func TestAvailableEventsUsesState(t *testing.T) {
	s := stateWith()
	all := AvailableEvents(catalog.Default(), s)
	s.CurrentRound = 3
	later := AvailableEvents(catalog.Default(), s)
	assert.NotEmpty(t, all)
	assert.NotEqual(t, len(all), len(later))
}
