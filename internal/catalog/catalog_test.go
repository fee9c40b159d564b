package catalog

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogLoads(t *testing.T) {
	c := Default()
	require.Len(t, c.Companies, 40)
	require.Len(t, c.Events, 12)

	dist := c.SectorDistribution()
	assert.Equal(t, 10, dist[CategoryPower])
	assert.Equal(t, 10, dist[CategoryTransport])
	assert.Equal(t, 5, dist[CategoryCement])
	assert.Equal(t, 5, dist[CategoryHeavyIndustry])
	assert.Equal(t, 5, dist[CategoryMining])
	assert.Equal(t, 5, dist[CategoryAgriculture])
}

func TestCompanyLookupDerivesCostPerTon(t *testing.T) {
	p, ok := Default().Company("power-1")
	require.True(t, ok)
	assert.Equal(t, "ThermalGrid Energy Corp", p.Name)
	assert.Equal(t, 90000, p.Emissions)
	assert.Equal(t, 491200, p.Budget)
	assert.Equal(t, 2200, p.AbatementOption1.Tons)
	assert.InDelta(t, 18010.0/2200.0, p.AbatementOption1.CostPerTon, 1e-9)
	assert.Equal(t, 90000, p.EmissionsFromProduction())

	_, ok = Default().Company("nope")
	assert.False(t, ok)
}

func TestParseRejectsBadData(t *testing.T) {
	_, err := Parse([]byte("companies:\n  - id: x\n    category: Shipping\n"), []byte("events: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")

	_, err = Parse([]byte("companies:\n  - id: x\n    category: Power\n  - id: x\n    category: Power\n"), []byte("events: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")

	_, err = Parse([]byte("companies: []\n"), []byte("events:\n  - id: e\n    category: Weather\n"))
	require.Error(t, err)
}

func TestBalancedSelectionCyclesSectors(t *testing.T) {
	c := Default()
	picked := c.BalancedSelection(rand.New(rand.NewSource(7)), 6)
	require.Len(t, picked, 6)

	seen := map[string]bool{}
	for i, p := range picked {
		assert.Equal(t, Categories[i], p.Category)
		assert.False(t, seen[p.ID], "duplicate pick %s", p.ID)
		seen[p.ID] = true
	}
}

func TestBalancedSelectionRespectsSectorFilter(t *testing.T) {
	c := Default()
	picked := c.BalancedSelection(rand.New(rand.NewSource(1)), 8, CategoryCement)
	require.Len(t, picked, 5, "only five cement companies exist")
	for _, p := range picked {
		assert.Equal(t, CategoryCement, p.Category)
	}
}

func TestEventEligibility(t *testing.T) {
	c := Default()

	tech, ok := c.Event("tech-breakthrough")
	require.True(t, ok)
	assert.False(t, tech.Eligible(1, nil, nil))
	assert.True(t, tech.Eligible(2, nil, nil))

	emergency, ok := c.Event("climate-emergency")
	require.True(t, ok)
	high, low := 95.0, 50.0
	assert.False(t, emergency.Eligible(3, &high, nil))
	assert.True(t, emergency.Eligible(3, &low, nil))

	volatility, ok := c.Event("market-volatility")
	require.True(t, ok)
	cheap, dear := 20.0, 35.0
	assert.False(t, volatility.Eligible(2, nil, &cheap))
	assert.True(t, volatility.Eligible(2, nil, &dear))

	round1 := c.AvailableEvents(1, nil, nil)
	for _, e := range round1 {
		if e.Triggers != nil && e.Triggers.MinRound != nil {
			assert.LessOrEqual(t, *e.Triggers.MinRound, 1)
		}
	}
	assert.NotEmpty(t, c.EventsByCategory(EventTechnology))
}
