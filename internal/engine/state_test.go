package engine

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omakhlouk/ets-simulation/internal/catalog"
	"github.com/omakhlouk/ets-simulation/internal/ledger"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func profile(id string, emissions, budget int) *catalog.CompanyProfile {
	return &catalog.CompanyProfile{
		ID:               id,
		Name:             "Company " + id,
		Category:         catalog.CategoryPower,
		Emissions:        emissions,
		Budget:           budget,
		AbatementOption1: catalog.AbatementOption{Name: "Efficiency Upgrades", Tons: 2200, Cost: 18010, CostPerTon: 18010.0 / 2200},
		AbatementOption2: catalog.AbatementOption{Name: "Fuel Switching", Tons: 1700, Cost: 34792, CostPerTon: 34792.0 / 1700},
	}
}

func stateWith(players ...*ledger.Player) *GameState {
	s := NewGameState("s1", DefaultSettings())
	s.Players = append(s.Players, players...)
	return s
}

func TestPhaseDurationsFallBack(t *testing.T) {
	d := DefaultSettings().PhaseDurations
	assert.Equal(t, 900, d.Seconds(ledger.PhasePlanning))
	assert.Equal(t, 300, d.Seconds(ledger.PhaseAuction1))
	assert.Equal(t, 300, d.Seconds(ledger.PhaseOTCOffsets), "no default for otc-offsets")
	assert.Equal(t, 600, d.Seconds(ledger.PhaseReporting))
	assert.Equal(t, 300, d.Seconds(ledger.Phase("bogus")))
}

func TestSettingsMergeKeepsAbsentKeys(t *testing.T) {
	base := DefaultSettings()
	merged, err := base.Merge([]byte(`{"totalRounds":5,"reservePrice":30,"phaseDurations":{"planning":20}}`))
	require.NoError(t, err)

	assert.Equal(t, 5, merged.TotalRounds)
	assert.Equal(t, 30.0, merged.ReservePrice)
	assert.Equal(t, 20, merged.PhaseDurations.Planning)
	assert.Equal(t, 5, merged.PhaseDurations.Auction1)
	assert.Equal(t, 100.0, merged.Penalty)
	assert.Equal(t, 3, base.TotalRounds)

	_, err = base.Merge([]byte(`{"totalRounds":`))
	assert.Error(t, err)
	assert.Error(t, Settings{TotalRounds: 0}.Validate())
}

func TestNewGameStateUsesCapWhenSystemCapUnset(t *testing.T) {
	s := DefaultSettings()
	s.SystemCap = 0
	s.Cap = 420000
	st := NewGameState("x", s)
	assert.Equal(t, 420000, st.SystemCap)
	assert.Equal(t, 1, st.CurrentRound)
	assert.Equal(t, ledger.PhasePlanning, st.CurrentPhase)
	assert.True(t, st.IsManualMode)
}

func TestAddLogKeepsNewestFifty(t *testing.T) {
	s := stateWith()
	for i := 0; i < 60; i++ {
		s.AddLog(NewLogEntry(LogSystem, fmt.Sprintf("entry %d", i), fixedNow))
	}
	require.Len(t, s.GameLogs, MaxLogs)
	assert.Equal(t, "entry 59", s.GameLogs[0].Message)
	assert.Equal(t, "entry 10", s.GameLogs[MaxLogs-1].Message)
	assert.NotEmpty(t, s.GameLogs[0].ID)
}

func TestRestoreStateBackfillsOldRecords(t *testing.T) {
	old := `{
		"sessionId": "legacy",
		"currentRound": 2,
		"currentPhase": "auction2",
		"players": [{
			"id": "p1", "name": "Alice",
			"profile": {"id": "power-1", "name": "ThermalGrid", "category": "Power", "emissions": 90000, "budget": 491200},
			"allowancesOwned": 100,
			"budgetSpent": 1200
		}],
		"settings": {"reservePrice": 30},
		"gameLogs": null
	}`
	s, err := RestoreState([]byte(old), DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, "legacy", s.SessionID)
	assert.Equal(t, 3, s.TotalRounds)
	assert.Equal(t, 30.0, s.Settings.ReservePrice)
	assert.Equal(t, 100.0, s.Settings.Penalty)
	assert.NotNil(t, s.GameLogs)
	assert.NotNil(t, s.ActiveEvents)

	p := s.Player("p1")
	require.NotNil(t, p)
	assert.Equal(t, ledger.PhaseProgress{}, p.PhaseProgress)
	assert.NotNil(t, p.Badges)
	assert.Equal(t, 90000, p.ActualEmissions)
	assert.Equal(t, 490000.0, p.RemainingBudget)
}

func TestRestoreStateRejectsCorruptData(t *testing.T) {
	_, err := RestoreState([]byte(`{"players": [`), DefaultSettings())
	assert.Error(t, err)
}

func TestStateRoundTripsThroughJSON(t *testing.T) {
	s := stateWith(ledger.NewPlayer("p1", "Alice", profile("c1", 1000, 5000), fixedNow))
	s.Players[0].Badges = []ledger.Badge{ledger.BadgeKingpin}
	s.AddLog(NewLogEntry(LogPlayer, "Alice joined", fixedNow))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	back, err := RestoreState(data, DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, s.Players[0].Badges, back.Players[0].Badges)
	assert.Equal(t, s.GameLogs[0].Message, back.GameLogs[0].Message)
	assert.Equal(t, s.Settings, back.Settings)
}

func TestCloneIsIndependent(t *testing.T) {
	s := stateWith(ledger.NewPlayer("p1", "Alice", profile("c1", 1000, 5000), fixedNow))
	cp := s.Clone()
	cp.Players[0].AllowancesOwned = 42
	cp.Settings.MarketEvents = append(cp.Settings.MarketEvents, "x")
	cp.GameLogs = append(cp.GameLogs, LogEntry{Message: "x"})

	assert.Zero(t, s.Players[0].AllowancesOwned)
	assert.Empty(t, s.Settings.MarketEvents)
	assert.Empty(t, s.GameLogs)
}
