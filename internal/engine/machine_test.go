package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omakhlouk/ets-simulation/internal/ledger"
)

func TestAdvanceRunsEveryPhaseThenCompletes(t *testing.T) {
	for _, rounds := range []int{1, 3} {
		s := NewGameState("s", DefaultSettings())
		s.TotalRounds = rounds

		for i := 0; i < 6*rounds; i++ {
			require.NotEqual(t, ledger.PhaseCompleted, s.CurrentPhase, "completed early at advance %d", i)
			s.Advance(fixedNow)
		}
		assert.Equal(t, ledger.PhaseCompleted, s.CurrentPhase)
		assert.Equal(t, rounds, s.CurrentRound)

		s.Advance(fixedNow)
		assert.Equal(t, ledger.PhaseCompleted, s.CurrentPhase)
		assert.Equal(t, rounds, s.CurrentRound)
	}
}

func TestAdvanceFollowsPhaseOrder(t *testing.T) {
	s := NewGameState("s", DefaultSettings())
	var seen []ledger.Phase
	for i := 0; i < 6; i++ {
		seen = append(seen, s.CurrentPhase)
		s.Advance(fixedNow)
	}
	assert.Equal(t, ledger.Phases[:], seen)
	assert.Equal(t, ledger.PhasePlanning, s.CurrentPhase)
	assert.Equal(t, 2, s.CurrentRound)
	assert.Equal(t, 900, s.PhaseTimer)
	assert.Equal(t, fixedNow, s.PhaseStartTime)
}

func TestRoundTransitionClearsProgress(t *testing.T) {
	alice := ledger.NewPlayer("a", "Alice", profile("c1", 1000, 5000), fixedNow)
	bot := ledger.NewPlayer("n", "NPC-1", profile("c2", 1000, 5000), fixedNow)
	s := stateWith(alice, bot)
	s.SetPhase(ledger.PhaseCompliance, fixedNow)
	for _, p := range ledger.Phases {
		s.MarkComplete("a", p)
		s.MarkComplete("n", p)
	}

	s.Advance(fixedNow)
	assert.Equal(t, 2, s.CurrentRound)
	assert.Equal(t, ledger.PhaseProgress{}, alice.PhaseProgress)
	assert.Equal(t, ledger.PhaseProgress{}, bot.PhaseProgress)
}

func TestAdvanceResetsNextPhaseFlagOnly(t *testing.T) {
	alice := ledger.NewPlayer("a", "Alice", nil, fixedNow)
	s := stateWith(alice)
	s.MarkComplete("a", ledger.PhasePlanning)
	s.MarkComplete("a", ledger.PhaseAuction1)

	s.Advance(fixedNow)
	assert.Equal(t, ledger.PhaseAuction1, s.CurrentPhase)
	assert.True(t, alice.PhaseProgress.Planning)
	assert.False(t, alice.PhaseProgress.Auction1)
	assert.Equal(t, 300, s.PhaseTimer)
}

func TestAdvanceFromUnknownPhaseStartsOver(t *testing.T) {
	s := NewGameState("s", DefaultSettings())
	s.SetPhase(ledger.Phase("lunch"), fixedNow)
	assert.Equal(t, ledger.Phase("lunch"), s.CurrentPhase)
	assert.Equal(t, 300, s.PhaseTimer)

	s.Advance(fixedNow)
	assert.Equal(t, ledger.PhasePlanning, s.CurrentPhase)
}

func TestMarkCompleteUnknownTargets(t *testing.T) {
	s := stateWith(ledger.NewPlayer("a", "Alice", nil, fixedNow))
	assert.False(t, s.MarkComplete("ghost", ledger.PhasePlanning))
	assert.False(t, s.MarkComplete("a", ledger.Phase("lunch")))
	assert.True(t, s.MarkComplete("a", ledger.PhasePlanning))
}

func TestCanAdvanceIgnoresNPCs(t *testing.T) {
	bot := ledger.NewPlayer("n", "NPC-1", profile("c2", 1000, 5000), fixedNow)
	s := stateWith(bot)
	assert.True(t, s.CanAdvance(), "no humans")
	assert.Zero(t, s.Humans())

	alice := ledger.NewPlayer("a", "Alice", nil, fixedNow)
	bob := ledger.NewPlayer("b", "Bob", nil, fixedNow)
	s.Players = append(s.Players, alice, bob)
	assert.False(t, s.CanAdvance())

	s.MarkComplete("a", ledger.PhasePlanning)
	assert.False(t, s.CanAdvance())
	s.MarkComplete("b", ledger.PhasePlanning)
	assert.True(t, s.CanAdvance())
	assert.Equal(t, 2, s.Humans())
}

func TestOTCMarketHours(t *testing.T) {
	s := NewGameState("s", DefaultSettings())
	open := map[ledger.Phase]bool{
		ledger.PhasePlanning:   true,
		ledger.PhaseAuction1:   true,
		ledger.PhaseOTCOffsets: false,
		ledger.PhaseAuction2:   true,
		ledger.PhaseReporting:  true,
		ledger.PhaseCompliance: false,
		ledger.PhaseCompleted:  false,
	}
	for phase, want := range open {
		s.CurrentPhase = phase
		assert.Equal(t, want, s.IsOTCMarketOpen(), phase)
	}
}

func TestPhaseInstructions(t *testing.T) {
	assert.Contains(t, PhaseInstructions(ledger.PhaseOTCOffsets), "main trading phase")
	assert.Equal(t, "Follow the current phase instructions.", PhaseInstructions(ledger.Phase("setup")))
}
