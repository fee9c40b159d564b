package engine

import (
	"time"

	"github.com/omakhlouk/ets-simulation/internal/ledger"
	"github.com/omakhlouk/ets-simulation/internal/npc"
)

// Advance moves to the next phase. After the last phase of a round it
// starts the next round with every player's progress cleared, or ends the
// game after the final round. Advancing a completed game does nothing.
func (s *GameState) Advance(now time.Time) {
	if s.CurrentPhase == ledger.PhaseCompleted {
		return
	}

	next := s.CurrentPhase.Index() + 1
	if next < len(ledger.Phases) {
		s.enterPhase(ledger.Phases[next], now)
		for _, p := range s.Players {
			p.PhaseProgress.Set(s.CurrentPhase, false)
		}
		return
	}

	if s.CurrentRound >= s.TotalRounds {
		s.CurrentPhase = ledger.PhaseCompleted
		s.PhaseTimer = 0
		return
	}

	s.CurrentRound++
	s.enterPhase(ledger.PhasePlanning, now)
	for _, p := range s.Players {
		p.PhaseProgress.Reset()
	}
}

// SetPhase jumps to phase without checking the sequence and restarts its
// timer. Unknown phases are accepted.
func (s *GameState) SetPhase(phase ledger.Phase, now time.Time) {
	s.enterPhase(phase, now)
}

func (s *GameState) enterPhase(phase ledger.Phase, now time.Time) {
	s.CurrentPhase = phase
	s.PhaseTimer = s.Settings.PhaseDurations.Seconds(phase)
	s.PhaseStartTime = now
}

// MarkComplete flags phase as done for one player. It reports whether a
// flag was set.
func (s *GameState) MarkComplete(playerID string, phase ledger.Phase) bool {
	p := s.Player(playerID)
	if p == nil {
		return false
	}
	return p.PhaseProgress.Set(phase, true)
}

// CanAdvance reports whether every human player has finished the current
// phase. NPC progress is never checked.
func (s *GameState) CanAdvance() bool {
	for _, p := range s.Players {
		if npc.IsNPC(p.Name) {
			continue
		}
		if !p.PhaseProgress.Done(s.CurrentPhase) {
			return false
		}
	}
	return true
}

// Humans counts players not driven by the NPC engine.
func (s *GameState) Humans() int {
	n := 0
	for _, p := range s.Players {
		if !npc.IsNPC(p.Name) {
			n++
		}
	}
	return n
}

// IsOTCMarketOpen reports whether bilateral trading is allowed now.
func (s *GameState) IsOTCMarketOpen() bool {
	switch s.CurrentPhase {
	case ledger.PhasePlanning, ledger.PhaseAuction1, ledger.PhaseAuction2, ledger.PhaseReporting:
		return true
	}
	return false
}

var instructions = map[ledger.Phase]string{
	ledger.PhasePlanning:   "Review your company profile and make abatement investment decisions. Consider your emissions, budget, and the cost-effectiveness of each option.",
	ledger.PhaseAuction1:   "Participate in the first allowance auction. Bid for allowances at or above the reserve price based on your emission reduction needs.",
	ledger.PhaseOTCOffsets: "Trade allowances with other players and purchase carbon offsets. This is your main trading phase.",
	ledger.PhaseAuction2:   "Second auction opportunity. Adjust your allowance holdings based on your compliance requirements and market conditions.",
	ledger.PhaseReporting:  "Report your actual emissions for the year and purchase carbon offsets if needed to meet compliance requirements.",
	ledger.PhaseCompliance: "Review your compliance status, penalties, and performance metrics. Prepare for the next round.",
}

// PhaseInstructions returns the player-facing text for phase.
func PhaseInstructions(phase ledger.Phase) string {
	if text, ok := instructions[phase]; ok {
		return text
	}
	return "Follow the current phase instructions."
}
