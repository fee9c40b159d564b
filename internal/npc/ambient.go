package npc

import "github.com/omakhlouk/ets-simulation/internal/ledger"

const (
	ambientTradeChance  = 0.3
	ambientMinAmount    = 10
	ambientAmountSpread = 100
)

// AmbientOTC gives every driven player a 30% chance of a small OTC trade,
// independent of its compliance gap. Unaffordable trades are skipped.
func AmbientOTC(players []*ledger.Player, m Market, rng Rand) []Outcome {
	if m.ReservePrice <= 0 {
		return nil
	}
	var out []Outcome
	for _, p := range players {
		if !Acts(p) || rng.Float64() >= ambientTradeChance {
			continue
		}
		amount := ambientMinAmount + rng.Intn(ambientAmountSpread)
		out = append(out, otc(p, amount, otcPrice(m, rng), m.Now)...)
	}
	return out
}

// AmbientOffsets tops up offsets for every driven player still short of
// allowances. Existing offsets are not counted toward the gap.
func AmbientOffsets(players []*ledger.Player, m Market) []Outcome {
	if m.ReservePrice <= 0 {
		return nil
	}
	var out []Outcome
	for _, p := range players {
		if !Acts(p) {
			continue
		}
		out = append(out, offset(p, p.AllowanceGap(), m)...)
	}
	return out
}
