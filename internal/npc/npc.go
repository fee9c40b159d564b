// Package npc drives the automated participants of a game. NPCs are plain
// ledger players whose name carries the NPC marker; each phase they make one
// greedy, myopic decision against the current reserve price.
package npc

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/omakhlouk/ets-simulation/internal/ledger"
)

// Marker prefixes every NPC player name.
const Marker = "NPC"

// IsNPC reports whether a player name belongs to an NPC.
func IsNPC(name string) bool {
	return strings.HasPrefix(name, Marker)
}

// Acts reports whether the engine should decide for p.
func Acts(p *ledger.Player) bool {
	return IsNPC(p.Name) && p.Assigned()
}

// Name returns the display name of the n-th NPC.
func Name(n int) string {
	return fmt.Sprintf("%s-%d", Marker, n)
}

// Rand is the slice of *rand.Rand the engine draws from.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Variant holds the thresholds of one heuristic. The single-step and
// full-run call paths use different values and are kept apart.
type Variant struct {
	Name            string
	AbatementCutoff float64 // invest iff costPerTon < reserve * cutoff
	AuctionShare    float64 // buy ceil(gap * share) at auction
}

var (
	// SingleStep is used when a facilitator advances one phase.
	SingleStep = Variant{Name: "single-step", AbatementCutoff: 1.0, AuctionShare: 0.6}
	// FullRun is used by the full simulation driver.
	FullRun = Variant{Name: "full-run", AbatementCutoff: 1.2, AuctionShare: 0.7}
)

// Market is what an NPC can see of the game when deciding.
type Market struct {
	ReservePrice float64
	Now          time.Time
}

// OffsetPrice is the fixed price of one offset.
func (m Market) OffsetPrice() float64 {
	return ledger.OffsetPrice(m.ReservePrice)
}

// Kind classifies an outcome. The string values double as log entry types.
type Kind uint8

const (
	KindAbatement Kind = iota
	KindTrade
	KindOffset
)

func (k Kind) String() string {
	switch k {
	case KindAbatement:
		return "abatement"
	case KindTrade:
		return "trade"
	case KindOffset:
		return "offset"
	}
	return "unknown"
}

// Outcome is one successful NPC action.
type Outcome struct {
	PlayerID string
	Kind     Kind
	Quantity int // tons abated or units bought
	Cost     float64
	Message  string
}

// OTC price band around the reserve price.
const (
	otcTradeThreshold = 0.6 // trade iff draw > threshold
	otcMinAmount      = 50
	otcAmountSpread   = 200
	otcPriceFloor     = 0.95
	otcPriceSpread    = 0.1
)

// Act runs one decision for p in phase. It returns nothing for players the
// engine does not drive or phases with no NPC behavior.
func Act(p *ledger.Player, phase ledger.Phase, v Variant, m Market, rng Rand) []Outcome {
	if !Acts(p) || m.ReservePrice <= 0 {
		return nil
	}

	switch phase {
	case ledger.PhasePlanning:
		return invest(p, v, m)
	case ledger.PhaseAuction1, ledger.PhaseAuction2:
		return bid(p, v, m)
	case ledger.PhaseOTCOffsets:
		return trade(p, m, rng)
	case ledger.PhaseReporting:
		return offset(p, p.ComplianceGap(), m)
	}
	return nil
}

// Pass runs Act for every driven player in order.
func Pass(players []*ledger.Player, phase ledger.Phase, v Variant, m Market, rng Rand) []Outcome {
	var out []Outcome
	for _, p := range players {
		out = append(out, Act(p, phase, v, m, rng)...)
	}
	return out
}

// Count returns how many players the engine drives.
func Count(players []*ledger.Player) int {
	n := 0
	for _, p := range players {
		if Acts(p) {
			n++
		}
	}
	return n
}

func invest(p *ledger.Player, v Variant, m Market) []Outcome {
	if p.RemainingBudget <= 0 {
		return nil
	}

	var out []Outcome
	cutoff := m.ReservePrice * v.AbatementCutoff
	for _, opt := range []ledger.Option{ledger.Option1, ledger.Option2} {
		o, _ := p.Option(opt)
		if o.CostPerTon >= cutoff {
			continue
		}
		cost := p.OptionCost(opt)
		if !p.InvestAbatement(opt, m.Now) {
			continue
		}
		out = append(out, Outcome{
			PlayerID: p.ID,
			Kind:     KindAbatement,
			Quantity: o.Tons,
			Cost:     cost,
			Message:  fmt.Sprintf("%s invested in %s for $%s", p.Name, o.Name, Money(cost)),
		})
	}
	return out
}

func bid(p *ledger.Player, v Variant, m Market) []Outcome {
	desired := int(math.Ceil(float64(p.ComplianceGap()) * v.AuctionShare))
	affordable := int(math.Floor(p.RemainingBudget / m.ReservePrice))
	amount := min(desired, affordable)
	if amount <= 0 || !p.PurchaseAllowances(amount, m.ReservePrice, m.Now) {
		return nil
	}
	return []Outcome{{
		PlayerID: p.ID,
		Kind:     KindTrade,
		Quantity: amount,
		Cost:     float64(amount) * m.ReservePrice,
		Message: fmt.Sprintf("%s purchased %s allowances at $%s/tCO₂e",
			p.Name, humanize.Comma(int64(amount)), humanize.Ftoa(m.ReservePrice)),
	}}
}

func trade(p *ledger.Player, m Market, rng Rand) []Outcome {
	if rng.Float64() <= otcTradeThreshold {
		return nil
	}
	gap := p.ComplianceGap()
	if gap <= 0 {
		return nil
	}
	amount := min(gap, otcMinAmount+rng.Intn(otcAmountSpread))
	return otc(p, amount, otcPrice(m, rng), m.Now)
}

func otcPrice(m Market, rng Rand) float64 {
	return m.ReservePrice * (otcPriceFloor + rng.Float64()*otcPriceSpread)
}

func otc(p *ledger.Player, amount int, price float64, now time.Time) []Outcome {
	if !p.RecordOTCTrade(amount, price, now) {
		return nil
	}
	return []Outcome{{
		PlayerID: p.ID,
		Kind:     KindTrade,
		Quantity: amount,
		Cost:     float64(amount) * price,
		Message: fmt.Sprintf("%s purchased %s allowances via OTC at $%.2f/tCO₂e",
			p.Name, humanize.Comma(int64(amount)), price),
	}}
}

func offset(p *ledger.Player, gap int, m Market) []Outcome {
	if gap <= 0 || p.RemainingBudget <= 0 {
		return nil
	}
	price := m.OffsetPrice()
	amount := min(gap, int(math.Floor(p.RemainingBudget/price)))
	if amount <= 0 || !p.PurchaseOffsets(amount, price, m.Now) {
		return nil
	}
	cost := float64(amount) * price
	return []Outcome{{
		PlayerID: p.ID,
		Kind:     KindOffset,
		Quantity: amount,
		Cost:     cost,
		Message:  fmt.Sprintf("%s purchased %s carbon offsets for $%s", p.Name, humanize.Comma(int64(amount)), Money(cost)),
	}}
}

// Money formats a dollar amount for log messages.
func Money(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}
