package ledger

import (
	"math"
	"time"
)

// OffsetPriceRatio prices offsets against the auction reserve price.
const OffsetPriceRatio = 0.8

// OffsetPrice is the fixed offset price for a reserve price.
func OffsetPrice(reservePrice float64) float64 {
	return reservePrice * OffsetPriceRatio
}

// CanAfford reports whether cost fits in the remaining budget.
func (p *Player) CanAfford(cost float64) bool {
	return cost >= 0 && cost <= p.RemainingBudget
}

// spend debits cost and restores the budget invariant. Callers check
// affordability first.
func (p *Player) spend(cost float64, now time.Time) {
	p.BudgetSpent += cost
	p.SyncBudget()
	p.LastActivity = now
}

// InvestAbatement pays for an abatement option. It does nothing and
// returns false if the player has no profile, already owns the option, or
// cannot afford it.
func (p *Player) InvestAbatement(opt Option, now time.Time) bool {
	if _, ok := p.Option(opt); !ok || p.AbatementInvestments.Invested(opt) {
		return false
	}
	cost := p.OptionCost(opt)
	if !p.CanAfford(cost) {
		return false
	}
	switch opt {
	case Option1:
		p.AbatementInvestments.Option1 = true
	case Option2:
		p.AbatementInvestments.Option2 = true
	}
	p.spend(cost, now)
	return true
}

// fits reports whether amount can be added to every counter without
// overflowing.
func fits(amount int, counters ...int) bool {
	for _, c := range counters {
		if c > math.MaxInt-amount {
			return false
		}
	}
	return true
}

// PurchaseAllowances buys allowances at price. Unaffordable, unpriced or
// empty purchases are rejected without touching the player.
func (p *Player) PurchaseAllowances(amount int, price float64, now time.Time) bool {
	if amount <= 0 || price <= 0 || !fits(amount, p.AllowancesOwned, p.AllowancesPurchased) {
		return false
	}
	cost := float64(amount) * price
	if !p.CanAfford(cost) {
		return false
	}
	p.AllowancesOwned += amount
	p.AllowancesPurchased += amount
	p.spend(cost, now)
	return true
}

// PurchaseOffsets buys offsets at offsetPrice.
func (p *Player) PurchaseOffsets(amount int, offsetPrice float64, now time.Time) bool {
	if amount <= 0 || offsetPrice <= 0 || !fits(amount, p.OffsetsPurchased) {
		return false
	}
	cost := float64(amount) * offsetPrice
	if !p.CanAfford(cost) {
		return false
	}
	p.OffsetsPurchased += amount
	p.spend(cost, now)
	return true
}

// RecordOTCTrade books an over-the-counter allowance purchase. It debits
// the budget like an auction purchase but counts toward OTC totals instead
// of allowancesPurchased.
func (p *Player) RecordOTCTrade(amount int, price float64, now time.Time) bool {
	if amount <= 0 || price <= 0 || !fits(amount, p.AllowancesOwned, p.OTCTrades.Bought) {
		return false
	}
	cost := float64(amount) * price
	if !p.CanAfford(cost) {
		return false
	}
	p.OTCTrades.Bought += amount
	p.OTCTrades.TotalValue += cost
	p.AllowancesOwned += amount
	p.spend(cost, now)
	return true
}

// UpdateActualEmissions overwrites reported emissions. The value is not
// validated.
func (p *Player) UpdateActualEmissions(tons int, now time.Time) {
	p.ActualEmissions = tons
	p.LastActivity = now
}
