package ledger

// AbatementTons is the tonnage removed by the options the player owns.
func (p *Player) AbatementTons() int {
	if p.Profile == nil {
		return 0
	}
	tons := 0
	if p.AbatementInvestments.Option1 {
		tons += p.Profile.AbatementOption1.Tons
	}
	if p.AbatementInvestments.Option2 {
		tons += p.Profile.AbatementOption2.Tons
	}
	return tons
}

// AbatementSpend is the catalog cost of the options the player owns.
func (p *Player) AbatementSpend() float64 {
	if p.Profile == nil {
		return 0
	}
	cost := 0.0
	if p.AbatementInvestments.Option1 {
		cost += float64(p.Profile.AbatementOption1.Cost)
	}
	if p.AbatementInvestments.Option2 {
		cost += float64(p.Profile.AbatementOption2.Cost)
	}
	return cost
}

// NetEmissions is actual emissions minus abatement. It can be negative.
func (p *Player) NetEmissions() int {
	return p.ActualEmissions - p.AbatementTons()
}

// Coverage is allowances plus offsets.
func (p *Player) Coverage() int {
	return p.AllowancesOwned + p.OffsetsPurchased
}

// ComplianceGap is the uncovered part of net emissions, never negative.
func (p *Player) ComplianceGap() int {
	return max(0, max(0, p.NetEmissions())-p.Coverage())
}

// AllowanceGap ignores offsets; the ambient offset pass sizes purchases
// against allowances alone.
func (p *Player) AllowanceGap() int {
	return max(0, max(0, p.NetEmissions())-p.AllowancesOwned)
}

// Pricing is the subset of game settings the compliance pass reads.
type Pricing struct {
	PenaltyRate  float64 // per uncovered ton
	ReservePrice float64
}

// EvaluateCompliance computes the compliance summary for an assigned
// player. Unassigned players get the zero value.
func (p *Player) EvaluateCompliance(pr Pricing) Compliance {
	if p.Profile == nil {
		return Compliance{}
	}

	net := p.NetEmissions()
	coverage := p.Coverage()
	excess := max(0, net-coverage)
	penalty := float64(excess) * pr.PenaltyRate

	total := penalty + p.AbatementSpend()
	total += float64(p.AllowancesPurchased) * pr.ReservePrice
	total += float64(p.OffsetsPurchased) * OffsetPrice(pr.ReservePrice)

	var perTon float64
	if p.Profile.Emissions > 0 {
		perTon = total / float64(p.Profile.Emissions)
	}

	return Compliance{
		IsCompliant: coverage >= net,
		Penalty:     penalty,
		CostPerTon:  perTon,
	}
}
