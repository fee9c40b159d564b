package engine

import (
	"math"
	"sort"
)

// CalculateCompliance recomputes every assigned player's compliance
// summary, then the session totals.
func (s *GameState) CalculateCompliance() {
	pr := s.Settings.pricing()
	compliant, emissions := 0, 0
	for _, p := range s.Players {
		if !p.Assigned() {
			continue
		}
		p.Compliance = p.EvaluateCompliance(pr)
		if p.Compliance.IsCompliant {
			compliant++
		}
		emissions += p.ActualEmissions
	}
	s.ComplianceCount = compliant
	s.TotalEmissions = emissions
}

// CalculateBadges replaces every player's badges with the ones earned now.
func (s *GameState) CalculateBadges() {
	for _, p := range s.Players {
		p.Badges = p.EarnedBadges()
	}
}

// score runs both passes in order.
func (s *GameState) score() {
	s.CalculateCompliance()
	s.CalculateBadges()
}

// ComplianceRate is the share of assigned players in compliance, in percent.
func (s *GameState) ComplianceRate() float64 {
	assigned := 0
	for _, p := range s.Players {
		if p.Assigned() {
			assigned++
		}
	}
	if assigned == 0 {
		return 0
	}
	return float64(s.ComplianceCount) / float64(assigned) * 100
}

// Standing is one leaderboard row.
type Standing struct {
	Rank        int      `json:"rank"`
	PlayerID    string   `json:"playerId"`
	Name        string   `json:"name"`
	Company     string   `json:"company,omitempty"`
	IsCompliant bool     `json:"isCompliant"`
	CostPerTon  float64  `json:"costPerTon"`
	Penalty     float64  `json:"penalty"`
	Badges      []string `json:"badges"`
}

// Leaderboard ranks assigned players: compliant first, then by cost per
// ton ascending. A cost of zero means not yet scored and sorts last.
func (s *GameState) Leaderboard() []Standing {
	var rows []Standing
	for _, p := range s.Players {
		if !p.Assigned() {
			continue
		}
		names := make([]string, len(p.Badges))
		for i, b := range p.Badges {
			names[i] = b.String()
		}
		rows = append(rows, Standing{
			PlayerID:    p.ID,
			Name:        p.Name,
			Company:     p.Profile.Name,
			IsCompliant: p.Compliance.IsCompliant,
			CostPerTon:  p.Compliance.CostPerTon,
			Penalty:     p.Compliance.Penalty,
			Badges:      names,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].IsCompliant != rows[j].IsCompliant {
			return rows[i].IsCompliant
		}
		return sortCost(rows[i].CostPerTon) < sortCost(rows[j].CostPerTon)
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

func sortCost(c float64) float64 {
	if c == 0 {
		return math.Inf(1)
	}
	return c
}
