package ledger

import "fmt"

// Badge is an end-of-round achievement.
type Badge int

const (
	BadgeCleanTechChampion Badge = iota
	BadgeThriftyPerformer
	BadgeOffsetGuru
	BadgeKingpin
	BadgeBankruptBandit
	BadgeAuctionHawke
	BadgeAllowanceSquirrel
	BadgeTheSloth
	BadgeMasterTrader
)

// BadgeInfo is the display metadata for a badge.
type BadgeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Awarded     bool   `json:"awarded"` // false: listed for display, never computed
}

var badgeInfo = [...]BadgeInfo{
	BadgeCleanTechChampion: {"Clean Tech Champion", "Highest % of abatement delivered (abatement / initial emissions)", "zap", "green", true},
	BadgeThriftyPerformer:  {"Thrifty Performer", "Lowest total abatement cost (cost / tCO2 avoided)", "star", "yellow", true},
	BadgeOffsetGuru:        {"Offset Guru", "Highest % of emissions covered by offsets", "shield", "cyan", true},
	BadgeKingpin:           {"Kingpin", "Highest $ of unused budget", "banknote", "green", true},
	BadgeBankruptBandit:    {"Bankrupt Bandit", "Lowest (or negative) remaining budget", "skull", "red", true},
	BadgeAuctionHawke:      {"Auction Hawke", "Highest proportion of allowances purchased at auction", "crown", "purple", false},
	BadgeAllowanceSquirrel: {"Allowance Squirrel", "Largest stockpile of unused allowances (unused / initial emissions)", "coins", "orange", false},
	BadgeTheSloth:          {"The Sloth", "Smallest share of OTC traded allowances", "turtle", "gray", false},
	BadgeMasterTrader:      {"Master Trader", "Largest share of OTC traded allowances (total OTC trades / initial emissions)", "trending-up", "blue", false},
}

// AllBadges lists every badge in display order.
func AllBadges() []Badge {
	out := make([]Badge, len(badgeInfo))
	for i := range badgeInfo {
		out[i] = Badge(i)
	}
	return out
}

// Info returns the badge's metadata.
func (b Badge) Info() BadgeInfo {
	if int(b) < len(badgeInfo) {
		return badgeInfo[b]
	}
	return BadgeInfo{Name: fmt.Sprintf("Badge(%d)", b)}
}

func (b Badge) String() string { return b.Info().Name }

// MarshalText encodes the badge as its display name.
func (b Badge) MarshalText() ([]byte, error) {
	if int(b) >= len(badgeInfo) {
		return nil, fmt.Errorf("unknown badge %d", b)
	}
	return []byte(badgeInfo[b].Name), nil
}

// UnmarshalText decodes a display name.
func (b *Badge) UnmarshalText(text []byte) error {
	name := string(text)
	for i, info := range badgeInfo {
		if info.Name == name {
			*b = Badge(i)
			return nil
		}
	}
	return fmt.Errorf("unknown badge %q", name)
}

// Badge thresholds.
const (
	cleanTechMinPct  = 15
	thriftyMaxPerTon = 20
	offsetGuruMinPct = 10
	kingpinMinShare  = 0.5
	bankruptMaxShare = 0.1
)

// EarnedBadges evaluates every computed badge predicate against the
// player's current state. Unassigned players earn nothing.
func (p *Player) EarnedBadges() []Badge {
	badges := []Badge{}
	if p.Profile == nil {
		return badges
	}

	baseline := float64(p.Profile.Emissions)
	budget := float64(p.Profile.Budget)

	if baseline > 0 && float64(p.AbatementTons())/baseline*100 >= cleanTechMinPct {
		badges = append(badges, BadgeCleanTechChampion)
	}
	if cpt := p.Compliance.CostPerTon; cpt > 0 && cpt <= thriftyMaxPerTon {
		badges = append(badges, BadgeThriftyPerformer)
	}
	if baseline > 0 && float64(p.OffsetsPurchased)/baseline*100 >= offsetGuruMinPct {
		badges = append(badges, BadgeOffsetGuru)
	}
	if p.RemainingBudget >= kingpinMinShare*budget {
		badges = append(badges, BadgeKingpin)
	}
	if p.RemainingBudget <= bankruptMaxShare*budget {
		badges = append(badges, BadgeBankruptBandit)
	}
	return badges
}
