package engine

import "math"

// OTCOffer is an indicative bilateral offer derived from a player's holdings.
type OTCOffer struct {
	Player   string  `json:"player"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// OffsetOffer is a standing offset supply.
type OffsetOffer struct {
	Type     string  `json:"type"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// MarketData is a synthetic display snapshot. It is not authoritative and
// nothing trades against it.
type MarketData struct {
	OTCOffers    []OTCOffer    `json:"otcOffers"`
	OffsetOffers []OffsetOffer `json:"offsetOffers"`
	ReservePrice float64       `json:"reservePrice"`
	OTCOpen      bool          `json:"otcOpen"`
}

// Offers list a tenth of each holding at up to ten percent either side of
// the allowance price.
const (
	otcOfferShare  = 0.1
	otcOfferFloor  = 0.9
	otcOfferSpread = 0.2
)

var offsetSupply = []struct {
	kind     string
	quantity int
	ratio    float64
}{
	{"Forestry", 10000, 0.8},
	{"Renewable Energy", 5000, 0.75},
	{"Methane Capture", 3000, 0.85},
}

// AllowancePrice is the reserve price scaled by active market events.
func (s *GameState) AllowancePrice() float64 {
	if s.AllowancePriceModifier > 0 {
		return s.Settings.ReservePrice * s.AllowancePriceModifier
	}
	return s.Settings.ReservePrice
}

// MarketData builds the current market snapshot.
func (s *GameState) MarketData(rng interface{ Float64() float64 }) MarketData {
	price := s.AllowancePrice()
	md := MarketData{
		OTCOffers:    []OTCOffer{},
		ReservePrice: s.Settings.ReservePrice,
		OTCOpen:      s.IsOTCMarketOpen(),
	}
	for _, p := range s.Players {
		if p.AllowancesOwned <= 0 {
			continue
		}
		md.OTCOffers = append(md.OTCOffers, OTCOffer{
			Player:   p.Name,
			Quantity: int(math.Floor(float64(p.AllowancesOwned) * otcOfferShare)),
			Price:    price * (otcOfferFloor + rng.Float64()*otcOfferSpread),
		})
	}
	for _, o := range offsetSupply {
		md.OffsetOffers = append(md.OffsetOffers, OffsetOffer{
			Type:     o.kind,
			Quantity: o.quantity,
			Price:    s.Settings.ReservePrice * o.ratio,
		})
	}
	return md
}
