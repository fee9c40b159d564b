package catalog

import (
	"fmt"
	"math"
)

// Category is the industrial sector a company belongs to.
type Category string

const (
	CategoryPower         Category = "Power"
	CategoryTransport     Category = "Transport"
	CategoryCement        Category = "Cement"
	CategoryHeavyIndustry Category = "Heavy Industry"
	CategoryMining        Category = "Mining"
	CategoryAgriculture   Category = "Agriculture"
)

// Categories lists every sector in display order.
var Categories = []Category{
	CategoryPower,
	CategoryTransport,
	CategoryCement,
	CategoryHeavyIndustry,
	CategoryMining,
	CategoryAgriculture,
}

// Valid reports whether c is one of the known sectors.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// AbatementOption is a one-off investment that removes a fixed tonnage.
type AbatementOption struct {
	Name       string  `yaml:"name" json:"name"`
	Tons       int     `yaml:"tons" json:"tons"`
	Cost       int     `yaml:"cost" json:"cost"`
	CostPerTon float64 `yaml:"-" json:"costPerTon"` // cost / tons, set on load
}

func (o *AbatementOption) derive() {
	if o.Tons > 0 {
		o.CostPerTon = float64(o.Cost) / float64(o.Tons)
	}
}

// FinancialInfo is descriptive company data in USD millions.
type FinancialInfo struct {
	Revenue       float64 `yaml:"revenue" json:"revenue"`
	ProfitMargin  float64 `yaml:"profit_margin" json:"profitMargin"`
	OperatingCost float64 `yaml:"operating_cost" json:"operatingCost"`
	EBITDA        float64 `yaml:"ebitda" json:"ebitda"`
}

// ProductionInfo describes annual output and its emission intensity.
type ProductionInfo struct {
	ProductType       string  `yaml:"product_type" json:"productType"`
	AnnualProduction  float64 `yaml:"annual_production" json:"annualProduction"`
	Unit              string  `yaml:"unit" json:"unit"`
	EmissionIntensity float64 `yaml:"emission_intensity" json:"emissionIntensity"` // tCO2e per unit
	IntensityUnit     string  `yaml:"intensity_unit" json:"intensityUnit"`
}

// CompanyProfile is the static description of a company a player runs.
type CompanyProfile struct {
	ID               string          `yaml:"id" json:"id"`
	Name             string          `yaml:"name" json:"name"`
	Category         Category        `yaml:"category" json:"category"`
	Emissions        int             `yaml:"emissions" json:"emissions"` // baseline tCO2e per year
	Budget           int             `yaml:"budget" json:"budget"`       // sustainability budget, USD
	AbatementOption1 AbatementOption `yaml:"abatement_option1" json:"abatementOption1"`
	AbatementOption2 AbatementOption `yaml:"abatement_option2" json:"abatementOption2"`
	Description      string          `yaml:"description" json:"description"`
	Financials       FinancialInfo   `yaml:"financials" json:"financials"`
	Production       ProductionInfo  `yaml:"production" json:"production"`
}

func (p *CompanyProfile) validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("company %q: missing id", p.Name)
	case !p.Category.Valid():
		return fmt.Errorf("company %q: unknown category %q", p.ID, p.Category)
	case p.Emissions < 0:
		return fmt.Errorf("company %q: negative emissions", p.ID)
	case p.Budget < 0:
		return fmt.Errorf("company %q: negative budget", p.ID)
	case p.AbatementOption1.Tons < 0 || p.AbatementOption2.Tons < 0:
		return fmt.Errorf("company %q: negative abatement tons", p.ID)
	}
	return nil
}

// EmissionsFromProduction recomputes baseline emissions from production
// volume and intensity. Used to sanity-check catalog entries.
func (p CompanyProfile) EmissionsFromProduction() int {
	return int(math.Round(p.Production.AnnualProduction * p.Production.EmissionIntensity))
}

// ByCategory groups the catalog's companies per sector.
func (c *Catalog) ByCategory() map[Category][]CompanyProfile {
	out := make(map[Category][]CompanyProfile, len(Categories))
	for _, p := range c.Companies {
		out[p.Category] = append(out[p.Category], p)
	}
	return out
}

// BySectors returns the companies in any of the given sectors.
// An empty filter returns every company.
func (c *Catalog) BySectors(sectors ...Category) []CompanyProfile {
	if len(sectors) == 0 {
		return c.Companies
	}
	var out []CompanyProfile
	for _, p := range c.Companies {
		for _, s := range sectors {
			if p.Category == s {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// SectorDistribution counts companies per sector.
func (c *Catalog) SectorDistribution() map[Category]int {
	out := make(map[Category]int, len(Categories))
	for _, s := range Categories {
		out[s] = 0
	}
	for _, p := range c.Companies {
		out[p.Category]++
	}
	return out
}

// Intn is the slice of *rand.Rand that selection needs.
type Intn interface {
	Intn(n int) int
}

// BalancedSelection picks up to n distinct companies, cycling through the
// sectors round robin and choosing randomly within each sector. A pass that
// lands on an exhausted sector selects nothing, so fewer than n companies
// can come back when the sector filter is narrow.
func (c *Catalog) BalancedSelection(rng Intn, n int, sectors ...Category) []CompanyProfile {
	available := c.BySectors(sectors...)
	order := sectors
	if len(order) == 0 {
		order = Categories
	}

	byCat := c.ByCategory()
	taken := make(map[string]bool, n)
	var selected []CompanyProfile

	for i := 0; i < n && len(selected) < len(available); i++ {
		sector := order[i%len(order)]
		var pool []CompanyProfile
		for _, p := range byCat[sector] {
			if !taken[p.ID] {
				pool = append(pool, p)
			}
		}
		if len(pool) == 0 {
			continue
		}
		pick := pool[rng.Intn(len(pool))]
		taken[pick.ID] = true
		selected = append(selected, pick)
	}
	return selected
}
