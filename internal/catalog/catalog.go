// Package catalog holds the read-only reference data consumed by the game:
// company profiles assigned to players and the market event library.
// Both catalogs ship as embedded YAML and are never mutated at runtime.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/companies.yaml
var companiesYAML []byte

//go:embed data/events.yaml
var eventsYAML []byte

// Catalog is the loaded reference data with lookup indexes.
type Catalog struct {
	Companies []CompanyProfile
	Events    []MarketEvent

	companyIndex map[string]int
	eventIndex   map[string]int
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog. It panics if the embedded YAML is
// malformed, which can only happen with a broken build.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(companiesYAML, eventsYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("catalog: embedded data invalid: %v", defaultErr))
	}
	return defaultCatalog
}

// Parse decodes and validates company and event YAML documents.
func Parse(companies, events []byte) (*Catalog, error) {
	var cdoc struct {
		Companies []CompanyProfile `yaml:"companies"`
	}
	if err := yaml.Unmarshal(companies, &cdoc); err != nil {
		return nil, fmt.Errorf("decode companies: %w", err)
	}

	var edoc struct {
		Events []MarketEvent `yaml:"events"`
	}
	if err := yaml.Unmarshal(events, &edoc); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	c := &Catalog{
		Companies:    cdoc.Companies,
		Events:       edoc.Events,
		companyIndex: make(map[string]int, len(cdoc.Companies)),
		eventIndex:   make(map[string]int, len(edoc.Events)),
	}

	for i := range c.Companies {
		p := &c.Companies[i]
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.companyIndex[p.ID]; dup {
			return nil, fmt.Errorf("company %q: duplicate id", p.ID)
		}
		p.AbatementOption1.derive()
		p.AbatementOption2.derive()
		c.companyIndex[p.ID] = i
	}

	for i := range c.Events {
		e := &c.Events[i]
		if e.ID == "" {
			return nil, fmt.Errorf("event %d: missing id", i)
		}
		if _, dup := c.eventIndex[e.ID]; dup {
			return nil, fmt.Errorf("event %q: duplicate id", e.ID)
		}
		if !e.Category.Valid() {
			return nil, fmt.Errorf("event %q: unknown category %q", e.ID, e.Category)
		}
		c.eventIndex[e.ID] = i
	}

	return c, nil
}

// Company looks up a profile by id.
func (c *Catalog) Company(id string) (CompanyProfile, bool) {
	i, ok := c.companyIndex[id]
	if !ok {
		return CompanyProfile{}, false
	}
	return c.Companies[i], true
}

// Event looks up a market event by id.
func (c *Catalog) Event(id string) (MarketEvent, bool) {
	i, ok := c.eventIndex[id]
	if !ok {
		return MarketEvent{}, false
	}
	return c.Events[i], true
}
