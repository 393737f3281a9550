// Package geo holds the map catalog: Italian regions and the provinces they
// contain.
package geo

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed regions.yaml
var regionsYAML []byte

// Province is a map cell, identified by its registration code (e.g. "RM").
type Province struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Region groups provinces.
type Region struct {
	ID        string     `yaml:"id" json:"id"`
	Name      string     `yaml:"name" json:"name"`
	Provinces []Province `yaml:"provinces" json:"provinces"`
}

// Catalog indexes regions and provinces.
type Catalog struct {
	regions    []Region
	byRegion   map[string]*Region
	provinceOf map[string]string
}

// Parse decodes and indexes a catalog. Region and province ids must be unique.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Regions []Region `yaml:"regions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse regions: %w", err)
	}

	c := &Catalog{
		regions:    doc.Regions,
		byRegion:   make(map[string]*Region, len(doc.Regions)),
		provinceOf: make(map[string]string),
	}
	for i := range c.regions {
		r := &c.regions[i]
		if _, dup := c.byRegion[r.ID]; dup {
			return nil, fmt.Errorf("duplicate region %q", r.ID)
		}
		c.byRegion[r.ID] = r
		for _, p := range r.Provinces {
			if _, dup := c.provinceOf[p.ID]; dup {
				return nil, fmt.Errorf("duplicate province %q", p.ID)
			}
			c.provinceOf[p.ID] = r.ID
		}
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(regionsYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Regions returns all regions in map order.
func (c *Catalog) Regions() []Region {
	return c.regions
}

// HasRegion reports whether id names a region.
func (c *Catalog) HasRegion(id string) bool {
	_, ok := c.byRegion[id]
	return ok
}

// HasProvince reports whether id names a province.
func (c *Catalog) HasProvince(id string) bool {
	_, ok := c.provinceOf[id]
	return ok
}

// RegionOf returns the region containing province id.
func (c *Catalog) RegionOf(provinceID string) (string, bool) {
	r, ok := c.provinceOf[provinceID]
	return r, ok
}

// ProvincesOf returns the province ids of a region, or nil for an unknown one.
func (c *Catalog) ProvincesOf(regionID string) []string {
	r, ok := c.byRegion[regionID]
	if !ok {
		return nil
	}
	ids := make([]string, len(r.Provinces))
	for i, p := range r.Provinces {
		ids[i] = p.ID
	}
	return ids
}

// ProvinceCount returns the number of provinces.
func (c *Catalog) ProvinceCount() int {
	return len(c.provinceOf)
}
