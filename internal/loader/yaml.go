package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"ratequote/internal/ratecard"
	"ratequote/internal/zone"
)

// YAML reads a catalog from a rate-card file.
type YAML struct {
	Path string
}

func NewYAML(path string) *YAML { return &YAML{Path: path} }

type fileCatalog struct {
	Regions  []zone.Region `yaml:"regions"`
	Carriers []fileCarrier `yaml:"carriers"`
}

type fileCarrier struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Zones    map[string]string `yaml:"zones"`
	Lanes    []fileLane        `yaml:"lanes"`
	Services []fileService     `yaml:"services"`
}

type fileLane struct {
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`
	Zone        string `yaml:"zone"`
}

type fileService struct {
	ID                string              `yaml:"id"`
	Category          string              `yaml:"category"`
	Version           string              `yaml:"version"`
	FuelPercent       decimal.Decimal     `yaml:"fuel_percent"`
	COD               fileCOD             `yaml:"cod"`
	VolumetricDivisor int64               `yaml:"volumetric_divisor"`
	Rates             map[string]fileZone `yaml:"rates"`
}

// Amounts decode from their literal text, so they stay exact.
type fileCOD struct {
	RatePercent decimal.Decimal `yaml:"rate_percent"`
	FlatMinimum decimal.Decimal `yaml:"flat_minimum"`
	Basis       string          `yaml:"basis"`
}

type fileZone struct {
	Rank  int        `yaml:"rank"`
	Slabs []fileSlab `yaml:"slabs"`
}

type fileSlab struct {
	BaseWeightGrams int64           `yaml:"base_weight_grams"`
	IncrementGrams  int64           `yaml:"increment_grams"`
	BaseAmount      decimal.Decimal `yaml:"base_amount"`
	IncrementAmount decimal.Decimal `yaml:"increment_amount"`
}

// Load reads and parses the file.
func (l *YAML) Load(ctx context.Context) (Catalog, error) {
	if err := ctx.Err(); err != nil {
		return Catalog{}, err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return Catalog{}, err
	}
	cat, err := Parse(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("parsing %s: %w", filepath.Base(l.Path), err)
	}
	return cat, nil
}

// Parse decodes a rate-card document and validates every table in it.
func Parse(data []byte) (Catalog, error) {
	var raw fileCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Catalog{}, err
	}

	cat := Catalog{Regions: raw.Regions}
	for _, c := range raw.Carriers {
		if strings.TrimSpace(c.ID) == "" {
			return Catalog{}, fmt.Errorf("carrier id required")
		}
		rules := zone.Rules{Carrier: c.ID, Classes: map[zone.Class]string{}, Lanes: map[zone.Lane]string{}}
		for class, code := range c.Zones {
			rules.Classes[zone.Class(class)] = code
		}
		for _, ln := range c.Lanes {
			rules.Lanes[zone.Lane{Origin: ln.Origin, Destination: ln.Destination}] = ln.Zone
		}
		cat.Rules = append(cat.Rules, rules)

		for _, s := range c.Services {
			t := s.table(ratecard.Carrier{ID: c.ID, Name: c.Name})
			if err := t.Validate(); err != nil {
				return Catalog{}, err
			}
			cat.Tables = append(cat.Tables, t)
		}
	}
	return cat, nil
}

func (s fileService) table(carrier ratecard.Carrier) ratecard.RateTable {
	t := ratecard.RateTable{
		Carrier: carrier,
		Service: ratecard.ServiceType{ID: s.ID, Category: s.Category},
		Version: s.Version,
		Zones:   make(map[string]ratecard.ZoneRates, len(s.Rates)),
		Surcharges: ratecard.Surcharges{
			FuelPercent: s.FuelPercent,
			COD: ratecard.CODRule{
				RatePercent: s.COD.RatePercent,
				FlatMinimum: s.COD.FlatMinimum,
				Basis:       ratecard.CODBasis(s.COD.Basis),
			},
		},
		VolumetricDivisor: s.VolumetricDivisor,
	}
	for code, z := range s.Rates {
		slabs := make([]ratecard.WeightSlab, 0, len(z.Slabs))
		for _, sl := range z.Slabs {
			slabs = append(slabs, ratecard.WeightSlab{
				BaseWeightGrams: sl.BaseWeightGrams,
				IncrementGrams:  sl.IncrementGrams,
				BaseAmount:      sl.BaseAmount,
				IncrementAmount: sl.IncrementAmount,
			})
		}
		t.Zones[code] = ratecard.ZoneRates{Rank: z.Rank, Slabs: slabs}
	}
	return t
}
