// Package ratecard holds the versioned pricing data of each carrier service and the
// process-wide registry that owns it.
package ratecard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Carrier is a shipping partner.
type Carrier struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ServiceType is a carrier's shipping product. Category is the carrier-neutral product
// family (surface, express, dto) that requests ask for.
type ServiceType struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

// Zone is a carrier-local pricing region. Codes of different carriers are not comparable.
type Zone struct {
	Code string `json:"code"`
	Rank int    `json:"rank"`
}

// WeightSlab is one pricing tier. BaseWeightGrams is the cumulative upper bound of the
// tier; IncrementGrams and IncrementAmount price weight beyond the last tier of a zone.
type WeightSlab struct {
	BaseWeightGrams int64           `json:"base_weight_grams"`
	IncrementGrams  int64           `json:"increment_grams"`
	BaseAmount      decimal.Decimal `json:"base_amount"`
	IncrementAmount decimal.Decimal `json:"increment_amount"`
}

// ZoneRates is the ordered slab sequence priced for one zone.
type ZoneRates struct {
	Rank  int          `json:"rank"`
	Slabs []WeightSlab `json:"slabs"`
}

// CODBasis selects the amount the COD percentage is applied to.
type CODBasis string

const (
	CODBasisFreight       CODBasis = "freight"
	CODBasisDeclaredValue CODBasis = "declared_value"
)

// CODRule is the "percent or flat minimum, whichever is higher" cash-on-delivery charge.
type CODRule struct {
	RatePercent decimal.Decimal `json:"rate_percent"`
	FlatMinimum decimal.Decimal `json:"flat_minimum"`
	Basis       CODBasis        `json:"basis"`
}

// Surcharges are applied on top of the base freight.
type Surcharges struct {
	FuelPercent decimal.Decimal `json:"fuel_percent"`
	COD         CODRule         `json:"cod"`
}

// RateTable is the full price matrix of one (carrier, service) pair.
type RateTable struct {
	Carrier    Carrier              `json:"carrier"`
	Service    ServiceType          `json:"service"`
	Version    string               `json:"version"`
	Zones      map[string]ZoneRates `json:"zones"`
	Surcharges Surcharges           `json:"surcharges"`
	// VolumetricDivisor is in cm^3 per kg. Zero disables volumetric weight.
	VolumetricDivisor int64 `json:"volumetric_divisor,omitempty"`
}

// Key identifies a table inside the registry.
type Key struct {
	Carrier string `json:"carrier"`
	Service string `json:"service"`
}

func (k Key) String() string { return k.Carrier + "/" + k.Service }

// Key returns the registry key of the table.
func (t RateTable) Key() Key {
	return Key{Carrier: t.Carrier.ID, Service: t.Service.ID}
}

// Zone returns the zone with the given code, if the table prices it.
func (t RateTable) Zone(code string) (Zone, []WeightSlab, bool) {
	zr, ok := t.Zones[code]
	if !ok {
		return Zone{}, nil, false
	}
	return Zone{Code: code, Rank: zr.Rank}, zr.Slabs, true
}

// ZoneCodes returns the priced zone codes ordered by rank, then code.
func (t RateTable) ZoneCodes() []string {
	codes := make([]string, 0, len(t.Zones))
	for c := range t.Zones {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool {
		ri, rj := t.Zones[codes[i]].Rank, t.Zones[codes[j]].Rank
		if ri != rj {
			return ri < rj
		}
		return codes[i] < codes[j]
	})
	return codes
}

// Validate checks the table invariants. Errors wrap ErrMalformedTable.
func (t RateTable) Validate() error {
	if strings.TrimSpace(t.Carrier.ID) == "" {
		return fmt.Errorf("%w: carrier id required", ErrMalformedTable)
	}
	if strings.TrimSpace(t.Service.ID) == "" {
		return fmt.Errorf("%w: %s: service id required", ErrMalformedTable, t.Carrier.ID)
	}
	if strings.TrimSpace(t.Service.Category) == "" {
		return fmt.Errorf("%w: %s: service category required", ErrMalformedTable, t.Key())
	}
	if len(t.Zones) == 0 {
		return fmt.Errorf("%w: %s: no zones", ErrMalformedTable, t.Key())
	}
	for _, code := range t.ZoneCodes() {
		if err := validateSlabs(t.Zones[code].Slabs); err != nil {
			return fmt.Errorf("%w: %s zone %s: %s", ErrMalformedTable, t.Key(), code, err)
		}
	}
	s := t.Surcharges
	if s.FuelPercent.IsNegative() {
		return fmt.Errorf("%w: %s: negative fuel percent", ErrMalformedTable, t.Key())
	}
	if s.COD.RatePercent.IsNegative() || s.COD.FlatMinimum.IsNegative() {
		return fmt.Errorf("%w: %s: negative cod charge", ErrMalformedTable, t.Key())
	}
	switch s.COD.Basis {
	case "", CODBasisFreight, CODBasisDeclaredValue:
	default:
		return fmt.Errorf("%w: %s: unknown cod basis %q", ErrMalformedTable, t.Key(), s.COD.Basis)
	}
	if t.VolumetricDivisor < 0 {
		return fmt.Errorf("%w: %s: negative volumetric divisor", ErrMalformedTable, t.Key())
	}
	return nil
}

func validateSlabs(slabs []WeightSlab) error {
	if len(slabs) == 0 {
		return fmt.Errorf("no slabs")
	}
	var prev int64
	for i, s := range slabs {
		switch {
		case s.BaseWeightGrams <= 0:
			return fmt.Errorf("slab %d: base weight must be positive", i)
		case s.BaseWeightGrams <= prev:
			return fmt.Errorf("slab %d: thresholds must be strictly increasing", i)
		case s.IncrementGrams <= 0:
			return fmt.Errorf("slab %d: increment weight must be positive", i)
		case s.BaseAmount.IsNegative() || s.IncrementAmount.IsNegative():
			return fmt.Errorf("slab %d: amounts must be non-negative", i)
		}
		prev = s.BaseWeightGrams
	}
	return nil
}

// Clone returns a deep copy that shares no mutable storage with t.
func (t RateTable) Clone() RateTable {
	out := t
	if t.Zones != nil {
		out.Zones = make(map[string]ZoneRates, len(t.Zones))
		for code, zr := range t.Zones {
			slabs := make([]WeightSlab, len(zr.Slabs))
			copy(slabs, zr.Slabs)
			out.Zones[code] = ZoneRates{Rank: zr.Rank, Slabs: slabs}
		}
	}
	return out
}
