// Package rate prices a shipment against every matching carrier rate table and ranks the
// resulting quotes.
package rate

import (
	"fmt"
	"iter"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"ratequote/internal/logger"
	"ratequote/internal/ratecard"
)

// Catalog is the read side of the rate-card registry.
type Catalog interface {
	AllFor(category string) iter.Seq[ratecard.RateTable]
	ForCarrier(carrier, category string) ([]ratecard.RateTable, error)
}

// ZoneResolver resolves a carrier's zone for a lane.
type ZoneResolver interface {
	Resolve(carrier, origin, destination string) (ratecard.Zone, error)
}

// Source hands out the rate tables and zone charts of one installed catalog. Each quote
// reads Current once, so it never mixes two catalogs.
type Source interface {
	Current() (Catalog, ZoneResolver)
}

type fixedSource struct {
	tables Catalog
	zones  ZoneResolver
}

func (f fixedSource) Current() (Catalog, ZoneResolver) { return f.tables, f.zones }

// Dimensions of a parcel in centimetres.
type Dimensions struct {
	LengthCm decimal.Decimal `json:"length_cm"`
	WidthCm  decimal.Decimal `json:"width_cm"`
	HeightCm decimal.Decimal `json:"height_cm"`
}

// ShipmentRequest is the input of a quote. ServiceType is the service category to price
// (surface, express, dto). When Carriers is set only those carriers are priced.
type ShipmentRequest struct {
	WeightGrams   int64           `json:"weight_grams"`
	Origin        string          `json:"origin"`
	Destination   string          `json:"destination"`
	ServiceType   string          `json:"service_type"`
	IsCOD         bool            `json:"is_cod"`
	DeclaredValue decimal.Decimal `json:"declared_value"`
	Carriers      []string        `json:"carriers,omitempty"`
	Dimensions    *Dimensions     `json:"dimensions,omitempty"`
}

// Quote is one carrier service's price for a request.
type Quote struct {
	Carrier         ratecard.Carrier     `json:"carrier"`
	Service         ratecard.ServiceType `json:"service"`
	Zone            ratecard.Zone        `json:"zone"`
	Version         string               `json:"version"`
	ChargeableGrams int64                `json:"chargeable_grams"`
	SlabGrams       int64                `json:"slab_grams"`
	IncrementUnits  int64                `json:"increment_units"`
	BaseAmount      decimal.Decimal      `json:"base_amount"`
	CODSurcharge    decimal.Decimal      `json:"cod_surcharge"`
	FuelSurcharge   decimal.Decimal      `json:"fuel_surcharge"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
}

// Skip records a carrier that could not be priced. Service is empty when the carrier had
// no table at all.
type Skip struct {
	Carrier string
	Service string
	Reason  error
}

// Result holds the quotes ordered by total, cheapest first, and the skipped carriers.
type Result struct {
	Quotes  []Quote
	Skipped []Skip
}

// Engine computes quotes. It keeps no state between calls.
type Engine struct {
	src Source
	log *logger.Logger
}

// NewEngine prices against a fixed pair of tables and zone charts.
func NewEngine(tables Catalog, zones ZoneResolver, log *logger.Logger) *Engine {
	return NewEngineFrom(fixedSource{tables: tables, zones: zones}, log)
}

// NewEngineFrom prices against whatever catalog src holds at the time of each quote.
func NewEngineFrom(src Source, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{src: src, log: log}
}

// Quote prices req against every candidate table. Request faults are returned as errors;
// a carrier that cannot be priced is recorded in Result.Skipped and never drops the
// quotes of other carriers.
func (e *Engine) Quote(req ShipmentRequest) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	tables, zones := e.src.Current()
	var res Result
	for _, t := range candidates(tables, req, &res) {
		q, err := quoteTable(zones, req, t)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Carrier: t.Carrier.ID, Service: t.Service.ID, Reason: err})
			continue
		}
		res.Quotes = append(res.Quotes, q)
	}
	SortQuotes(res.Quotes)

	for _, s := range res.Skipped {
		e.log.Warn("carrier skipped", "carrier", s.Carrier, "service", s.Service, "reason", s.Reason.Error())
	}
	return res, nil
}

func validateRequest(req ShipmentRequest) error {
	if req.WeightGrams <= 0 {
		return fmt.Errorf("%w: %d g", ErrInvalidWeight, req.WeightGrams)
	}
	if strings.TrimSpace(req.ServiceType) == "" {
		return fmt.Errorf("%w: service type required", ErrInvalidRequest)
	}
	if req.DeclaredValue.IsNegative() {
		return fmt.Errorf("%w: negative declared value", ErrInvalidRequest)
	}
	if d := req.Dimensions; d != nil {
		if d.LengthCm.IsNegative() || d.WidthCm.IsNegative() || d.HeightCm.IsNegative() {
			return fmt.Errorf("%w: negative dimensions", ErrInvalidRequest)
		}
	}
	return nil
}

func candidates(tables Catalog, req ShipmentRequest, res *Result) []ratecard.RateTable {
	var out []ratecard.RateTable
	if len(req.Carriers) == 0 {
		for t := range tables.AllFor(req.ServiceType) {
			out = append(out, t)
		}
		return out
	}
	seen := make(map[string]bool, len(req.Carriers))
	for _, c := range req.Carriers {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		found, err := tables.ForCarrier(c, req.ServiceType)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Carrier: c, Reason: err})
			continue
		}
		out = append(out, found...)
	}
	return out
}

// quoteTable prices one table. A panic from malformed data is confined to this carrier.
func quoteTable(zones ZoneResolver, req ShipmentRequest, t ratecard.RateTable) (q Quote, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrQuoteFault, t.Key(), r)
		}
	}()

	resolved, err := zones.Resolve(t.Carrier.ID, req.Origin, req.Destination)
	if err != nil {
		return Quote{}, err
	}
	zone, slabs, ok := t.Zone(resolved.Code)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s has no rates for zone %s", ErrZoneNotPriced, t.Key(), resolved.Code)
	}

	chargeable, err := ChargeableGrams(req.WeightGrams, req.Dimensions, t.VolumetricDivisor)
	if err != nil {
		return Quote{}, fmt.Errorf("%s: %w", t.Key(), err)
	}
	b, err := Bucket(chargeable, slabs)
	if err != nil {
		return Quote{}, fmt.Errorf("%s zone %s: %w", t.Key(), zone.Code, err)
	}

	base := b.Amount()
	cod := t.Surcharges.COD
	codBasis := base
	if cod.Basis == ratecard.CODBasisDeclaredValue && req.DeclaredValue.IsPositive() {
		codBasis = req.DeclaredValue
	}
	codAmount := ApplyCOD(codBasis, cod.RatePercent, cod.FlatMinimum, req.IsCOD)
	fuel := ApplyFuelSurcharge(base, t.Surcharges.FuelPercent)

	return Quote{
		Carrier:         t.Carrier,
		Service:         t.Service,
		Zone:            zone,
		Version:         t.Version,
		ChargeableGrams: chargeable,
		SlabGrams:       b.Slab.BaseWeightGrams,
		IncrementUnits:  b.IncrementUnits,
		BaseAmount:      base,
		CODSurcharge:    codAmount,
		FuelSurcharge:   fuel,
		TotalAmount:     RoundTotal(base.Add(codAmount).Add(fuel)),
	}, nil
}

// ChargeableGrams is the greater of the actual weight and the volumetric weight
// L*W*H/divisor (in kg, rounded up to the gram). A zero divisor disables volumetric pricing.
// A volumetric weight that does not fit in int64 grams is ErrInvalidWeight.
func ChargeableGrams(actualGrams int64, d *Dimensions, divisor int64) (int64, error) {
	if d == nil || divisor <= 0 {
		return actualGrams, nil
	}
	volume := d.LengthCm.Mul(d.WidthCm).Mul(d.HeightCm)
	grams := volume.Mul(decimal.NewFromInt(1000)).Div(decimal.NewFromInt(divisor)).Ceil()
	if grams.GreaterThan(maxGrams) {
		return 0, fmt.Errorf("%w: volumetric weight %s g out of range", ErrInvalidWeight, grams)
	}
	if g := grams.IntPart(); g > actualGrams {
		return g, nil
	}
	return actualGrams, nil
}

var maxGrams = decimal.NewFromInt(math.MaxInt64)

// cheaper orders quotes by total, then carrier name, then carrier and service id.
func cheaper(a, b Quote) bool {
	if c := a.TotalAmount.Cmp(b.TotalAmount); c != 0 {
		return c < 0
	}
	if a.Carrier.Name != b.Carrier.Name {
		return a.Carrier.Name < b.Carrier.Name
	}
	if a.Carrier.ID != b.Carrier.ID {
		return a.Carrier.ID < b.Carrier.ID
	}
	return a.Service.ID < b.Service.ID
}

// SortQuotes orders quotes cheapest first.
func SortQuotes(quotes []Quote) {
	sort.SliceStable(quotes, func(i, j int) bool { return cheaper(quotes[i], quotes[j]) })
}

// CompareCheapest returns the cheapest quote; equal totals go to the carrier name that
// sorts first. It reports false for an empty set.
func CompareCheapest(quotes []Quote) (Quote, bool) {
	if len(quotes) == 0 {
		return Quote{}, false
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if cheaper(q, best) {
			best = q
		}
	}
	return best, true
}
