package loader

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"ratequote/internal/ratecard"
	"ratequote/internal/zone"
)

//go:embed schema.sql
var schema string

// Querier is the part of *pgxpool.Pool the postgres source uses.
type Querier interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres reads a catalog from the rate_* tables.
type Postgres struct {
	db Querier
}

func NewPostgres(db Querier) *Postgres { return &Postgres{db: db} }

// EnsureSchema creates the rate card tables if they do not exist.
func EnsureSchema(ctx context.Context, db Querier) error {
	_, err := db.Exec(ctx, schema)
	return err
}

// Load reads every table inside one read-only repeatable-read transaction, so the catalog
// is a consistent snapshot even while rates are being edited.
func (p *Postgres) Load(ctx context.Context) (Catalog, error) {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Catalog{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cat Catalog
	if cat.Regions, err = loadRegions(ctx, tx); err != nil {
		return Catalog{}, fmt.Errorf("loading regions: %w", err)
	}
	carriers, rules, err := loadCarriers(ctx, tx)
	if err != nil {
		return Catalog{}, fmt.Errorf("loading carriers: %w", err)
	}
	tables, err := loadTables(ctx, tx, carriers)
	if err != nil {
		return Catalog{}, fmt.Errorf("loading rate tables: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Catalog{}, err
	}

	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return Catalog{}, err
		}
	}
	cat.Tables = tables
	cat.Rules = rules
	return cat, nil
}

func loadRegions(ctx context.Context, tx pgx.Tx) ([]zone.Region, error) {
	rows, err := tx.Query(ctx, `SELECT code, city, state, metro, special FROM rate_regions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []zone.Region
	for rows.Next() {
		var r zone.Region
		if err := rows.Scan(&r.Code, &r.City, &r.State, &r.Metro, &r.Special); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func loadCarriers(ctx context.Context, tx pgx.Tx) (map[string]ratecard.Carrier, []zone.Rules, error) {
	rows, err := tx.Query(ctx, `SELECT id, name FROM rate_carriers ORDER BY id`)
	if err != nil {
		return nil, nil, err
	}
	carriers := map[string]ratecard.Carrier{}
	var order []string
	for rows.Next() {
		var c ratecard.Carrier
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			rows.Close()
			return nil, nil, err
		}
		carriers[c.ID] = c
		order = append(order, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	byCarrier := make(map[string]*zone.Rules, len(order))
	for _, id := range order {
		byCarrier[id] = &zone.Rules{Carrier: id, Classes: map[zone.Class]string{}, Lanes: map[zone.Lane]string{}}
	}

	rows, err = tx.Query(ctx, `SELECT carrier_id, lane_class, zone_code FROM rate_zone_rules`)
	if err != nil {
		return nil, nil, err
	}
	for rows.Next() {
		var carrier, class, code string
		if err := rows.Scan(&carrier, &class, &code); err != nil {
			rows.Close()
			return nil, nil, err
		}
		if r, ok := byCarrier[carrier]; ok {
			r.Classes[zone.Class(class)] = code
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = tx.Query(ctx, `SELECT carrier_id, origin, destination, zone_code FROM rate_lane_overrides`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var carrier, origin, destination, code string
		if err := rows.Scan(&carrier, &origin, &destination, &code); err != nil {
			return nil, nil, err
		}
		if r, ok := byCarrier[carrier]; ok {
			r.Lanes[zone.Lane{Origin: origin, Destination: destination}] = code
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rules := make([]zone.Rules, 0, len(order))
	for _, id := range order {
		rules = append(rules, *byCarrier[id])
	}
	return carriers, rules, nil
}

func loadTables(ctx context.Context, tx pgx.Tx, carriers map[string]ratecard.Carrier) ([]ratecard.RateTable, error) {
	rows, err := tx.Query(ctx, `
        SELECT carrier_id, service_id, category, version,
               fuel_percent::text, cod_rate_percent::text, cod_flat_minimum::text,
               cod_basis, volumetric_divisor
        FROM rate_services
        ORDER BY carrier_id, service_id`)
	if err != nil {
		return nil, err
	}
	var order []ratecard.Key
	tables := map[ratecard.Key]*ratecard.RateTable{}
	for rows.Next() {
		var (
			carrierID, basis      string
			fuel, codRate, codMin string
			t                     ratecard.RateTable
		)
		if err := rows.Scan(&carrierID, &t.Service.ID, &t.Service.Category, &t.Version,
			&fuel, &codRate, &codMin, &basis, &t.VolumetricDivisor); err != nil {
			rows.Close()
			return nil, err
		}
		c, ok := carriers[carrierID]
		if !ok {
			continue
		}
		t.Carrier = c
		t.Zones = map[string]ratecard.ZoneRates{}
		t.Surcharges.COD.Basis = ratecard.CODBasis(basis)
		if err := parseDecimals(
			[]string{fuel, codRate, codMin},
			[]*decimal.Decimal{&t.Surcharges.FuelPercent, &t.Surcharges.COD.RatePercent, &t.Surcharges.COD.FlatMinimum},
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%s/%s: %w", carrierID, t.Service.ID, err)
		}
		tables[t.Key()] = &t
		order = append(order, t.Key())
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `
        SELECT carrier_id, service_id, zone_code, zone_rank,
               base_weight_grams, increment_grams, base_amount::text, increment_amount::text
        FROM rate_slabs
        ORDER BY carrier_id, service_id, zone_code, base_weight_grams`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key          ratecard.Key
			code         string
			rank         int
			s            ratecard.WeightSlab
			amount, incr string
		)
		if err := rows.Scan(&key.Carrier, &key.Service, &code, &rank,
			&s.BaseWeightGrams, &s.IncrementGrams, &amount, &incr); err != nil {
			return nil, err
		}
		t, ok := tables[key]
		if !ok {
			continue
		}
		if err := parseDecimals([]string{amount, incr}, []*decimal.Decimal{&s.BaseAmount, &s.IncrementAmount}); err != nil {
			return nil, fmt.Errorf("%s zone %s: %w", key, code, err)
		}
		zr := t.Zones[code]
		zr.Rank = rank
		zr.Slabs = append(zr.Slabs, s)
		t.Zones[code] = zr
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ratecard.RateTable, 0, len(order))
	for _, k := range order {
		out = append(out, *tables[k])
	}
	return out, nil
}

func parseDecimals(in []string, out []*decimal.Decimal) error {
	for i, s := range in {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		*out[i] = v
	}
	return nil
}
