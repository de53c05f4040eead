package loader_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratequote/internal/db"
	"ratequote/internal/loader"
	"ratequote/internal/ratecard"
)

func TestPostgresLoadIntegration(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
		return
	}

	pool, err := db.NewPool(t.Context(), dbURL)
	require.NoError(t, err, "connect db")
	defer pool.Close()
	require.NoError(t, loader.EnsureSchema(t.Context(), pool))

	carrier := "it-" + uuid.NewString()[:8]
	defer func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM rate_slabs WHERE carrier_id = $1`, carrier)
		_, _ = pool.Exec(ctx, `DELETE FROM rate_carriers WHERE id = $1`, carrier)
	}()

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO rate_regions (code, city, state, metro) VALUES ('DEL', 'New Delhi', 'DL', true) ON CONFLICT (code) DO NOTHING`, nil},
		{`INSERT INTO rate_carriers (id, name) VALUES ($1, 'Integration Carrier')`, []any{carrier}},
		{`INSERT INTO rate_zone_rules (carrier_id, lane_class, zone_code) VALUES ($1, 'metro', 'M')`, []any{carrier}},
		{`INSERT INTO rate_lane_overrides (carrier_id, origin, destination, zone_code) VALUES ($1, 'DEL', 'GGN', 'L')`, []any{carrier}},
		{`INSERT INTO rate_services (carrier_id, service_id, category, version, fuel_percent, cod_rate_percent, cod_flat_minimum)
		  VALUES ($1, 'surface', 'surface', 'v1', 12.5, 2, 40)`, []any{carrier}},
		{`INSERT INTO rate_slabs (carrier_id, service_id, zone_code, zone_rank, base_weight_grams, increment_grams, base_amount, increment_amount)
		  VALUES ($1, 'surface', 'M', 3, 500, 500, 60.00, 30.00), ($1, 'surface', 'M', 3, 2000, 1000, 140.00, 55.00)`, []any{carrier}},
	}
	for _, s := range stmts {
		_, err := pool.Exec(t.Context(), s.sql, s.args...)
		require.NoError(t, err, s.sql)
	}

	l, err := loader.NewByName("postgres", loader.Options{DB: pool})
	require.NoError(t, err)
	cat, err := l.Load(t.Context())
	require.NoError(t, err)

	var got *ratecard.RateTable
	for i := range cat.Tables {
		if cat.Tables[i].Carrier.ID == carrier {
			got = &cat.Tables[i]
		}
	}
	require.NotNil(t, got, "loaded tables should include %s", carrier)
	assert.Equal(t, "Integration Carrier", got.Carrier.Name)
	assert.True(t, got.Surcharges.FuelPercent.Equal(d("12.5")))
	assert.True(t, got.Surcharges.COD.FlatMinimum.Equal(d("40")))
	assert.Equal(t, ratecard.CODBasisFreight, got.Surcharges.COD.Basis)
	require.Len(t, got.Zones["M"].Slabs, 2)
	assert.Equal(t, int64(2000), got.Zones["M"].Slabs[1].BaseWeightGrams)
	assert.True(t, got.Zones["M"].Slabs[1].BaseAmount.Equal(d("140")))

	var found bool
	for _, r := range cat.Rules {
		if r.Carrier == carrier {
			found = true
			assert.Equal(t, "M", r.Classes["metro"])
			assert.Len(t, r.Lanes, 1)
		}
	}
	assert.True(t, found, "zone rules should include %s", carrier)
}
