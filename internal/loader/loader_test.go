package loader_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratequote/internal/loader"
	"ratequote/internal/rate"
	"ratequote/internal/ratecard"
	"ratequote/internal/zone"
)

func TestNewByName(t *testing.T) {
	l, err := loader.NewByName("file", loader.Options{Path: "cards.yaml"})
	require.NoError(t, err)
	_, ok := l.(*loader.YAML)
	assert.True(t, ok, "expected *YAML from NewByName('file')")

	l, err = loader.NewByName("", loader.Options{Path: "cards.yaml"})
	require.NoError(t, err)
	assert.IsType(t, &loader.YAML{}, l)

	_, err = loader.NewByName("file", loader.Options{})
	assert.ErrorContains(t, err, "path is not set")

	_, err = loader.NewByName("postgres", loader.Options{})
	assert.ErrorContains(t, err, "needs a database")

	_, err = loader.NewByName("karrio", loader.Options{})
	assert.ErrorContains(t, err, `unknown rate card source "karrio"`)
}

func TestApply_AllOrNothing(t *testing.T) {
	good, err := loader.Parse([]byte(miniCard))
	require.NoError(t, err)

	live := loader.NewLive()
	require.NoError(t, good.Apply(live))
	require.Equal(t, 1, live.Tables().Len())

	badRegions := good
	badRegions.Regions = append([]zone.Region{}, good.Regions...)
	badRegions.Regions = append(badRegions.Regions, zone.Region{Code: "del"})
	assert.ErrorContains(t, badRegions.Apply(live), "duplicate region")

	badRules := good
	badRules.Rules = []zone.Rules{{Carrier: "delhivery", Classes: map[zone.Class]string{"orbit": "Z9"}}}
	assert.ErrorContains(t, badRules.Apply(live), "unknown class")

	badTables := good
	badTables.Tables = append([]ratecard.RateTable{}, good.Tables...)
	badTables.Tables = append(badTables.Tables, good.Tables[0])
	assert.ErrorIs(t, badTables.Apply(live), ratecard.ErrMalformedTable)

	// the catalog installed first is still in place
	_, err = live.Tables().Lookup("delhivery", "surface")
	require.NoError(t, err)
	z, err := live.Zones().Resolve("delhivery", "DEL", "BOM")
	require.NoError(t, err)
	assert.Equal(t, "C", z.Code)
}

func TestApply_EmptyCatalogClears(t *testing.T) {
	good, err := loader.Parse([]byte(miniCard))
	require.NoError(t, err)
	live := loader.NewLive()
	require.NoError(t, good.Apply(live))

	require.NoError(t, loader.Catalog{}.Apply(live))
	assert.Equal(t, 0, live.Tables().Len())
	assert.Equal(t, 0, live.Zones().Carriers())
}

// A reader holding one Current pair keeps both halves of its load across a reload, and
// readers after the swap see both halves of the new one.
func TestApply_SingleSwap(t *testing.T) {
	first, err := loader.Parse([]byte(miniCard))
	require.NoError(t, err)
	live := loader.NewLive()
	require.NoError(t, first.Apply(live))
	oldTables, oldZones := live.Current()

	second := first
	second.Rules = []zone.Rules{{Carrier: "delhivery", Classes: map[zone.Class]string{zone.ClassMetro: "A"}}}
	require.NoError(t, second.Apply(live))

	z, err := oldZones.Resolve("delhivery", "DEL", "BOM")
	require.NoError(t, err)
	assert.Equal(t, "C", z.Code)
	_, err = oldTables.ForCarrier("delhivery", "surface")
	require.NoError(t, err)

	_, newZones := live.Current()
	z, err = newZones.Resolve("delhivery", "DEL", "BOM")
	require.NoError(t, err)
	assert.Equal(t, "A", z.Code)
}

func TestLive_ConcurrentReadersDuringReload(t *testing.T) {
	a, err := loader.Parse([]byte(miniCard))
	require.NoError(t, err)
	// b moves metro lanes to zone A and reprices zone A, so a mixed read would price
	// zone A from the wrong table
	b, err := loader.Parse([]byte(strings.Replace(strings.Replace(miniCard,
		"metro: C", "metro: A", 1), "base_amount: 77.5", "base_amount: 80", 1)))
	require.NoError(t, err)

	live := loader.NewLive()
	require.NoError(t, a.Apply(live))
	engine := rate.NewEngineFrom(live, nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			cat := a
			if i%2 == 1 {
				cat = b
			}
			_ = cat.Apply(live)
		}
	}()

	for i := 0; i < 2000; i++ {
		res, err := engine.Quote(rate.ShipmentRequest{WeightGrams: 400, Origin: "DEL", Destination: "BOM", ServiceType: "surface"})
		require.NoError(t, err)
		require.Len(t, res.Quotes, 1)
		q := res.Quotes[0]
		switch q.Zone.Code {
		case "C":
			assert.Equal(t, "90.00", q.TotalAmount.StringFixed(2))
		case "A":
			assert.Equal(t, "80.00", q.TotalAmount.StringFixed(2))
		default:
			t.Fatalf("unexpected zone %s", q.Zone.Code)
		}
	}
	close(stop)
	wg.Wait()
}
