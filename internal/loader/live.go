package loader

import (
	"sync/atomic"

	"ratequote/internal/rate"
	"ratequote/internal/ratecard"
	"ratequote/internal/zone"
)

// Live holds the installed catalog. Tables and zone charts sit behind one pointer, so a
// reload is a single swap and readers see both halves of the same load.
type Live struct {
	cur atomic.Pointer[installed]
}

type installed struct {
	tables *ratecard.Registry
	zones  *zone.Resolver
}

// NewLive returns an empty catalog.
func NewLive() *Live {
	l := &Live{}
	zones, _ := zone.NewResolver(nil) // no rules, cannot fail
	l.cur.Store(&installed{tables: ratecard.NewRegistry(), zones: zones})
	return l
}

// Current implements rate.Source.
func (l *Live) Current() (rate.Catalog, rate.ZoneResolver) {
	c := l.cur.Load()
	return c.tables, c.zones
}

// Tables returns the registry of the installed catalog.
func (l *Live) Tables() *ratecard.Registry { return l.cur.Load().tables }

// Zones returns the resolver of the installed catalog.
func (l *Live) Zones() *zone.Resolver { return l.cur.Load().zones }
