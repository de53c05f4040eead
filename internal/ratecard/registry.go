package ratecard

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Registry is the catalog of rate tables. Reads are lock-free against an immutable
// snapshot; writes build a new snapshot and swap it in, so a reader never sees a
// partially updated table.
type Registry struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	tables map[Key]RateTable
	keys   []Key // sorted
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(newSnapshot(nil))
	return r
}

func newSnapshot(tables map[Key]RateTable) *snapshot {
	if tables == nil {
		tables = map[Key]RateTable{}
	}
	keys := make([]Key, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Carrier != keys[j].Carrier {
			return keys[i].Carrier < keys[j].Carrier
		}
		return keys[i].Service < keys[j].Service
	})
	return &snapshot{tables: tables, keys: keys}
}

// Register adds or replaces the table stored under its (carrier, service) key.
func (r *Registry) Register(table RateTable) error {
	if err := table.Validate(); err != nil {
		return err
	}
	table = table.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.snap.Load()
	next := make(map[Key]RateTable, len(cur.tables)+1)
	for k, v := range cur.tables {
		next[k] = v
	}
	next[table.Key()] = table
	r.snap.Store(newSnapshot(next))
	return nil
}

// Replace swaps the whole catalog for tables. Nothing is replaced if any table is invalid
// or two tables share a key.
func (r *Registry) Replace(tables []RateTable) error {
	next := make(map[Key]RateTable, len(tables))
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := next[t.Key()]; dup {
			return fmt.Errorf("%w: duplicate table %s", ErrMalformedTable, t.Key())
		}
		next[t.Key()] = t.Clone()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Store(newSnapshot(next))
	return nil
}

// Lookup returns a copy of the table registered for carrier and service.
func (r *Registry) Lookup(carrier, service string) (RateTable, error) {
	t, ok := r.snap.Load().tables[Key{Carrier: carrier, Service: service}]
	if !ok {
		return RateTable{}, fmt.Errorf("%w: %s/%s", ErrNotFound, carrier, service)
	}
	return t.Clone(), nil
}

// AllFor yields every table whose service belongs to category, in key order. The
// sequence is bound to the catalog current at call time and may be ranged repeatedly.
func (r *Registry) AllFor(category string) iter.Seq[RateTable] {
	snap := r.snap.Load()
	return func(yield func(RateTable) bool) {
		for _, k := range snap.keys {
			t := snap.tables[k]
			if !strings.EqualFold(t.Service.Category, category) {
				continue
			}
			if !yield(t.Clone()) {
				return
			}
		}
	}
}

// ForCarrier returns the carrier's tables in category, or ErrNotFound if it has none.
func (r *Registry) ForCarrier(carrier, category string) ([]RateTable, error) {
	snap := r.snap.Load()
	var out []RateTable
	for _, k := range snap.keys {
		if k.Carrier != carrier {
			continue
		}
		if t := snap.tables[k]; strings.EqualFold(t.Service.Category, category) {
			out = append(out, t.Clone())
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: carrier %s has no %s service", ErrNotFound, carrier, category)
	}
	return out, nil
}

// Keys lists the registered keys in order.
func (r *Registry) Keys() []Key {
	keys := r.snap.Load().keys
	out := make([]Key, len(keys))
	copy(out, keys)
	return out
}

func (r *Registry) Len() int { return len(r.snap.Load().keys) }
