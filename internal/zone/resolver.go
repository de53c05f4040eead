package zone

import (
	"fmt"
	"sync"
	"sync/atomic"

	"ratequote/internal/ratecard"
)

// Lane is an exact origin -> destination pair.
type Lane struct {
	Origin      string
	Destination string
}

// Rules is one carrier's zone chart. Lanes are exact overrides checked before the
// class mapping.
type Rules struct {
	Carrier string
	Classes map[Class]string
	Lanes   map[Lane]string
}

// Resolver resolves zones for every carrier of the catalog. Its directory and rules are
// replaced as a whole, never edited in place.
type Resolver struct {
	mu   sync.Mutex
	snap atomic.Pointer[charts]
}

type charts struct {
	dir   Directory
	rules map[string]Rules
}

// NewResolver returns a resolver over dir and rules.
func NewResolver(dir Directory, rules ...Rules) (*Resolver, error) {
	r := &Resolver{}
	if err := r.Replace(dir, rules); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps the directory and the carrier rules atomically.
func (r *Resolver) Replace(dir Directory, rules []Rules) error {
	next := &charts{dir: make(Directory, len(dir)), rules: make(map[string]Rules, len(rules))}
	for code, reg := range dir {
		next.dir[normalize(code)] = reg
	}
	for _, rl := range rules {
		if rl.Carrier == "" {
			return fmt.Errorf("zone rules: carrier required")
		}
		if _, dup := next.rules[rl.Carrier]; dup {
			return fmt.Errorf("zone rules: duplicate carrier %s", rl.Carrier)
		}
		cp := Rules{Carrier: rl.Carrier, Classes: make(map[Class]string, len(rl.Classes)), Lanes: make(map[Lane]string, len(rl.Lanes))}
		for c, z := range rl.Classes {
			if !c.Valid() {
				return fmt.Errorf("zone rules %s: unknown class %q", rl.Carrier, c)
			}
			cp.Classes[c] = z
		}
		for l, z := range rl.Lanes {
			cp.Lanes[Lane{Origin: normalize(l.Origin), Destination: normalize(l.Destination)}] = z
		}
		next.rules[rl.Carrier] = cp
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Store(next)
	return nil
}

// Resolve returns the carrier's zone for the lane. Rank is the class rank of the lane,
// or zero for a lane override whose ends are not in the directory.
func (r *Resolver) Resolve(carrier, origin, destination string) (ratecard.Zone, error) {
	c := r.snap.Load()
	rl, ok := c.rules[carrier]
	if !ok {
		return ratecard.Zone{}, fmt.Errorf("%w: no zone chart for carrier %s", ErrUnresolvableZone, carrier)
	}

	class, classErr := c.dir.Classify(origin, destination)
	if code, ok := rl.Lanes[Lane{Origin: normalize(origin), Destination: normalize(destination)}]; ok {
		return ratecard.Zone{Code: code, Rank: class.Rank()}, nil
	}
	if classErr != nil {
		return ratecard.Zone{}, fmt.Errorf("carrier %s lane %s->%s: %w", carrier, origin, destination, classErr)
	}
	code, ok := rl.Classes[class]
	if !ok {
		return ratecard.Zone{}, fmt.Errorf("%w: carrier %s has no zone for %s lane %s->%s", ErrUnresolvableZone, carrier, class, origin, destination)
	}
	return ratecard.Zone{Code: code, Rank: class.Rank()}, nil
}

// Carriers returns the number of carriers with a zone chart.
func (r *Resolver) Carriers() int { return len(r.snap.Load().rules) }
