// Package zone maps an origin/destination lane to the carrier-local zone used to index a
// rate table. Classification is table driven: a region directory places both ends of the
// lane, and each carrier's rules map the resulting lane class to one of its zone codes.
package zone

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvableZone is returned when no rule of a carrier matches a lane. Callers must
// not substitute a default zone.
var ErrUnresolvableZone = errors.New("unresolvable zone")

// Class is the carrier-neutral classification of a lane.
type Class string

const (
	ClassIntraCity     Class = "intra_city"
	ClassIntraRegion   Class = "intra_region"
	ClassMetro         Class = "metro"
	ClassRestOfCountry Class = "rest_of_country"
	ClassSpecial       Class = "special"
)

// Classes lists the lane classes from nearest to farthest.
var Classes = []Class{ClassIntraCity, ClassIntraRegion, ClassMetro, ClassRestOfCountry, ClassSpecial}

// Rank orders classes from nearest (1) to farthest. Unknown classes rank 0.
func (c Class) Rank() int {
	for i, k := range Classes {
		if k == c {
			return i + 1
		}
	}
	return 0
}

func (c Class) Valid() bool { return c.Rank() > 0 }

// Region is one entry of the reference directory, keyed by its code (a city or pincode
// prefix code such as "DEL").
type Region struct {
	Code    string `json:"code" yaml:"code"`
	City    string `json:"city" yaml:"city"`
	State   string `json:"state" yaml:"state"`
	Metro   bool   `json:"metro" yaml:"metro"`
	Special bool   `json:"special" yaml:"special"`
}

// Directory indexes regions by normalized code.
type Directory map[string]Region

// NewDirectory builds a directory, rejecting empty and duplicate codes.
func NewDirectory(regions ...Region) (Directory, error) {
	d := make(Directory, len(regions))
	for _, r := range regions {
		code := normalize(r.Code)
		if code == "" {
			return nil, fmt.Errorf("region code required")
		}
		if _, dup := d[code]; dup {
			return nil, fmt.Errorf("duplicate region %s", code)
		}
		r.Code = code
		d[code] = r
	}
	return d, nil
}

// Lookup returns the region stored under code.
func (d Directory) Lookup(code string) (Region, bool) {
	r, ok := d[normalize(code)]
	return r, ok
}

// Classify places the lane origin -> destination in a class. Intra-city and intra-region
// lanes win over everything; a special region at either end outranks metro pairing.
func (d Directory) Classify(origin, destination string) (Class, error) {
	o, ok := d.Lookup(origin)
	if !ok {
		return "", fmt.Errorf("%w: unknown region %q", ErrUnresolvableZone, origin)
	}
	t, ok := d.Lookup(destination)
	if !ok {
		return "", fmt.Errorf("%w: unknown region %q", ErrUnresolvableZone, destination)
	}
	sameState := o.State != "" && strings.EqualFold(o.State, t.State)
	switch {
	case o.Code == t.Code, sameState && o.City != "" && strings.EqualFold(o.City, t.City):
		return ClassIntraCity, nil
	case sameState:
		return ClassIntraRegion, nil
	case o.Special || t.Special:
		return ClassSpecial, nil
	case o.Metro && t.Metro:
		return ClassMetro, nil
	default:
		return ClassRestOfCountry, nil
	}
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
