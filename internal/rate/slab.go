package rate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ratequote/internal/ratecard"
)

// Bucketed is the slab a weight falls in. IncrementUnits is non-zero only when the weight
// exceeds the last threshold, in which case Slab is the last slab.
type Bucketed struct {
	Slab           ratecard.WeightSlab
	Index          int
	IncrementUnits int64
}

// Amount is the base freight for the bucket: the slab amount plus every increment unit.
func (b Bucketed) Amount() decimal.Decimal {
	return b.Slab.BaseAmount.Add(b.Slab.IncrementAmount.Mul(decimal.NewFromInt(b.IncrementUnits)))
}

// Bucket walks slabs in ascending threshold order and returns the first slab whose
// threshold is at least weightGrams. A weight on a threshold belongs to that slab. Weight
// beyond the last threshold is billed in whole increments of the last slab, rounding up.
func Bucket(weightGrams int64, slabs []ratecard.WeightSlab) (Bucketed, error) {
	if weightGrams <= 0 {
		return Bucketed{}, fmt.Errorf("%w: %d g", ErrInvalidWeight, weightGrams)
	}
	if len(slabs) == 0 {
		return Bucketed{}, fmt.Errorf("%w: no slabs", ratecard.ErrMalformedTable)
	}
	for i, s := range slabs {
		if weightGrams <= s.BaseWeightGrams {
			return Bucketed{Slab: s, Index: i}, nil
		}
	}

	i := len(slabs) - 1
	last := slabs[i]
	if last.IncrementGrams <= 0 {
		return Bucketed{}, fmt.Errorf("%w: last slab has no increment weight", ratecard.ErrMalformedTable)
	}
	over := weightGrams - last.BaseWeightGrams
	units := over / last.IncrementGrams
	if over%last.IncrementGrams != 0 {
		units++
	}
	return Bucketed{Slab: last, Index: i, IncrementUnits: units}, nil
}
