package rate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestApplyCOD_WhicheverIsHigher(t *testing.T) {
	cases := []struct {
		base, rate, min string
		want            string
	}{
		{"2000", "2.25", "60", "60"},
		{"4000", "2.25", "60", "90"},
		{"2666.67", "2.25", "60", "60.000075"},
		{"0", "2", "40", "40"},
		{"1000", "0", "0", "0"},
	}
	for _, tc := range cases {
		got := ApplyCOD(d(tc.base), d(tc.rate), d(tc.min), true)
		assert.True(t, d(tc.want).Equal(got), "base %s: got %s want %s", tc.base, got, tc.want)
	}
}

func TestApplyCOD_NotCOD(t *testing.T) {
	got := ApplyCOD(d("2000"), d("2.25"), d("60"), false)
	assert.True(t, got.IsZero())
}

func TestApplyFuelSurcharge(t *testing.T) {
	assert.True(t, d("14.5").Equal(ApplyFuelSurcharge(d("116"), d("12.5"))))
	assert.True(t, d("0.0775").Equal(ApplyFuelSurcharge(d("77.5"), d("0.1"))))

	zero := ApplyFuelSurcharge(d("77.53"), decimal.Zero)
	assert.True(t, zero.IsZero())
	assert.Equal(t, "0", zero.String())
}

func TestRoundTotal_HalfUp(t *testing.T) {
	cases := map[string]string{
		"10.005":    "10.01",
		"10.004999": "10",
		"112.5":     "112.5",
		"0.125":     "0.13",
		"99.995":    "100",
	}
	for in, want := range cases {
		assert.Equal(t, want, RoundTotal(d(in)).String(), in)
	}
	assert.Equal(t, "10.00", RoundTotal(d("10.004")).StringFixed(2))
}

func TestRoundingOnlyAtTotal(t *testing.T) {
	// 0.333 + 0.333 + 0.333 rounds to 1.00 as a sum; rounding each part first would give 0.99.
	base, cod, fuel := d("0.333"), d("0.333"), d("0.333")
	assert.Equal(t, "1", RoundTotal(base.Add(cod).Add(fuel)).String())
	assert.Equal(t, "0.99", RoundTotal(base).Add(RoundTotal(cod)).Add(RoundTotal(fuel)).String())
}
