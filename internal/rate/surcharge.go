package rate

import "github.com/shopspring/decimal"

// ApplyCOD returns the cash-on-delivery charge: ratePercent of amount or flatMinimum,
// whichever is higher. Non-COD shipments pay nothing.
func ApplyCOD(amount, ratePercent, flatMinimum decimal.Decimal, isCOD bool) decimal.Decimal {
	if !isCOD {
		return decimal.Zero
	}
	return decimal.Max(percentOf(amount, ratePercent), flatMinimum)
}

// ApplyFuelSurcharge returns fuelPercent of amount.
func ApplyFuelSurcharge(amount, fuelPercent decimal.Decimal) decimal.Decimal {
	if fuelPercent.IsZero() {
		return decimal.Zero
	}
	return percentOf(amount, fuelPercent)
}

// RoundTotal rounds a final amount to two decimal places, halves rounding up. Components
// are never rounded on their own.
func RoundTotal(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Shift(-2)
}
