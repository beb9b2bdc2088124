// Package money holds the currency conventions shared by the calculators:
// amounts are decimals rounded to whole currency units.
package money

import "github.com/shopspring/decimal"

// Whole rounds d to whole currency units, half away from zero.
func Whole(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Sum adds all amounts.
func Sum(ds ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}

// IsWhole reports whether d carries no fractional currency part.
func IsWhole(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}
