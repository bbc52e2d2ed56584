package models

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Round2 rounds v to two decimal places, ties to even.
// Rounding works on the exact binary value of v, so 2.675 (stored as
// 2.67499999...) becomes 2.67 and 0.125 becomes 0.12.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// RoundDecimal rounds an exact decimal to two places, ties to even.
// NUMERIC columns go through here so 2.675 stays a tie and becomes 2.68.
func RoundDecimal(d decimal.Decimal) float64 {
	return d.RoundBank(2).InexactFloat64()
}

// RoundKey converts a zone number to its integer key, ties to even
func RoundKey(v float64) int {
	return int(math.RoundToEven(v))
}
