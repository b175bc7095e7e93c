// Package util provides common helpers for price and quantity rounding.
package util

import "github.com/shopspring/decimal"

// FloorToStep rounds x down to the nearest multiple of step. A non-positive
// step returns x unchanged.
func FloorToStep(x, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return x
	}
	return x.Div(step).Floor().Mul(step)
}

// CeilToStep rounds x up to the nearest multiple of step. A non-positive
// step returns x unchanged.
func CeilToStep(x, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return x
	}
	return x.Div(step).Ceil().Mul(step)
}
