package engine

import (
	"github.com/shopspring/decimal"

	"gridhook/exchange"
)

// displayPrecision is applied when a symbol carries no step or tick
// constraint, to strip float artifacts from upstream senders
const displayPrecision = 8

// Normalize maps a raw (quantity, price) pair onto exchange-legal values.
// Quantity is floored to a multiple of the step size and price to a multiple
// of the tick size; flooring never over-orders. An unconstrained axis (zero
// step or tick) passes through truncated to 8 decimal places. The function is
// pure and never fails; it clamps rather than rejects.
func Normalize(quantity, price decimal.Decimal, f exchange.Filters) (decimal.Decimal, decimal.Decimal) {
	return floorToIncrement(quantity, f.StepSize), floorToIncrement(price, f.TickSize)
}

func floorToIncrement(v, increment decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if increment.IsZero() {
		return v.Truncate(displayPrecision)
	}
	return v.Div(increment).Floor().Mul(increment)
}
