package strategy

import "backtest-core/internal/indicators"

// maSignal compares the close with a moving-average column: above buys,
// below sells. Equality signals neither side.
func maSignal(column string, f *indicators.Frame, i int, side Side) bool {
	price, ok := f.Close(i)
	if !ok {
		return false
	}
	ma, ok := f.Value(column, i)
	if !ok {
		return false
	}
	if side == SideBuy {
		return price > ma
	}
	return price < ma
}
