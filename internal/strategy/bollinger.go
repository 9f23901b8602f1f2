package strategy

import "backtest-core/internal/indicators"

// bollingerSignal buys when the close touches or breaks the lower band and
// sells when it touches or breaks the upper band.
func bollingerSignal(s indicators.Bollinger, f *indicators.Frame, i int, side Side) bool {
	price, ok := f.Close(i)
	if !ok {
		return false
	}
	if side == SideBuy {
		lower, ok := f.Value(s.LowerColumn(), i)
		return ok && price <= lower
	}
	upper, ok := f.Value(s.UpperColumn(), i)
	return ok && price >= upper
}
