package strategy

import "backtest-core/internal/indicators"

// rsiSignal buys when RSI is at or below the threshold (oversold) and
// sells when it is at or above it (overbought).
func rsiSignal(s indicators.RSI, f *indicators.Frame, i int, side Side) bool {
	rsi, ok := f.Value(s.Column(), i)
	if !ok {
		return false
	}
	if side == SideBuy {
		return rsi <= s.Threshold
	}
	return rsi >= s.Threshold
}
