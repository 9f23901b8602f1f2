package strategy

import "backtest-core/internal/indicators"

// macdSignal buys while the MACD line is above its signal line and sells
// while it is below.
func macdSignal(s indicators.MACD, f *indicators.Frame, i int, side Side) bool {
	line, ok := f.Value(s.LineColumn(), i)
	if !ok {
		return false
	}
	sig, ok := f.Value(s.SignalColumn(), i)
	if !ok {
		return false
	}
	if side == SideBuy {
		return line > sig
	}
	return line < sig
}
