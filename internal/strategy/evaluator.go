package strategy

import (
	"backtest-core/internal/indicators"
)

// Evaluate reports whether every active indicator in cfg signals side at
// bar i. A side with no active indicator never signals, and an indicator
// whose value is undefined at i (still warming up) does not signal.
func Evaluate(f *indicators.Frame, i int, side Side, cfg SideConfig) bool {
	active := cfg.Active()
	if len(active) == 0 || f == nil {
		return false
	}
	for _, spec := range active {
		if !signals(spec, f, i, side) {
			return false
		}
	}
	return true
}

func signals(spec indicators.Spec, f *indicators.Frame, i int, side Side) bool {
	switch s := spec.(type) {
	case indicators.RSI:
		return rsiSignal(s, f, i, side)
	case indicators.MACD:
		return macdSignal(s, f, i, side)
	case indicators.SMA:
		return maSignal(s.Column(), f, i, side)
	case indicators.EMA:
		return maSignal(s.Column(), f, i, side)
	case indicators.Bollinger:
		return bollingerSignal(s, f, i, side)
	}
	return false
}
