package indicators

import "math"

// MACDSeries returns the MACD line (EMA fast - EMA slow), its signal line
// (EMA of the line) and the histogram (line - signal).
func MACDSeries(values []float64, fast, slow, signal int) (line, sig, hist []float64) {
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)

	line = nanSeries(len(values))
	for i := range values {
		if math.IsNaN(fastEMA[i]) || math.IsNaN(slowEMA[i]) {
			continue
		}
		line[i] = fastEMA[i] - slowEMA[i]
	}

	sig = EMASeries(line, signal)
	hist = nanSeries(len(values))
	for i := range values {
		if math.IsNaN(line[i]) || math.IsNaN(sig[i]) {
			continue
		}
		hist[i] = line[i] - sig[i]
	}
	return line, sig, hist
}
