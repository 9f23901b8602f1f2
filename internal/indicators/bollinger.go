package indicators

import "math"

// BollingerBands returns upper, middle and lower bands: SMA(period) +/- k times
// the population standard deviation over the same window.
func BollingerBands(values []float64, period int, k float64) (upper, middle, lower []float64) {
	middle = SMASeries(values, period)
	upper = nanSeries(len(values))
	lower = nanSeries(len(values))
	if period <= 0 {
		return upper, middle, lower
	}

	for i := period - 1; i < len(values); i++ {
		mean := middle[i]
		variance := 0.0
		for _, v := range values[i-period+1 : i+1] {
			d := v - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = mean + k*sd
		lower[i] = mean - k*sd
	}
	return upper, middle, lower
}
