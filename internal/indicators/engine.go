// Package indicators computes aligned technical-indicator columns over a
// candle series.
package indicators

import (
	"fmt"

	"backtest-core/internal/market"
)

// Compute builds a Frame holding one set of columns per distinct active spec.
// Inactive and nil specs are ignored; specs sharing a Key are computed once.
func Compute(series market.Series, specs ...Spec) (*Frame, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: empty series", ErrInsufficientData)
	}

	unique := make(map[string]Spec, len(specs))
	order := make([]string, 0, len(specs))
	for _, s := range specs {
		if s == nil || !s.IsActive() {
			continue
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		key := s.Key()
		if _, seen := unique[key]; seen {
			continue
		}
		unique[key] = s
		order = append(order, key)
	}

	f := &Frame{
		series: series,
		closes: series.Closes(),
		cols:   make(map[string][]float64),
	}
	for _, key := range order {
		for name, col := range unique[key].compute(f.closes) {
			f.cols[name] = col
		}
	}
	return f, nil
}
