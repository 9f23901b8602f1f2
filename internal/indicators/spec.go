package indicators

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	ErrInsufficientData       = errors.New("insufficient price data")
	ErrInvalidIndicatorConfig = errors.New("invalid indicator config")
)

// Kind names an indicator family.
type Kind string

const (
	KindRSI       Kind = "rsi"
	KindMACD      Kind = "macd"
	KindSMA       Kind = "sma"
	KindEMA       Kind = "ema"
	KindBollinger Kind = "bollinger"
)

// Kinds lists every supported indicator kind.
var Kinds = []Kind{KindRSI, KindMACD, KindSMA, KindEMA, KindBollinger}

// ParseKind maps a lower-case kind name to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown indicator %q", ErrInvalidIndicatorConfig, s)
}

const (
	DefaultRSIPeriod        = 14
	DefaultRSIBuyThreshold  = 30.0
	DefaultRSISellThreshold = 70.0
	DefaultMACDFast         = 12
	DefaultMACDSlow         = 26
	DefaultMACDSignal       = 9
	DefaultBollingerPeriod  = 20
	DefaultBollingerStdDev  = 2.0

	// MaxPeriod caps every indicator period.
	MaxPeriod = 10000
)

func checkPeriod(name string, p int) error {
	if p <= 0 || p > MaxPeriod {
		return fmt.Errorf("%w: %s period %d outside [1,%d]", ErrInvalidIndicatorConfig, name, p, MaxPeriod)
	}
	return nil
}

// Spec is one requested indicator computation. The set of implementations
// is closed: RSI, MACD, SMA, EMA and Bollinger.
type Spec interface {
	Kind() Kind
	IsActive() bool
	// Validate reports parameters that cannot produce a series.
	Validate() error
	// Lookback is the first 0-based bar index carrying a defined value.
	Lookback() int
	// Key identifies the computation; specs with equal keys share columns.
	Key() string

	compute(closes []float64) map[string][]float64
}

// RSI is the Relative Strength Index. Threshold is the level compared
// against by the signal evaluator and does not affect the series.
type RSI struct {
	Active    bool    `json:"active" yaml:"active"`
	Period    int     `json:"period" yaml:"period"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

func (s RSI) Kind() Kind { return KindRSI }
func (s RSI) IsActive() bool { return s.Active }
func (s RSI) Lookback() int { return s.Period }
func (s RSI) Key() string { return "rsi_" + strconv.Itoa(s.Period) }
func (s RSI) Column() string { return s.Key() }

func (s RSI) Validate() error {
	if err := checkPeriod("rsi", s.Period); err != nil {
		return err
	}
	if math.IsNaN(s.Threshold) || s.Threshold < 0 || s.Threshold > 100 {
		return fmt.Errorf("%w: rsi threshold %v outside [0,100]", ErrInvalidIndicatorConfig, s.Threshold)
	}
	return nil
}

func (s RSI) compute(closes []float64) map[string][]float64 {
	return map[string][]float64{s.Column(): RSISeries(closes, s.Period)}
}

// MACD is the moving average convergence/divergence oscillator.
type MACD struct {
	Active bool `json:"active" yaml:"active"`
	Fast   int  `json:"fast" yaml:"fast"`
	Slow   int  `json:"slow" yaml:"slow"`
	Signal int  `json:"signal" yaml:"signal"`
}

func (s MACD) Kind() Kind { return KindMACD }
func (s MACD) IsActive() bool { return s.Active }
func (s MACD) Lookback() int { return s.Slow + s.Signal - 2 }

func (s MACD) Key() string {
	return fmt.Sprintf("macd_%d_%d_%d", s.Fast, s.Slow, s.Signal)
}

func (s MACD) LineColumn() string { return s.Key() }
func (s MACD) SignalColumn() string { return fmt.Sprintf("macd_signal_%d_%d_%d", s.Fast, s.Slow, s.Signal) }
func (s MACD) HistColumn() string { return fmt.Sprintf("macd_hist_%d_%d_%d", s.Fast, s.Slow, s.Signal) }

func (s MACD) Validate() error {
	for _, p := range [...]int{s.Fast, s.Slow, s.Signal} {
		if err := checkPeriod("macd", p); err != nil {
			return err
		}
	}
	if s.Fast >= s.Slow {
		return fmt.Errorf("%w: macd fast %d must be below slow %d", ErrInvalidIndicatorConfig, s.Fast, s.Slow)
	}
	return nil
}

func (s MACD) compute(closes []float64) map[string][]float64 {
	line, sig, hist := MACDSeries(closes, s.Fast, s.Slow, s.Signal)
	return map[string][]float64{
		s.LineColumn():   line,
		s.SignalColumn(): sig,
		s.HistColumn():   hist,
	}
}

// SMA is a simple moving average of closes.
type SMA struct {
	Active bool `json:"active" yaml:"active"`
	Period int  `json:"period" yaml:"period"`
}

func (s SMA) Kind() Kind { return KindSMA }
func (s SMA) IsActive() bool { return s.Active }
func (s SMA) Lookback() int { return s.Period - 1 }
func (s SMA) Key() string { return "sma_" + strconv.Itoa(s.Period) }
func (s SMA) Column() string { return s.Key() }

func (s SMA) Validate() error {
	if err := checkPeriod("sma", s.Period); err != nil {
		return err
	}
	return nil
}

func (s SMA) compute(closes []float64) map[string][]float64 {
	return map[string][]float64{s.Column(): SMASeries(closes, s.Period)}
}

// EMA is an SMA-seeded exponential moving average of closes.
type EMA struct {
	Active bool `json:"active" yaml:"active"`
	Period int  `json:"period" yaml:"period"`
}

func (s EMA) Kind() Kind { return KindEMA }
func (s EMA) IsActive() bool { return s.Active }
func (s EMA) Lookback() int { return s.Period - 1 }
func (s EMA) Key() string { return "ema_" + strconv.Itoa(s.Period) }
func (s EMA) Column() string { return s.Key() }

func (s EMA) Validate() error {
	if err := checkPeriod("ema", s.Period); err != nil {
		return err
	}
	return nil
}

func (s EMA) compute(closes []float64) map[string][]float64 {
	return map[string][]float64{s.Column(): EMASeries(closes, s.Period)}
}

// Bollinger bands around an SMA.
type Bollinger struct {
	Active bool    `json:"active" yaml:"active"`
	Period int     `json:"period" yaml:"period"`
	StdDev float64 `json:"stdDev" yaml:"stdDev"`
}

func (s Bollinger) Kind() Kind { return KindBollinger }
func (s Bollinger) IsActive() bool { return s.Active }
func (s Bollinger) Lookback() int { return s.Period - 1 }

func (s Bollinger) suffix() string {
	return strconv.Itoa(s.Period) + "_" + strconv.FormatFloat(s.StdDev, 'f', -1, 64)
}

func (s Bollinger) Key() string { return "bb_" + s.suffix() }
func (s Bollinger) UpperColumn() string { return "bb_upper_" + s.suffix() }
func (s Bollinger) MiddleColumn() string { return "bb_middle_" + s.suffix() }
func (s Bollinger) LowerColumn() string { return "bb_lower_" + s.suffix() }

func (s Bollinger) Validate() error {
	if err := checkPeriod("bollinger", s.Period); err != nil {
		return err
	}
	if !(s.StdDev > 0) || math.IsInf(s.StdDev, 0) {
		return fmt.Errorf("%w: bollinger multiplier %v must be positive", ErrInvalidIndicatorConfig, s.StdDev)
	}
	return nil
}

func (s Bollinger) compute(closes []float64) map[string][]float64 {
	upper, middle, lower := BollingerBands(closes, s.Period, s.StdDev)
	return map[string][]float64{
		s.UpperColumn():  upper,
		s.MiddleColumn(): middle,
		s.LowerColumn():  lower,
	}
}

// Default returns an active spec of kind with default parameters.
// SMA and EMA have no default period and come back with Period 0.
func Default(kind Kind) (Spec, error) {
	switch kind {
	case KindRSI:
		return RSI{Active: true, Period: DefaultRSIPeriod, Threshold: DefaultRSIBuyThreshold}, nil
	case KindMACD:
		return MACD{Active: true, Fast: DefaultMACDFast, Slow: DefaultMACDSlow, Signal: DefaultMACDSignal}, nil
	case KindSMA:
		return SMA{Active: true}, nil
	case KindEMA:
		return EMA{Active: true}, nil
	case KindBollinger:
		return Bollinger{Active: true, Period: DefaultBollingerPeriod, StdDev: DefaultBollingerStdDev}, nil
	}
	return nil, fmt.Errorf("%w: unknown indicator %q", ErrInvalidIndicatorConfig, kind)
}
