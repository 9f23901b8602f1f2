package strategy

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"backtest-core/internal/indicators"
)

var validate = validator.New()

// IndicatorParams is the wire and YAML form of one indicator entry.
//
// Besides the named fields it accepts the compact forms sent by the
// simulator UI: "values": [fast, slow, signal] for MACD and "value" for the
// single tunable of the other kinds (the period of SMA/EMA/Bollinger, the
// threshold of RSI).
type IndicatorParams struct {
	Active    bool     `json:"active" yaml:"active"`
	Period    *int     `json:"period,omitempty" yaml:"period,omitempty" validate:"omitempty,gt=0"`
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	Fast      *int     `json:"fast,omitempty" yaml:"fast,omitempty" validate:"omitempty,gt=0"`
	Slow      *int     `json:"slow,omitempty" yaml:"slow,omitempty" validate:"omitempty,gt=0"`
	Signal    *int     `json:"signal,omitempty" yaml:"signal,omitempty" validate:"omitempty,gt=0"`
	StdDev    *float64 `json:"stdDev,omitempty" yaml:"stdDev,omitempty" validate:"omitempty,gt=0"`
	Value     *float64 `json:"value,omitempty" yaml:"value,omitempty" validate:"omitempty,gte=0"`
	Values    []int    `json:"values,omitempty" yaml:"values,omitempty" validate:"omitempty,len=3,dive,gt=0"`
}

// SideParams maps an indicator name (rsi, macd, sma, ema, bollinger) to its params.
type SideParams map[string]IndicatorParams

// Params is a strategy as submitted by a client or stored in a preset.
type Params struct {
	Buy      SideParams `json:"buyIndicators" yaml:"buyIndicators"`
	Sell     SideParams `json:"sellIndicators" yaml:"sellIndicators"`
	StopLoss float64    `json:"stopLoss,omitempty" yaml:"stopLoss,omitempty" validate:"gte=0,lt=1"`
}

// Config validates p and converts it to an evaluable Config. Inactive
// entries keep their kind but none of their parameters, which are neither
// resolved nor validated.
func (p Params) Config() (Config, error) {
	if err := validate.Struct(p); err != nil {
		return Config{}, fmt.Errorf("%w: %v", indicators.ErrInvalidIndicatorConfig, err)
	}
	buy, err := p.Buy.build(SideBuy)
	if err != nil {
		return Config{}, err
	}
	sell, err := p.Sell.build(SideSell)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{Buy: buy, Sell: sell, StopLoss: p.StopLoss}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (p SideParams) build(side Side) (SideConfig, error) {
	out := make(SideConfig, len(p))
	for name, ip := range p {
		kind, err := indicators.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", side, err)
		}
		if !ip.Active {
			ip = IndicatorParams{}
		} else if err := validate.Struct(ip); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", indicators.ErrInvalidIndicatorConfig, side, kind, err)
		}
		spec, err := ip.Spec(kind, side)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", side, kind, err)
		}
		out[kind] = spec
	}
	return out, nil
}

// Spec fills defaults for kind and side and returns the typed spec.
func (p IndicatorParams) Spec(kind indicators.Kind, side Side) (indicators.Spec, error) {
	switch kind {
	case indicators.KindRSI:
		s := indicators.RSI{Active: p.Active, Period: indicators.DefaultRSIPeriod, Threshold: defaultThreshold(side)}
		if p.Period != nil {
			s.Period = *p.Period
		}
		if p.Value != nil {
			s.Threshold = *p.Value
		}
		if p.Threshold != nil {
			s.Threshold = *p.Threshold
		}
		return s, nil

	case indicators.KindMACD:
		s := indicators.MACD{
			Active: p.Active,
			Fast:   indicators.DefaultMACDFast,
			Slow:   indicators.DefaultMACDSlow,
			Signal: indicators.DefaultMACDSignal,
		}
		if len(p.Values) == 3 {
			s.Fast, s.Slow, s.Signal = p.Values[0], p.Values[1], p.Values[2]
		}
		if p.Fast != nil {
			s.Fast = *p.Fast
		}
		if p.Slow != nil {
			s.Slow = *p.Slow
		}
		if p.Signal != nil {
			s.Signal = *p.Signal
		}
		return s, nil

	case indicators.KindSMA, indicators.KindEMA:
		period, err := p.period(0)
		if err != nil {
			return nil, err
		}
		if kind == indicators.KindSMA {
			return indicators.SMA{Active: p.Active, Period: period}, nil
		}
		return indicators.EMA{Active: p.Active, Period: period}, nil

	case indicators.KindBollinger:
		period, err := p.period(indicators.DefaultBollingerPeriod)
		if err != nil {
			return nil, err
		}
		s := indicators.Bollinger{Active: p.Active, Period: period, StdDev: indicators.DefaultBollingerStdDev}
		if p.StdDev != nil {
			s.StdDev = *p.StdDev
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown indicator %q", indicators.ErrInvalidIndicatorConfig, kind)
}

// period resolves Period, then an integral Value, then def.
func (p IndicatorParams) period(def int) (int, error) {
	if p.Period != nil {
		return *p.Period, nil
	}
	if p.Value != nil {
		v := *p.Value
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: period %v is not a whole number", indicators.ErrInvalidIndicatorConfig, v)
		}
		return int(v), nil
	}
	return def, nil
}

func defaultThreshold(side Side) float64 {
	if side == SideSell {
		return indicators.DefaultRSISellThreshold
	}
	return indicators.DefaultRSIBuyThreshold
}
