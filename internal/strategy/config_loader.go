package strategy

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Preset is a named strategy offered to clients.
type Preset struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Timeframe   string `json:"timeframe,omitempty" yaml:"timeframe,omitempty" validate:"omitempty,oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d 3d 1w"`
	Params      `yaml:",inline"`
}

// PresetFile represents the top-level YAML structure.
type PresetFile struct {
	Presets []Preset `yaml:"presets" validate:"dive"`
}

// ParsePresets decodes and validates a presets document.
func ParsePresets(data []byte) ([]Preset, error) {
	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid presets: %w", err)
	}

	seen := make(map[string]bool, len(file.Presets))
	for _, p := range file.Presets {
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}
		seen[p.Name] = true
		if _, err := p.Config(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}
	return file.Presets, nil
}

// LoadPresets reads presets from a YAML file.
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePresets(data)
}

// LoadPresetsOrDefault loads path, falling back to the built-in presets
// when the file does not exist.
func LoadPresetsOrDefault(path string) ([]Preset, error) {
	presets, err := LoadPresets(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("presets file not found, using built-in presets")
		return DefaultPresets(), nil
	}
	return presets, err
}

func intp(v int) *int { return &v }
func floatp(v float64) *float64 { return &v }

// DefaultPresets mirrors the simulator's stock indicator settings.
func DefaultPresets() []Preset {
	return []Preset{
		{
			Name:        "rsi-macd",
			Description: "Buy oversold RSI with MACD above signal, sell overbought RSI",
			Params: Params{
				Buy: SideParams{
					"rsi":  {Active: true, Period: intp(14), Threshold: floatp(30)},
					"macd": {Active: true, Values: []int{12, 26, 9}},
				},
				Sell: SideParams{
					"rsi": {Active: true, Period: intp(14), Threshold: floatp(70)},
				},
			},
		},
		{
			Name:        "bollinger-reversion",
			Description: "Buy at the lower band, sell at the upper band, 10% stop loss",
			Params: Params{
				Buy:      SideParams{"bollinger": {Active: true, Period: intp(20), StdDev: floatp(2)}},
				Sell:     SideParams{"bollinger": {Active: true, Period: intp(20), StdDev: floatp(2)}},
				StopLoss: 0.10,
			},
		},
		{
			Name:        "sma-trend",
			Description: "Hold while the close is above its 50-bar SMA",
			Params: Params{
				Buy:  SideParams{"sma": {Active: true, Period: intp(50)}},
				Sell: SideParams{"sma": {Active: true, Period: intp(50)}},
			},
		},
		{
			Name:        "ema-trend",
			Description: "Buy above EMA 20, sell below EMA 50",
			Params: Params{
				Buy:  SideParams{"ema": {Active: true, Period: intp(20)}},
				Sell: SideParams{"ema": {Active: true, Period: intp(50)}},
			},
		},
	}
}

// PresetBook is an immutable name-indexed set of presets.
type PresetBook struct {
	byName map[string]Preset
}

// NewPresetBook indexes presets by name.
func NewPresetBook(presets []Preset) *PresetBook {
	b := &PresetBook{byName: make(map[string]Preset, len(presets))}
	for _, p := range presets {
		b.byName[p.Name] = p
	}
	return b
}

// Get returns the named preset.
func (b *PresetBook) Get(name string) (Preset, bool) {
	p, ok := b.byName[name]
	return p, ok
}

// List returns presets sorted by name.
func (b *PresetBook) List() []Preset {
	out := make([]Preset, 0, len(b.byName))
	for _, p := range b.byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
