package strategy

import (
	"errors"
	"fmt"
	"math"

	"BreakoutScreener/internal/calculator"
	"BreakoutScreener/internal/model"
)

// ErrInsufficientData is matched by every *InsufficientDataError.
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError reports a series too short to classify. Scanners treat
// it as "not a breakout".
type InsufficientDataError struct {
	Symbol string
	Unit   string // "bars" or "band widths"
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: have %d %s, need %d", e.Symbol, e.Have, e.Unit, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// DetectorConfig parameterises the squeeze breakout rule.
type DetectorConfig struct {
	Window     int                `yaml:"window" json:"window"`
	Deviations float64            `yaml:"deviations" json:"deviations"`
	Quantile   float64            `yaml:"quantile" json:"quantile"`
	Rule       model.BreakoutRule `yaml:"rule" json:"rule"`
	// SqueezeLookback is how many bars before the final bar the narrow check
	// is taken at. 0 tests the final bar itself.
	SqueezeLookback int `yaml:"squeeze_lookback" json:"squeeze_lookback"`
	// StrictSqueeze requires the squeeze width to be strictly below the
	// threshold instead of at or below it.
	StrictSqueeze bool `yaml:"strict_squeeze" json:"strict_squeeze"`
	// MinThresholdSamples, when positive, is the least number of defined band
	// widths accepted for the threshold.
	MinThresholdSamples int `yaml:"min_threshold_samples" json:"min_threshold_samples"`
	// MeanWindow is the averaging window of the rolling_mean rule.
	MeanWindow int `yaml:"mean_window" json:"mean_window"`
}

// DefaultDetectorConfig returns BB(20,2), a 20th percentile threshold and the
// final-bar rule.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Window:          20,
		Deviations:      2,
		Quantile:        0.2,
		Rule:            model.RuleFinalBar,
		SqueezeLookback: 1,
		MeanWindow:      20,
	}
}

func configErr(field, format string, args ...any) error {
	return &calculator.ConfigError{Indicator: "breakout", Field: field, Err: fmt.Errorf(format, args...)}
}

// Validate rejects unusable parameters.
func (c DetectorConfig) Validate() error {
	if err := calculator.ValidateBollinger(c.Window, c.Deviations); err != nil {
		return err
	}
	if math.IsNaN(c.Quantile) || c.Quantile < 0 || c.Quantile > 1 {
		return configErr("quantile", "must lie within [0, 1]: %v", c.Quantile)
	}
	switch c.Rule {
	case model.RuleFinalBar, model.RuleCrossing:
	case model.RuleRollingMean:
		if c.MeanWindow <= 0 {
			return configErr("mean_window", "must be positive: %d", c.MeanWindow)
		}
	default:
		return configErr("rule", "unknown rule %q", c.Rule)
	}
	if c.SqueezeLookback < 0 {
		return configErr("squeeze_lookback", "must not be negative: %d", c.SqueezeLookback)
	}
	if c.MinThresholdSamples < 0 {
		return configErr("min_threshold_samples", "must not be negative: %d", c.MinThresholdSamples)
	}
	return nil
}

// RequiredBars is the shortest series Evaluate accepts.
func (c DetectorConfig) RequiredBars() int {
	return c.Window + max(1, c.SqueezeLookback)
}

// Detector classifies a price series as a squeeze breakout. It holds no state
// and is safe for concurrent use.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector validates cfg and returns a Detector.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

func (d *Detector) Config() DetectorConfig { return d.cfg }

// Evaluate applies the configured rule at the last bar of series.
//
// A symbol is a breakout when its band width at the squeeze bar is at or below
// the threshold and the final close is strictly above the final upper band.
// The threshold is the configured quantile of every defined band width in the
// series, or for the rolling_mean rule the mean of the last MeanWindow widths.
// The crossing rule also requires the previous close to be at or below the
// previous upper band.
func (d *Detector) Evaluate(series model.PriceSeries) (*model.BreakoutVerdict, error) {
	n := series.Len()
	if need := d.cfg.RequiredBars(); n < need {
		return nil, &InsufficientDataError{Symbol: series.Symbol, Unit: "bars", Have: n, Need: need}
	}

	closes := series.Closes()
	bands, err := calculator.Bollinger(closes, d.cfg.Window, d.cfg.Deviations)
	if err != nil {
		return nil, err
	}

	last := n - 1
	squeeze := last - d.cfg.SqueezeLookback

	var threshold float64
	var samples int
	if d.cfg.Rule == model.RuleRollingMean {
		threshold, samples = calculator.TrailingMean(bands.Width, last, d.cfg.MeanWindow)
	} else {
		threshold, samples = calculator.Quantile(bands.Width, d.cfg.Quantile)
	}
	if d.cfg.MinThresholdSamples > 0 && samples < d.cfg.MinThresholdSamples {
		return nil, &InsufficientDataError{Symbol: series.Symbol, Unit: "band widths", Have: samples, Need: d.cfg.MinThresholdSamples}
	}

	v := &model.BreakoutVerdict{
		Symbol:           series.Symbol,
		AsOf:             series.Last().Time,
		Rule:             d.cfg.Rule,
		BandWidth:        bands.Width[last],
		SqueezeWidth:     bands.Width[squeeze],
		Threshold:        threshold,
		ThresholdSamples: samples,
		Close:            closes[last],
		UpperBand:        bands.Upper[last],
		PrevClose:        closes[last-1],
		PrevUpperBand:    bands.Upper[last-1],
	}
	v.Narrow = bands.Width.Defined(squeeze) && v.SqueezeWidth <= threshold
	if d.cfg.StrictSqueeze {
		v.Narrow = v.Narrow && v.SqueezeWidth < threshold
	}
	v.AboveBand = v.Close > v.UpperBand
	v.IsBreakout = v.Narrow && v.AboveBand
	if d.cfg.Rule == model.RuleCrossing && v.PrevClose > v.PrevUpperBand {
		v.IsBreakout = false
	}
	return v, nil
}
