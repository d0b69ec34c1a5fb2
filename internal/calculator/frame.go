package calculator

import (
	"fmt"

	"BreakoutScreener/internal/model"
)

// Column names attached by BuildFrame.
const (
	ColBBMiddle   = "bb_mavg"
	ColBBUpper    = "bb_high"
	ColBBLower    = "bb_low"
	ColBBWidth    = "bb_width"
	ColRSI        = "rsi"
	ColMACD       = "macd"
	ColMACDSignal = "macd_signal"
	ColMACDHist   = "macd_hist"
)

// Settings selects the indicator set computed for a chart view.
type Settings struct {
	BollingerWindow     int     `yaml:"bollinger_window" json:"bollinger_window"`
	BollingerDeviations float64 `yaml:"bollinger_deviations" json:"bollinger_deviations"`
	RSIWindow           int     `yaml:"rsi_window" json:"rsi_window"`
	MACDFast            int     `yaml:"macd_fast" json:"macd_fast"`
	MACDSlow            int     `yaml:"macd_slow" json:"macd_slow"`
	MACDSignal          int     `yaml:"macd_signal" json:"macd_signal"`
	SMAWindows          []int   `yaml:"sma_windows" json:"sma_windows"`
	EMAWindows          []int   `yaml:"ema_windows" json:"ema_windows"`
}

// DefaultSettings returns BB(20,2), RSI(14), MACD(12,26,9), SMA(50) and EMA(20).
func DefaultSettings() Settings {
	return Settings{
		BollingerWindow:     20,
		BollingerDeviations: 2,
		RSIWindow:           14,
		MACDFast:            12,
		MACDSlow:            26,
		MACDSignal:          9,
		SMAWindows:          []int{50},
		EMAWindows:          []int{20},
	}
}

// Validate checks every parameter without computing anything.
func (s Settings) Validate() error {
	if err := ValidateBollinger(s.BollingerWindow, s.BollingerDeviations); err != nil {
		return err
	}
	if err := requirePositive("RSI", "window", s.RSIWindow); err != nil {
		return err
	}
	if err := ValidateMACD(s.MACDFast, s.MACDSlow, s.MACDSignal); err != nil {
		return err
	}
	if err := validateWindows("SMA", s.SMAWindows); err != nil {
		return err
	}
	return validateWindows("EMA", s.EMAWindows)
}

func validateWindows(indicator string, windows []int) error {
	seen := make(map[int]bool, len(windows))
	for _, w := range windows {
		if err := requirePositive(indicator, "window", w); err != nil {
			return err
		}
		if seen[w] {
			return &ConfigError{Indicator: indicator, Field: "window", Err: fmt.Errorf("duplicate window %d", w)}
		}
		seen[w] = true
	}
	return nil
}

// BuildFrame computes the full indicator set over the closes of series.
func BuildFrame(series model.PriceSeries, s Settings) (*model.IndicatorFrame, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	closes := series.Closes()
	frame := model.NewIndicatorFrame(series)

	bands, err := Bollinger(closes, s.BollingerWindow, s.BollingerDeviations)
	if err != nil {
		return nil, err
	}
	rsi, err := RSI(closes, s.RSIWindow)
	if err != nil {
		return nil, err
	}
	macd, err := MACD(closes, s.MACDFast, s.MACDSlow, s.MACDSignal)
	if err != nil {
		return nil, err
	}

	cols := []struct {
		name   string
		values model.Series
	}{
		{ColBBMiddle, bands.Middle},
		{ColBBUpper, bands.Upper},
		{ColBBLower, bands.Lower},
		{ColBBWidth, bands.Width},
		{ColRSI, rsi},
		{ColMACD, macd.Line},
		{ColMACDSignal, macd.Signal},
		{ColMACDHist, macd.Histogram},
	}
	for _, c := range cols {
		if err := frame.Attach(c.name, c.values); err != nil {
			return nil, err
		}
	}

	for _, w := range s.SMAWindows {
		sma, err := SMA(closes, w)
		if err != nil {
			return nil, err
		}
		if err := frame.Attach(fmt.Sprintf("sma_%d", w), sma); err != nil {
			return nil, err
		}
	}
	for _, w := range s.EMAWindows {
		ema, err := EMA(closes, w)
		if err != nil {
			return nil, err
		}
		if err := frame.Attach(fmt.Sprintf("ema_%d", w), ema); err != nil {
			return nil, err
		}
	}
	return frame, nil
}
