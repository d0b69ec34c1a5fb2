package calculator

import (
	"fmt"

	"BreakoutScreener/internal/model"
)

// MACDResult holds the MACD columns aligned with the input.
type MACDResult struct {
	Line      model.Series
	Signal    model.Series
	Histogram model.Series
}

// ValidateMACD rejects non-positive periods and a slow period that does not
// exceed the fast one.
func ValidateMACD(fast, slow, signal int) error {
	if err := requirePositive("MACD", "fast", fast); err != nil {
		return err
	}
	if err := requirePositive("MACD", "signal", signal); err != nil {
		return err
	}
	if slow <= fast {
		return &ConfigError{
			Indicator: "MACD",
			Field:     "slow",
			Err:       fmt.Errorf("slow period must exceed fast period: %d <= %d", slow, fast),
		}
	}
	return nil
}

// MACD computes EMA(fast) - EMA(slow) and its EMA(signal).
func MACD(values []float64, fast, slow, signal int) (*MACDResult, error) {
	if err := ValidateMACD(fast, slow, signal); err != nil {
		return nil, err
	}
	fastEMA, err := EMA(values, fast)
	if err != nil {
		return nil, err
	}
	slowEMA, err := EMA(values, slow)
	if err != nil {
		return nil, err
	}

	n := len(values)
	line := model.NewSeries(n)
	for i := range values {
		if fastEMA.Defined(i) && slowEMA.Defined(i) {
			line[i] = fastEMA[i] - slowEMA[i]
		}
	}
	sig, err := EMA(line, signal)
	if err != nil {
		return nil, err
	}
	hist := model.NewSeries(n)
	for i := range values {
		if line.Defined(i) && sig.Defined(i) {
			hist[i] = line[i] - sig[i]
		}
	}
	return &MACDResult{Line: line, Signal: sig, Histogram: hist}, nil
}
