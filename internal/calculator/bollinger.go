package calculator

import (
	"fmt"
	"math"

	"BreakoutScreener/internal/model"
)

// Bands holds Bollinger Band columns aligned with the input.
type Bands struct {
	Middle model.Series
	Upper  model.Series
	Lower  model.Series
	Width  model.Series
}

// ValidateBollinger checks band parameters.
func ValidateBollinger(window int, deviations float64) error {
	if window < 2 {
		return &ConfigError{Indicator: "Bollinger", Field: "window", Err: fmt.Errorf("%w: %d", errTooSmall, window)}
	}
	if deviations < 0 || math.IsNaN(deviations) || math.IsInf(deviations, 0) {
		return &ConfigError{Indicator: "Bollinger", Field: "deviations", Err: fmt.Errorf("%w: %v", errNegative, deviations)}
	}
	return nil
}

// Bollinger computes bands of deviations sample standard deviations around
// the SMA of values over window.
func Bollinger(values []float64, window int, deviations float64) (*Bands, error) {
	if err := ValidateBollinger(window, deviations); err != nil {
		return nil, err
	}
	middle, err := SMA(values, window)
	if err != nil {
		return nil, err
	}

	n := len(values)
	b := &Bands{
		Middle: middle,
		Upper:  model.NewSeries(n),
		Lower:  model.NewSeries(n),
		Width:  model.NewSeries(n),
	}
	for i := window - 1; i < n; i++ {
		sd := sampleStdDev(values[i-window+1 : i+1])
		b.Upper[i] = middle[i] + deviations*sd
		b.Lower[i] = middle[i] - deviations*sd
		b.Width[i] = b.Upper[i] - b.Lower[i]
	}
	return b, nil
}

func sampleStdDev(window []float64) float64 {
	var mean float64
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))

	var ss float64
	for _, v := range window {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(window)-1))
}
