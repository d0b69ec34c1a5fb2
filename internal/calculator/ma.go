package calculator

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"

	"BreakoutScreener/internal/model"
)

// SMA computes the simple moving average of values over window. Positions
// before window-1 are undefined. Values must be finite.
func SMA(values []float64, window int) (model.Series, error) {
	if err := requirePositive("SMA", "window", window); err != nil {
		return nil, err
	}
	out := model.NewSeries(len(values))
	if len(values) < window {
		return out, nil
	}

	sma := trend.NewSmaWithPeriod[float64](window)
	computed := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))

	// one value per complete window, aligned to the window's last bar
	want := len(values) - window + 1
	if len(computed) > want {
		computed = computed[len(computed)-want:]
	}
	copy(out[len(values)-len(computed):], computed)
	return out, nil
}

// EMA computes the exponential moving average with smoothing factor
// 2/(window+1). The average is seeded with the SMA of the first window
// defined values; leading undefined inputs are skipped.
func EMA(values []float64, window int) (model.Series, error) {
	if err := requirePositive("EMA", "window", window); err != nil {
		return nil, err
	}
	out := model.NewSeries(len(values))
	start := model.Series(values).FirstDefined()
	if start < 0 || len(values)-start < window {
		return out, nil
	}

	defined := values[start:]
	ema := trend.NewEmaWithPeriod[float64](window)
	computed := helper.ChanToSlice(ema.Compute(helper.SliceToChan(defined)))

	want := len(defined) - window + 1
	if len(computed) > want {
		computed = computed[len(computed)-want:]
	}
	copy(out[len(values)-len(computed):], computed)
	return out, nil
}
