package calculator

import "BreakoutScreener/internal/model"

// RSI computes the Wilder-smoothed relative strength index. The first value
// sits at index window, built from the simple average of the first window
// price changes; earlier positions are undefined.
func RSI(values []float64, window int) (model.Series, error) {
	if err := requirePositive("RSI", "window", window); err != nil {
		return nil, err
	}
	out := model.NewSeries(len(values))
	if len(values) <= window {
		return out, nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= window; i++ {
		gain, loss := change(values[i-1], values[i])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(window)
	avgLoss /= float64(window)
	out[window] = rsiValue(avgGain, avgLoss)

	p := float64(window)
	for i := window + 1; i < len(values); i++ {
		gain, loss := change(values[i-1], values[i])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func change(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rsi := 100 - 100/(1+avgGain/avgLoss)
	switch {
	case rsi < 0:
		return 0
	case rsi > 100:
		return 100
	}
	return rsi
}
