package calculator

import (
	"math"
	"sort"

	"BreakoutScreener/internal/model"
)

// Quantile returns the q-quantile of the defined values of s using linear
// interpolation between closest ranks, and the number of values it used.
// It returns NaN when s has no defined values.
func Quantile(s model.Series, q float64) (float64, int) {
	vals := s.Values()
	if len(vals) == 0 {
		return math.NaN(), 0
	}
	sort.Float64s(vals)

	h := float64(len(vals)-1) * q
	lo := int(math.Floor(h))
	if lo >= len(vals)-1 {
		return vals[len(vals)-1], len(vals)
	}
	if lo < 0 {
		return vals[0], len(vals)
	}
	return vals[lo] + (h-float64(lo))*(vals[lo+1]-vals[lo]), len(vals)
}

// TrailingMean returns the mean of up to n defined values of s ending at
// index end (inclusive), and how many values it averaged.
func TrailingMean(s model.Series, end, n int) (float64, int) {
	var sum float64
	count := 0
	for i := end; i >= 0 && count < n; i-- {
		if s.Defined(i) {
			sum += s[i]
			count++
		}
	}
	if count == 0 {
		return math.NaN(), 0
	}
	return sum / float64(count), count
}
