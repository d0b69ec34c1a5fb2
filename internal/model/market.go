package model

import (
	"math"
	"sort"
	"time"
)

// OHLCV represents a single daily bar. Providers carry missing values as NaN
// until the series is cleaned.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Valid reports whether every numeric field is finite and non-negative.
func (b OHLCV) Valid() bool {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// PriceSeries is the ordered daily history of one symbol.
type PriceSeries struct {
	Symbol string
	Bars   []OHLCV
}

func (s PriceSeries) Len() int     { return len(s.Bars) }
func (s PriceSeries) Empty() bool  { return len(s.Bars) == 0 }
func (s PriceSeries) Last() OHLCV  { return s.Bars[len(s.Bars)-1] }
func (s PriceSeries) First() OHLCV { return s.Bars[0] }

// Closes extracts the closing prices in bar order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// Clone returns a copy that shares no backing array with s.
func (s PriceSeries) Clone() PriceSeries {
	bars := make([]OHLCV, len(s.Bars))
	copy(bars, s.Bars)
	return PriceSeries{Symbol: s.Symbol, Bars: bars}
}

// Clean returns a new series with invalid rows dropped, bars in chronological
// order and at most one bar per calendar date. When a date repeats, the latest
// row wins (delivery order breaks timestamp ties).
func (s PriceSeries) Clean() PriceSeries {
	bars := make([]OHLCV, 0, len(s.Bars))
	for _, b := range s.Bars {
		if b.Valid() {
			bars = append(bars, b)
		}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && SameDate(out[n-1].Time, b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return PriceSeries{Symbol: s.Symbol, Bars: out}
}

// SameDate reports whether a and b fall on the same calendar day in a's location.
func SameDate(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateLayout is the date format used for cache keys, API parameters and CSV export.
const DateLayout = "2006-01-02"
