package model

import (
	"errors"
	"fmt"
	"math"
)

// Series is an indicator column aligned index-for-index with its input.
// Positions without enough history hold NaN.
type Series []float64

// Undefined is the marker stored at warm-up positions.
var Undefined = math.NaN()

// NewSeries returns a series of length n with every position undefined.
func NewSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = Undefined
	}
	return s
}

// Defined reports whether position i holds a value.
func (s Series) Defined(i int) bool {
	return i >= 0 && i < len(s) && !math.IsNaN(s[i])
}

// FirstDefined returns the index of the first defined value, or -1.
func (s Series) FirstDefined() int {
	for i, v := range s {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}

// Last returns the final value and whether it is defined.
func (s Series) Last() (float64, bool) {
	if len(s) == 0 {
		return Undefined, false
	}
	v := s[len(s)-1]
	return v, !math.IsNaN(v)
}

// Values returns the defined values in order.
func (s Series) Values() []float64 {
	out := make([]float64, 0, len(s))
	for _, v := range s {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Nullable converts the series to pointers so undefined positions encode as JSON null.
func (s Series) Nullable() []*float64 {
	out := make([]*float64, len(s))
	for i := range s {
		if !math.IsNaN(s[i]) {
			v := s[i]
			out[i] = &v
		}
	}
	return out
}

var (
	ErrShapeMismatch   = errors.New("column length does not match bar count")
	ErrDuplicateColumn = errors.New("column already attached")
)

// IndicatorFrame is a price series plus named derived columns sharing its index.
// Columns keep the order in which they were attached.
type IndicatorFrame struct {
	Symbol string
	Bars   []OHLCV

	names   []string
	columns map[string]Series
}

// NewIndicatorFrame creates an empty frame over the bars of series.
func NewIndicatorFrame(series PriceSeries) *IndicatorFrame {
	return &IndicatorFrame{
		Symbol:  series.Symbol,
		Bars:    series.Bars,
		columns: make(map[string]Series),
	}
}

// Attach adds a derived column. The column must have one value per bar.
func (f *IndicatorFrame) Attach(name string, values Series) error {
	if len(values) != len(f.Bars) {
		return fmt.Errorf("attach %s: %w (got %d, want %d)", name, ErrShapeMismatch, len(values), len(f.Bars))
	}
	if _, ok := f.columns[name]; ok {
		return fmt.Errorf("attach %s: %w", name, ErrDuplicateColumn)
	}
	f.names = append(f.names, name)
	f.columns[name] = values
	return nil
}

func (f *IndicatorFrame) Len() int { return len(f.Bars) }

// Columns returns the derived column names in attach order.
func (f *IndicatorFrame) Columns() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Column returns a derived column by name.
func (f *IndicatorFrame) Column(name string) (Series, bool) {
	s, ok := f.columns[name]
	return s, ok
}
