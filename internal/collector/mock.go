package collector

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"BreakoutScreener/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// Symbols in Series are returned as stored; symbols in Errors fail; any other
// symbol gets a generated weekday series around Price, or nothing when Price
// is zero.
type MockFetcher struct {
	Price  float64
	Series map[string]model.PriceSeries
	Errors map[string]error
	Delay  time.Duration
	// DelayFor overrides Delay per symbol.
	DelayFor map[string]time.Duration

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[symbol]++
	m.mu.Unlock()

	delay := m.Delay
	if d, ok := m.DelayFor[symbol]; ok {
		delay = d
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return model.PriceSeries{}, &FetchError{Source: m.Name(), Symbol: symbol, Err: ctx.Err()}
		}
	}

	if err, ok := m.Errors[symbol]; ok {
		return model.PriceSeries{}, &FetchError{Source: m.Name(), Symbol: symbol, Err: err}
	}
	if s, ok := m.Series[symbol]; ok {
		return s.Clone(), nil
	}
	if m.Price == 0 {
		return model.PriceSeries{Symbol: symbol}, nil
	}
	return generateMockSeries(symbol, m.Price, start, end), nil
}

// Calls returns the number of FetchBars calls for symbol, or for all symbols
// when symbol is empty.
func (m *MockFetcher) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if symbol != "" {
		return m.calls[symbol]
	}
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func generateMockSeries(symbol string, basePrice float64, start, end time.Time) model.PriceSeries {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	phase := float64(h.Sum32()%628) / 100

	series := model.PriceSeries{Symbol: symbol}
	i := 0
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		p := basePrice * (1 + 0.05*math.Sin(float64(i)/9+phase))
		series.Bars = append(series.Bars, model.OHLCV{
			Time:   d,
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		})
		i++
	}
	return series
}
