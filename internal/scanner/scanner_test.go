package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BreakoutScreener/internal/collector"
	"BreakoutScreener/internal/model"
	"BreakoutScreener/internal/strategy"
	"BreakoutScreener/internal/universe"
)

var (
	start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func seriesOf(closes ...float64) model.PriceSeries {
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	s := model.PriceSeries{Bars: make([]model.OHLCV, len(closes))}
	for i, c := range closes {
		s.Bars[i] = model.OHLCV{Time: base.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return s
}

func flat(n int, tail ...float64) model.PriceSeries {
	closes := make([]float64, 0, n+len(tail))
	for i := 0; i < n; i++ {
		closes = append(closes, 100)
	}
	return seriesOf(append(closes, tail...)...)
}

func newScanner(t *testing.T, symbols []string, mock *collector.MockFetcher, detCfg strategy.DetectorConfig, workers int) *Scanner {
	t.Helper()
	det, err := strategy.NewDetector(detCfg)
	require.NoError(t, err)
	s, err := New(Config{
		Universes: universe.NewStaticProvider([]string{"TEST"}, map[string][]string{"TEST": symbols}),
		Series:    collector.NewSeriesCache(mock, collector.CacheOptions{}),
		Detector:  det,
		Workers:   workers,
	})
	require.NoError(t, err)
	return s
}

func request() Request {
	return Request{Universe: "TEST", Start: start, End: end}
}

func TestScan_IsolatesSymbolFailures(t *testing.T) {
	mock := &collector.MockFetcher{
		Series: map[string]model.PriceSeries{
			"A": flat(251, 130),
			"C": flat(60),
		},
		Errors: map[string]error{"B": errors.New("provider timeout")},
	}
	s := newScanner(t, []string{"A", "B", "C"}, mock, strategy.DefaultDetectorConfig(), 3)

	res, err := s.Scan(context.Background(), request(), nil)
	require.NoError(t, err)

	require.Len(t, res.Evaluations, 2)
	assert.Equal(t, "A", res.Evaluations[0].Symbol)
	assert.Equal(t, "C", res.Evaluations[1].Symbol)
	assert.Equal(t, map[string]model.FailureKind{"B": model.FailureFetch}, res.FailureReasons)
	assert.Equal(t, []string{"A"}, res.Passing)
	assert.Equal(t, 3, res.CountScanned)
	assert.Equal(t, 1, res.CountFailed)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "TEST", res.Universe)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestScan_ClassifiesFailureKinds(t *testing.T) {
	mock := &collector.MockFetcher{
		Series: map[string]model.PriceSeries{
			"EMPTY": {},
			"SHORT": flat(10),
			"OK":    flat(251, 130),
		},
	}
	s := newScanner(t, []string{"EMPTY", "SHORT", "OK"}, mock, strategy.DefaultDetectorConfig(), 2)

	res, err := s.Scan(context.Background(), request(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.FailureNoData, res.FailureReasons["EMPTY"])
	assert.Equal(t, model.FailureInsufficientData, res.FailureReasons["SHORT"])
	assert.Equal(t, []string{"OK"}, res.Passing)
}

func TestScan_PreservesUniverseOrder(t *testing.T) {
	var symbols []string
	mock := &collector.MockFetcher{Series: map[string]model.PriceSeries{}, DelayFor: map[string]time.Duration{}}
	for i := 0; i < 12; i++ {
		sym := fmt.Sprintf("S%02d", i)
		symbols = append(symbols, sym)
		if i%3 == 2 {
			mock.Series[sym] = flat(60) // not a breakout
		} else {
			mock.Series[sym] = flat(251, 130)
		}
		mock.DelayFor[sym] = time.Duration(12-i) * 5 * time.Millisecond
	}
	s := newScanner(t, symbols, mock, strategy.DefaultDetectorConfig(), 12)

	res, err := s.Scan(context.Background(), request(), nil)
	require.NoError(t, err)

	var want []string
	for i, sym := range symbols {
		if i%3 != 2 {
			want = append(want, sym)
		}
	}
	assert.Equal(t, want, res.Passing)
	for i, v := range res.Evaluations {
		assert.Equal(t, symbols[i], v.Symbol)
	}
}

func TestScan_PassingIsOrderedSubset(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E", "F"}
	mock := &collector.MockFetcher{
		Price:  100,
		Series: map[string]model.PriceSeries{"B": flat(251, 130), "E": flat(251, 140)},
		Errors: map[string]error{"C": errors.New("boom")},
	}
	s := newScanner(t, symbols, mock, strategy.DefaultDetectorConfig(), 4)

	res, err := s.Scan(context.Background(), request(), nil)
	require.NoError(t, err)

	pos := -1
	for _, p := range res.Passing {
		idx := indexOf(symbols, p)
		require.GreaterOrEqual(t, idx, 0, "%s not in universe", p)
		assert.Greater(t, idx, pos, "passing list must keep universe order")
		pos = idx
	}
	assert.LessOrEqual(t, len(res.Passing)+res.CountFailed, len(symbols))
	assert.Contains(t, res.Passing, "B")
	assert.Contains(t, res.Passing, "E")
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func TestScan_RankByRSI(t *testing.T) {
	mock := &collector.MockFetcher{Series: map[string]model.PriceSeries{
		"UP":   flat(251, 130),
		"DIP1": flat(249, 99, 98, 130),
		"UP2":  flat(251, 130),
		"DIP5": flat(249, 95, 90, 130),
	}}
	cfg := strategy.DefaultDetectorConfig()
	cfg.Quantile = 1
	s := newScanner(t, []string{"UP", "DIP1", "UP2", "DIP5"}, mock, cfg, 4)

	req := request()
	res, err := s.Scan(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"UP", "DIP1", "UP2", "DIP5"}, res.Passing)

	req.RankBy = RankRSI
	res, err = s.Scan(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"DIP5", "DIP1", "UP", "UP2"}, res.Passing)
	assert.Equal(t, RankRSI, res.RankedBy)
}

func TestScan_UniverseLookupAborts(t *testing.T) {
	mock := &collector.MockFetcher{Price: 100}
	s := newScanner(t, []string{"A"}, mock, strategy.DefaultDetectorConfig(), 1)

	req := request()
	req.Universe = "NOPE"
	res, err := s.Scan(context.Background(), req, nil)
	assert.Nil(t, res)
	var lookupErr *universe.LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, "NOPE", lookupErr.Universe)
	assert.Zero(t, mock.Calls(""))
}

type failingProvider struct{}

func (failingProvider) Universes() []string { return []string{"X"} }
func (failingProvider) ListSymbols(context.Context, string) ([]string, error) {
	return nil, errors.New("dns failure")
}

func TestScan_WrapsProviderErrors(t *testing.T) {
	det, _ := strategy.NewDetector(strategy.DefaultDetectorConfig())
	s, err := New(Config{
		Universes: failingProvider{},
		Series:    collector.NewSeriesCache(&collector.MockFetcher{}, collector.CacheOptions{}),
		Detector:  det,
	})
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), Request{Universe: "X", Start: start, End: end}, nil)
	var lookupErr *universe.LookupError
	assert.True(t, errors.As(err, &lookupErr))
}

func TestScan_InvalidRequest(t *testing.T) {
	s := newScanner(t, []string{"A"}, &collector.MockFetcher{}, strategy.DefaultDetectorConfig(), 1)

	for _, req := range []Request{
		{Universe: "", Start: start, End: end},
		{Universe: "TEST", Start: end, End: start},
		{Universe: "TEST", Start: start, End: end, RankBy: "volume"},
	} {
		_, err := s.Scan(context.Background(), req, nil)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
}

func TestScan_Cancellation(t *testing.T) {
	mock := &collector.MockFetcher{Price: 100, Delay: 200 * time.Millisecond}
	s := newScanner(t, []string{"A", "B", "C", "D", "E"}, mock, strategy.DefaultDetectorConfig(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res, err := s.Scan(ctx, request(), nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_ReportsProgress(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E", "F", "G"}
	mock := &collector.MockFetcher{Price: 100, Errors: map[string]error{"D": errors.New("x")}}
	s := newScanner(t, symbols, mock, strategy.DefaultDetectorConfig(), 3)

	var mu sync.Mutex
	var reports []model.Progress
	res, err := s.Scan(context.Background(), request(), func(p model.Progress) {
		mu.Lock()
		defer mu.Unlock()
		reports = append(reports, p)
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	require.Len(t, reports, len(symbols))
	seen := map[string]bool{}
	for i, p := range reports {
		assert.Equal(t, i+1, p.Done)
		assert.Equal(t, len(symbols), p.Total)
		seen[p.Symbol] = true
		if p.Symbol == "D" {
			assert.Equal(t, string(model.FailureFetch), p.Outcome)
		}
	}
	assert.Len(t, seen, len(symbols))
	assert.Equal(t, 1.0, reports[len(reports)-1].Fraction())
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestScan_TemplateNeedsSeries(t *testing.T) {
	det, err := strategy.NewDetector(strategy.DefaultDetectorConfig())
	require.NoError(t, err)
	tmpl, err := New(Config{
		Universes: universe.NewStaticProvider([]string{"TEST"}, map[string][]string{"TEST": {"A"}}),
		Detector:  det,
	})
	require.NoError(t, err)

	_, err = tmpl.Scan(context.Background(), request(), nil)
	assert.ErrorIs(t, err, ErrNoSeries)

	mock := &collector.MockFetcher{Series: map[string]model.PriceSeries{"A": flat(251, 130)}}
	res, err := tmpl.WithSeries(collector.NewSeriesCache(mock, collector.CacheOptions{})).Scan(context.Background(), request(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, res.Passing)
}
