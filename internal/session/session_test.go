package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BreakoutScreener/internal/calculator"
	"BreakoutScreener/internal/collector"
	"BreakoutScreener/internal/model"
	"BreakoutScreener/internal/scanner"
	"BreakoutScreener/internal/strategy"
	"BreakoutScreener/internal/universe"
)

var (
	start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newManager(t *testing.T, mock *collector.MockFetcher, symbols ...string) *Manager {
	t.Helper()
	det, err := strategy.NewDetector(strategy.DefaultDetectorConfig())
	require.NoError(t, err)
	sc, err := scanner.New(scanner.Config{
		Universes: universe.NewStaticProvider([]string{"TEST"}, map[string][]string{"TEST": symbols}),
		Series:    collector.NewSeriesCache(mock, collector.CacheOptions{}),
		Detector:  det,
		Workers:   2,
	})
	require.NoError(t, err)
	return NewManager(ManagerConfig{Fetcher: mock, Scanner: sc, IdleTTL: time.Hour})
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func req() scanner.Request {
	return scanner.Request{Universe: "TEST", Start: start, End: end}
}

func TestSession_ScanLifecycle(t *testing.T) {
	mock := &collector.MockFetcher{Price: 100}
	m := newManager(t, mock, "A", "B", "C")
	s := m.Create()

	assert.Equal(t, StatusIdle, s.Snapshot().Status)

	id, err := s.StartScan(req())
	require.NoError(t, err)
	waitDone(t, s)

	snap := s.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, id, snap.ScanID)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 3, snap.Result.CountScanned)
	assert.Equal(t, 3, snap.Progress.Done)
	assert.Equal(t, "TEST", snap.Request.Universe)
	assert.Equal(t, 3, s.CacheStats().Entries)
}

func TestSession_RejectsInvalidRequest(t *testing.T) {
	s := newManager(t, &collector.MockFetcher{}, "A").Create()
	_, err := s.StartScan(scanner.Request{Universe: "TEST", Start: end, End: start})
	assert.ErrorIs(t, err, scanner.ErrInvalidRequest)
	assert.Equal(t, StatusIdle, s.Snapshot().Status)
}

func TestSession_FailedLookup(t *testing.T) {
	s := newManager(t, &collector.MockFetcher{}, "A").Create()
	r := req()
	r.Universe = "UNKNOWN"
	_, err := s.StartScan(r)
	require.NoError(t, err)
	waitDone(t, s)

	snap := s.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "UNKNOWN")
	assert.Nil(t, snap.Result)
}

func TestSession_NewScanSupersedesRunning(t *testing.T) {
	mock := &collector.MockFetcher{Price: 100, Delay: 100 * time.Millisecond}
	s := newManager(t, mock, "A", "B", "C", "D").Create()

	first, err := s.StartScan(req())
	require.NoError(t, err)
	second, err := s.StartScan(req())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	waitDone(t, s)
	snap := s.Snapshot()
	assert.Equal(t, second, snap.ScanID)
	assert.Equal(t, StatusCompleted, snap.Status)
}

func TestSession_ResetDiscardsResultAndCache(t *testing.T) {
	mock := &collector.MockFetcher{Price: 100}
	s := newManager(t, mock, "A", "B").Create()

	_, err := s.StartScan(req())
	require.NoError(t, err)
	waitDone(t, s)
	require.NotNil(t, s.Snapshot().Result)

	s.Reset()
	snap := s.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Nil(t, snap.Result)
	assert.Empty(t, snap.ScanID)
	assert.Zero(t, s.CacheStats().Entries)
}

func TestSession_ResetCancelsRunningScan(t *testing.T) {
	mock := &collector.MockFetcher{Price: 100, Delay: 200 * time.Millisecond}
	s := newManager(t, mock, "A", "B", "C").Create()

	_, err := s.StartScan(req())
	require.NoError(t, err)
	s.Reset()
	waitDone(t, s)

	snap := s.Snapshot()
	assert.Equal(t, StatusIdle, snap.Status)
	assert.Nil(t, snap.Result)
}

func TestSession_SessionsDoNotShareCache(t *testing.T) {
	mock := &collector.MockFetcher{Price: 100}
	m := newManager(t, mock, "A")
	a, b := m.Create(), m.Create()

	for _, s := range []*Session{a, b} {
		_, err := s.StartScan(req())
		require.NoError(t, err)
		waitDone(t, s)
	}
	assert.Equal(t, 2, mock.Calls("A"))
}

func TestSession_Subscribe(t *testing.T) {
	s := newManager(t, &collector.MockFetcher{Price: 100}, "A", "B", "C").Create()
	ch, unsubscribe := s.Subscribe()

	_, err := s.StartScan(req())
	require.NoError(t, err)
	waitDone(t, s)

	var got []model.Progress
	for len(got) < 3 {
		select {
		case p := <-ch:
			got = append(got, p)
		case <-time.After(time.Second):
			t.Fatal("missing progress report")
		}
	}
	assert.Equal(t, 3, got[2].Done)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestSession_Frame(t *testing.T) {
	mock := &collector.MockFetcher{Price: 100}
	s := newManager(t, mock, "A").Create()

	frame, err := s.Frame(context.Background(), "A", start, end, calculator.DefaultSettings())
	require.NoError(t, err)
	assert.Greater(t, frame.Len(), 200)
	_, ok := frame.Column(calculator.ColBBUpper)
	assert.True(t, ok)

	bad := calculator.DefaultSettings()
	bad.MACDFast, bad.MACDSlow = 26, 12
	_, err = s.Frame(context.Background(), "B", start, end, bad)
	var cfgErr *calculator.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Zero(t, mock.Calls("B"), "invalid settings are rejected before fetching")

	_, err = newManager(t, &collector.MockFetcher{}, "A").Create().Frame(context.Background(), "A", start, end, calculator.DefaultSettings())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestManager_GetCloseSweep(t *testing.T) {
	m := newManager(t, &collector.MockFetcher{Price: 100}, "A")
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	a := m.Create()
	b := m.Create()
	require.Equal(t, 2, m.Len())

	got, err := m.Get(a.ID)
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, m.Close(a.ID))
	_, err = m.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Close(a.ID), ErrNotFound)

	assert.Zero(t, m.Sweep())
	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, m.Sweep())
	_, err = m.Get(b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, m.Len())
}
