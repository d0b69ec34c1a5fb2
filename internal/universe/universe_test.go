package universe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const membershipCSV = "index,stock\n" +
	"NIFTY 50,RELIANCE.NS\n" +
	"NIFTY 50,TCS.NS\n" +
	"NIFTY 50, INFY\n" +
	"NIFTY BANK,HDFCBANK.NS\n" +
	"NIFTY 50,TCS.NS\n"

func newCSVServer(t *testing.T, body string, status int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestCSVProvider_ListSymbols(t *testing.T) {
	srv, hits := newCSVServer(t, membershipCSV, http.StatusOK)
	p := NewCSVProvider(srv.URL, ".NS", nil, time.Hour)

	symbols, err := p.ListSymbols(context.Background(), "NIFTY 50")
	require.NoError(t, err)
	assert.Equal(t, []string{"RELIANCE.NS", "TCS.NS", "INFY.NS"}, symbols)

	bank, err := p.ListSymbols(context.Background(), "NIFTY BANK")
	require.NoError(t, err)
	assert.Equal(t, []string{"HDFCBANK.NS"}, bank)

	assert.Equal(t, int32(1), atomic.LoadInt32(hits), "table is downloaded once per TTL")
	assert.Contains(t, p.Universes(), "NIFTY OIL & GAS")
}

func TestCSVProvider_RefreshesAfterTTL(t *testing.T) {
	srv, hits := newCSVServer(t, membershipCSV, http.StatusOK)
	p := NewCSVProvider(srv.URL, "", nil, time.Minute)
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	_, err := p.ListSymbols(context.Background(), "NIFTY 50")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = p.ListSymbols(context.Background(), "NIFTY 50")
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestCSVProvider_Errors(t *testing.T) {
	srv, _ := newCSVServer(t, "oops", http.StatusInternalServerError)
	_, err := NewCSVProvider(srv.URL, "", nil, time.Hour).ListSymbols(context.Background(), "NIFTY 50")
	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, "NIFTY 50", lookupErr.Universe)

	srv, _ = newCSVServer(t, "symbol,name\nA,B\n", http.StatusOK)
	_, err = NewCSVProvider(srv.URL, "", nil, time.Hour).ListSymbols(context.Background(), "NIFTY 50")
	assert.True(t, errors.As(err, &lookupErr))

	srv, _ = newCSVServer(t, membershipCSV, http.StatusOK)
	_, err = NewCSVProvider(srv.URL, "", nil, time.Hour).ListSymbols(context.Background(), "NIFTY MIDCAP")
	assert.ErrorIs(t, err, ErrUnknownUniverse)
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider([]string{"WATCH", "MISSING"}, map[string][]string{
		"WATCH": {"aapl", "MSFT", "AAPL", " "},
	})
	assert.Equal(t, []string{"WATCH"}, p.Universes())

	symbols, err := p.ListSymbols(context.Background(), "WATCH")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	symbols[0] = "CHANGED"
	again, _ := p.ListSymbols(context.Background(), "WATCH")
	assert.Equal(t, "AAPL", again[0])

	_, err = p.ListSymbols(context.Background(), "OTHER")
	assert.ErrorIs(t, err, ErrUnknownUniverse)
}

func TestLoadStaticFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
universes:
  - name: INDIA WATCH
    suffix: .NS
    symbols: [TCS, INFY, ITC.NS]
  - name: US WATCH
    symbols: [AAPL, BRK-B]
`), 0o600))

	p, err := LoadStaticFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"INDIA WATCH", "US WATCH"}, p.Universes())

	india, err := p.ListSymbols(context.Background(), "INDIA WATCH")
	require.NoError(t, err)
	assert.Equal(t, []string{"TCS.NS", "INFY.NS", "ITC.NS"}, india)

	dup := filepath.Join(t.TempDir(), "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("universes:\n  - name: A\n  - name: A\n"), 0o600))
	_, err = LoadStaticFile(dup)
	assert.Error(t, err)
}

const sp500Page = `<html><body>
<table class="wikitable" id="constituents">
<thead><tr><th>Symbol</th><th>Security</th></tr></thead>
<tbody>
<tr><td><a href="/a">MMM</a></td><td>3M</td></tr>
<tr><td><a href="/b">BRK.B</a></td><td>Berkshire Hathaway</td></tr>
<tr><td>AAPL
</td><td>Apple Inc.</td></tr>
</tbody></table>
<table id="changes"><tr><td>XYZ</td></tr></table>
</body></html>`

func TestWikipediaProvider(t *testing.T) {
	srv, hits := newCSVServer(t, sp500Page, http.StatusOK)
	p := NewWikipediaProvider(time.Hour)
	p.URL = srv.URL

	symbols, err := p.ListSymbols(context.Background(), SP500)
	require.NoError(t, err)
	assert.Equal(t, []string{"MMM", "BRK-B", "AAPL"}, symbols)

	_, err = p.ListSymbols(context.Background(), SP500)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	_, err = p.ListSymbols(context.Background(), "NASDAQ 100")
	assert.ErrorIs(t, err, ErrUnknownUniverse)
}

func TestWikipediaProvider_MissingTable(t *testing.T) {
	srv, _ := newCSVServer(t, "<html><body><p>moved</p></body></html>", http.StatusOK)
	p := NewWikipediaProvider(time.Hour)
	p.URL = srv.URL

	_, err := p.ListSymbols(context.Background(), SP500)
	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, SP500, lookupErr.Universe)
}

func TestRegistry(t *testing.T) {
	a := NewStaticProvider([]string{"A"}, map[string][]string{"A": {"X"}})
	b := NewStaticProvider([]string{"B", "A"}, map[string][]string{"B": {"Y"}, "A": {"Z"}})
	r := NewRegistry(a, b)

	assert.Equal(t, []string{"A", "B"}, r.Universes())

	symbols, err := r.ListSymbols(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, symbols, "first provider wins")

	symbols, err = r.ListSymbols(context.Background(), "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"Y"}, symbols)

	_, err = r.ListSymbols(context.Background(), "C")
	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.ErrorIs(t, err, ErrUnknownUniverse)
}
