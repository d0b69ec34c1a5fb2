package collector

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yahooFixture = `{"chart":{"result":[{
 "meta":{"gmtoffset":19800,"timezone":"IST"},
 "timestamp":[1704167100,1704253500,1704339900],
 "indicators":{"quote":[{
  "open":[100.5,null,102.0],
  "high":[101.0,null,103.5],
  "low":[99.5,null,101.0],
  "close":[100.0,null,103.0],
  "volume":[1200,null,1500]
 }]}
}],"error":null}}`

func newTestYahoo(t *testing.T, handler http.HandlerFunc) *YahooFetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	return f
}

func TestYahooFetcher_FetchBars(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	var gotPath string
	var gotQuery map[string]string
	f := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = map[string]string{
			"period1":  r.URL.Query().Get("period1"),
			"period2":  r.URL.Query().Get("period2"),
			"interval": r.URL.Query().Get("interval"),
		}
		_, _ = w.Write([]byte(yahooFixture))
	})

	series, err := f.FetchBars(context.Background(), "RELIANCE.NS", start, end)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/RELIANCE.NS", gotPath)
	assert.Equal(t, "1704067200", gotQuery["period1"])
	assert.Equal(t, "1704412800", gotQuery["period2"])
	assert.Equal(t, "1d", gotQuery["interval"])

	require.Len(t, series.Bars, 3)
	assert.Equal(t, "RELIANCE.NS", series.Symbol)
	assert.Equal(t, 100.0, series.Bars[0].Close)
	assert.True(t, math.IsNaN(series.Bars[1].Close), "null quotes become NaN")
	assert.Equal(t, "2024-01-02", series.Bars[0].Time.Format("2006-01-02"))

	clean := series.Clean()
	assert.Len(t, clean.Bars, 2)
}

func TestYahooFetcher_MapsSymbols(t *testing.T) {
	var gotPath string
	f := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(yahooFixture))
	})

	_, err := f.FetchBars(context.Background(), "SPX500", time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/^GSPC", gotPath)
}

func TestYahooFetcher_EmptyResultIsNotAnError(t *testing.T) {
	f := newTestYahoo(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"gmtoffset":0},"indicators":{"quote":[{}]}}],"error":null}}`))
	})

	series, err := f.FetchBars(context.Background(), "QUIET", time.Now().AddDate(0, 0, -3), time.Now())
	require.NoError(t, err)
	assert.True(t, series.Empty())
}

func TestYahooFetcher_Errors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"api error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
		},
		"status": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("Too Many Requests"))
		},
		"garbage": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			f := newTestYahoo(t, h)
			_, err := f.FetchBars(context.Background(), "ZZZ", time.Now().AddDate(0, -1, 0), time.Now())
			var fetchErr *FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, "yahoo", fetchErr.Source)
			assert.Equal(t, "ZZZ", fetchErr.Symbol)
		})
	}
}
