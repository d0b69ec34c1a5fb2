package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"BreakoutScreener/internal/model"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string) *YahooFetcher {
	return &YahooFetcher{
		BaseURL: defaultYahooBaseURL,
		Client:  newHTTPClient(proxyURL, 30*time.Second),
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
			"NIFTY":  "^NSEI",
		},
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				GMTOffset int    `json:"gmtoffset"`
				Timezone  string `json:"timezone"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// at returns vals[i], or NaN when the value is null or missing.
func at(vals []*float64, i int) float64 {
	if i >= len(vals) || vals[i] == nil {
		return math.NaN()
	}
	return *vals[i]
}

// FetchBars requests daily bars from start (inclusive) to end (exclusive).
// Null quotes are carried as NaN and dropped later by cleaning.
func (f *YahooFetcher) FetchBars(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	series := model.PriceSeries{Symbol: symbol}
	fail := func(err error) (model.PriceSeries, error) {
		return model.PriceSeries{}, &FetchError{Source: f.Name(), Symbol: symbol, Err: err}
	}

	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "history")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("read body: %w", err))
	}

	var chart yahooChart
	if jsonErr := json.Unmarshal(body, &chart); jsonErr != nil {
		if resp.StatusCode != http.StatusOK {
			return fail(fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)))
		}
		return fail(fmt.Errorf("decode: %w", jsonErr))
	}
	if chart.Chart.Error != nil {
		return fail(fmt.Errorf("api error %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description))
	}
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("status %d", resp.StatusCode))
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return series, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	loc := time.FixedZone(result.Meta.Timezone, result.Meta.GMTOffset)

	series.Bars = make([]model.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		series.Bars = append(series.Bars, model.OHLCV{
			Time:   time.Unix(ts, 0).In(loc),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  at(quote.Close, i),
			Volume: at(quote.Volume, i),
		})
	}
	return series, nil
}
