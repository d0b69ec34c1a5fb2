package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"BreakoutScreener/internal/model"
)

// RESTFetcher implements Fetcher against a generic bars REST endpoint:
//
//	GET {BaseURL}/api/v1/bars/daily?symbol=X&start=YYYY-MM-DD&end=YYYY-MM-DD
//
// returning a JSON array of {timestamp, open, high, low, close, volume}.
type RESTFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRESTFetcher creates a new fetcher with optional proxy support.
func NewRESTFetcher(baseURL, apiKey, proxyURL string) *RESTFetcher {
	return &RESTFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL, 30*time.Second),
	}
}

func (f *RESTFetcher) Name() string { return "rest" }

// restBar is the expected JSON shape from the bars API. Missing prices are null.
type restBar struct {
	Timestamp int64    `json:"timestamp"`
	Open      *float64 `json:"open"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	Close     *float64 `json:"close"`
	Volume    *float64 `json:"volume"`
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func (f *RESTFetcher) FetchBars(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	fail := func(err error) (model.PriceSeries, error) {
		return model.PriceSeries{}, &FetchError{Source: f.Name(), Symbol: symbol, Err: err}
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("start", start.Format(model.DateLayout))
	q.Set("end", end.Format(model.DateLayout))
	endpoint := fmt.Sprintf("%s/api/v1/bars/daily?%s", f.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fail(err)
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fail(fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)))
	}

	var raw []restBar
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fail(fmt.Errorf("decode bars: %w", err))
	}
	series := model.PriceSeries{Symbol: symbol, Bars: make([]model.OHLCV, len(raw))}
	for i, rb := range raw {
		series.Bars[i] = model.OHLCV{
			Time:   time.Unix(rb.Timestamp, 0).UTC(),
			Open:   orNaN(rb.Open),
			High:   orNaN(rb.High),
			Low:    orNaN(rb.Low),
			Close:  orNaN(rb.Close),
			Volume: orNaN(rb.Volume),
		}
	}
	return series, nil
}
