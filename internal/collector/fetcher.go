package collector

import (
	"context"
	"time"

	"BreakoutScreener/internal/model"
)

// Fetcher retrieves daily bars for one symbol over [start, end).
// An empty series with a nil error means the provider has no data for the
// range.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error)
	Name() string
}
