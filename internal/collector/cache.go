package collector

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"BreakoutScreener/internal/logging"
	"BreakoutScreener/internal/metrics"
	"BreakoutScreener/internal/model"
)

// CacheOptions configures a SeriesCache.
type CacheOptions struct {
	// MaxEntries bounds the cache with LRU eviction. Zero means unbounded.
	MaxEntries int
	// FetchTimeout bounds one provider call. A shared fetch is not cancelled
	// when the caller that started it goes away.
	FetchTimeout time.Duration
	Logger       *logrus.Entry
	Metrics      *metrics.Metrics
}

// CacheStats are cumulative counters of a SeriesCache.
type CacheStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Fetches   int64 `json:"fetches"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

type cacheKey struct {
	symbol, start, end string
}

func (k cacheKey) String() string { return k.symbol + "|" + k.start + "|" + k.end }

type cacheEntry struct {
	key    cacheKey
	series model.PriceSeries
}

// SeriesCache memoises cleaned price series by (symbol, start date, end date).
// It is safe for concurrent use; concurrent requests for the same key share
// one provider call. Failed fetches are not cached.
type SeriesCache struct {
	fetcher Fetcher
	opts    CacheOptions
	log     *logrus.Entry
	group   singleflight.Group

	mu    sync.Mutex
	ll    *list.List
	items map[cacheKey]*list.Element
	stats CacheStats
}

// NewSeriesCache creates an empty cache in front of fetcher.
func NewSeriesCache(fetcher Fetcher, opts CacheOptions) *SeriesCache {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	return &SeriesCache{
		fetcher: fetcher,
		opts:    opts,
		log:     logging.OrDiscard(opts.Logger),
		ll:      list.New(),
		items:   make(map[cacheKey]*list.Element),
	}
}

// Get returns the cleaned series for symbol over [start, end). The returned
// series is a copy the caller may modify.
func (c *SeriesCache) Get(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	key := cacheKey{symbol: symbol, start: start.Format(model.DateLayout), end: end.Format(model.DateLayout)}

	if s, ok := c.lookup(key); ok {
		c.opts.Metrics.CacheHit()
		return s.Clone(), nil
	}
	c.opts.Metrics.CacheMiss()

	ch := c.group.DoChan(key.String(), func() (any, error) {
		if s, ok := c.peek(key); ok {
			return s, nil
		}
		return c.fetch(ctx, key, symbol, start, end)
	})

	select {
	case <-ctx.Done():
		return model.PriceSeries{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.PriceSeries{}, res.Err
		}
		return res.Val.(model.PriceSeries).Clone(), nil
	}
}

func (c *SeriesCache) fetch(ctx context.Context, key cacheKey, symbol string, start, end time.Time) (model.PriceSeries, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
	defer cancel()

	c.mu.Lock()
	c.stats.Fetches++
	c.mu.Unlock()

	began := time.Now()
	raw, err := c.fetcher.FetchBars(fctx, symbol, start, end)
	c.opts.Metrics.ObserveFetch(c.fetcher.Name(), time.Since(began), err)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Source: c.fetcher.Name(), Symbol: symbol, Err: err}
		}
		c.log.WithFields(logrus.Fields{"symbol": symbol, "source": c.fetcher.Name()}).WithError(err).Warn("fetch failed")
		return model.PriceSeries{}, &DataUnavailableError{Symbol: symbol, Err: err}
	}

	series := raw.Clean()
	series.Symbol = symbol
	c.store(key, series)
	c.log.WithFields(logrus.Fields{
		"symbol": symbol,
		"bars":   series.Len(),
		"took":   time.Since(began).Round(time.Millisecond),
	}).Debug("series cached")
	return series, nil
}

func (c *SeriesCache) lookup(key cacheKey) (model.PriceSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return model.PriceSeries{}, false
	}
	c.stats.Hits++
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).series, true
}

// peek is lookup without touching the counters.
func (c *SeriesCache) peek(key cacheKey) (model.PriceSeries, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		return el.Value.(*cacheEntry).series, true
	}
	return model.PriceSeries{}, false
}

func (c *SeriesCache) store(key cacheKey, series model.PriceSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).series = series
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, series: series})

	for c.opts.MaxEntries > 0 && c.ll.Len() > c.opts.MaxEntries {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
		c.stats.Evictions++
		c.opts.Metrics.CacheEvicted()
	}
}

// Len returns the number of cached series.
func (c *SeriesCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Purge drops every entry. Counters are kept.
func (c *SeriesCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[cacheKey]*list.Element)
}

func (c *SeriesCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.ll.Len()
	return s
}
