package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"BreakoutScreener/internal/calculator"
	"BreakoutScreener/internal/logging"
	"BreakoutScreener/internal/metrics"
	"BreakoutScreener/internal/model"
	"BreakoutScreener/internal/strategy"
	"BreakoutScreener/internal/universe"
)

// Ranking keys accepted in Request.RankBy.
const (
	RankNone = ""
	RankRSI  = "rsi"
)

// ErrInvalidRequest is wrapped by Scan for malformed requests.
var ErrInvalidRequest = errors.New("invalid scan request")

// ErrNoSeries is returned by Scan on a scanner built without a series source.
var ErrNoSeries = errors.New("scanner has no series source")

// SeriesSource is where the scanner gets price history, normally a
// *collector.SeriesCache.
type SeriesSource interface {
	Get(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error)
}

// ProgressFunc receives one report per finished symbol. Calls are serialised.
type ProgressFunc func(model.Progress)

type Config struct {
	Universes universe.Provider
	// Series may be nil on a template scanner used only through WithSeries.
	Series    SeriesSource
	Detector  *strategy.Detector
	// Workers bounds concurrent symbol evaluations.
	Workers int
	// FetchTimeout bounds the wait for one symbol's series.
	FetchTimeout time.Duration
	// RSIWindow is used when ranking by RSI.
	RSIWindow int
	Logger    *logrus.Entry
	Metrics   *metrics.Metrics
}

type Request struct {
	Universe string
	Start    time.Time
	End      time.Time
	RankBy   string
}

// Validate checks the request without contacting any provider.
func (r Request) Validate() error {
	if r.Universe == "" {
		return fmt.Errorf("%w: universe is required", ErrInvalidRequest)
	}
	if r.Start.IsZero() || r.End.IsZero() || !r.Start.Before(r.End) {
		return fmt.Errorf("%w: start must be before end", ErrInvalidRequest)
	}
	if r.RankBy != RankNone && r.RankBy != RankRSI {
		return fmt.Errorf("%w: unknown ranking %q", ErrInvalidRequest, r.RankBy)
	}
	return nil
}

// Scanner screens a universe for breakouts.
type Scanner struct {
	cfg Config
	log *logrus.Entry
}

func New(cfg Config) (*Scanner, error) {
	if cfg.Universes == nil || cfg.Detector == nil {
		return nil, errors.New("scanner: universes and detector are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.RSIWindow <= 0 {
		cfg.RSIWindow = 14
	}
	return &Scanner{cfg: cfg, log: logging.OrDiscard(cfg.Logger)}, nil
}

// WithSeries returns a scanner sharing this one's settings but reading price
// history from src.
func (s *Scanner) WithSeries(src SeriesSource) *Scanner {
	cfg := s.cfg
	cfg.Series = src
	return &Scanner{cfg: cfg, log: s.log}
}

type outcome struct {
	verdict *model.BreakoutVerdict
	failure model.FailureKind
	rsi     float64
}

func (o outcome) label() string {
	switch {
	case o.failure != "":
		return string(o.failure)
	case o.verdict.IsBreakout:
		return "breakout"
	default:
		return "no_breakout"
	}
}

// Scan evaluates every symbol of req.Universe. Per-symbol failures are
// recorded in the result; only a universe lookup failure, an invalid request
// or cancellation of ctx make Scan return an error, and then no result.
func (s *Scanner) Scan(ctx context.Context, req Request, progress ProgressFunc) (*model.ScanResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if s.cfg.Series == nil {
		return nil, ErrNoSeries
	}
	began := time.Now()
	log := s.log.WithFields(logrus.Fields{"universe": req.Universe})

	symbols, err := s.cfg.Universes.ListSymbols(ctx, req.Universe)
	if err != nil {
		s.cfg.Metrics.ObserveScan("failed", time.Since(began))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var lookupErr *universe.LookupError
		if !errors.As(err, &lookupErr) {
			err = &universe.LookupError{Universe: req.Universe, Err: err}
		}
		log.WithError(err).Error("universe lookup failed")
		return nil, err
	}
	log.WithField("symbols", len(symbols)).Info("scan started")

	outcomes := make([]outcome, len(symbols))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o, err := s.evaluate(gctx, symbol, req)
			if err != nil {
				return err
			}
			outcomes[i] = o
			s.cfg.Metrics.ObserveSymbol(o.label())

			mu.Lock()
			done++
			if progress != nil {
				progress(model.Progress{Done: done, Total: len(symbols), Symbol: symbol, Outcome: o.label()})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			s.cfg.Metrics.ObserveScan("cancelled", time.Since(began))
			log.Info("scan cancelled")
			return nil, ctx.Err()
		}
		s.cfg.Metrics.ObserveScan("failed", time.Since(began))
		return nil, err
	}

	result := s.collect(req, symbols, outcomes)
	result.StartedAt = began
	result.FinishedAt = time.Now()
	s.cfg.Metrics.ObserveScan("completed", result.Elapsed())
	log.WithFields(logrus.Fields{
		"scanned":  result.CountScanned,
		"failed":   result.CountFailed,
		"breakout": len(result.Passing),
		"elapsed":  result.Elapsed().Round(time.Millisecond),
	}).Info("scan finished")
	return result, nil
}

func (s *Scanner) evaluate(ctx context.Context, symbol string, req Request) (outcome, error) {
	log := s.log.WithField("symbol", symbol)

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	series, err := s.cfg.Series.Get(fctx, symbol, req.Start, req.End)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{}, ctx.Err()
		}
		log.WithError(err).Warn("symbol skipped: fetch failed")
		return outcome{failure: model.FailureFetch}, nil
	}
	if series.Empty() {
		log.Debug("symbol skipped: no data")
		return outcome{failure: model.FailureNoData}, nil
	}

	verdict, err := s.cfg.Detector.Evaluate(series)
	if errors.Is(err, strategy.ErrInsufficientData) {
		log.WithField("bars", series.Len()).Debug("symbol skipped: insufficient data")
		return outcome{failure: model.FailureInsufficientData}, nil
	}
	if err != nil {
		return outcome{}, fmt.Errorf("evaluate %s: %w", symbol, err)
	}

	o := outcome{verdict: verdict, rsi: math.NaN()}
	if req.RankBy == RankRSI && verdict.IsBreakout {
		rsi, err := calculator.RSI(series.Closes(), s.cfg.RSIWindow)
		if err != nil {
			return outcome{}, err
		}
		if v, ok := rsi.Last(); ok {
			o.rsi = v
		}
	}
	return o, nil
}

func (s *Scanner) collect(req Request, symbols []string, outcomes []outcome) *model.ScanResult {
	result := &model.ScanResult{
		ID:             uuid.NewString(),
		Universe:       req.Universe,
		Start:          req.Start,
		End:            req.End,
		Passing:        []string{},
		Evaluations:    []model.BreakoutVerdict{},
		CountScanned:   len(symbols),
		FailureReasons: map[string]model.FailureKind{},
		RankedBy:       req.RankBy,
	}

	var passing []int
	for i, o := range outcomes {
		if o.failure != "" {
			result.FailureReasons[symbols[i]] = o.failure
			continue
		}
		result.Evaluations = append(result.Evaluations, *o.verdict)
		if o.verdict.IsBreakout {
			passing = append(passing, i)
		}
	}
	result.CountFailed = len(result.FailureReasons)

	if req.RankBy == RankRSI {
		sort.SliceStable(passing, func(a, b int) bool {
			ra, rb := outcomes[passing[a]].rsi, outcomes[passing[b]].rsi
			if math.IsNaN(rb) {
				return !math.IsNaN(ra)
			}
			return ra < rb
		})
	}
	for _, i := range passing {
		result.Passing = append(result.Passing, symbols[i])
	}
	return result
}
