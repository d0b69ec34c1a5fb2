package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"BreakoutScreener/internal/calculator"
	"BreakoutScreener/internal/collector"
	"BreakoutScreener/internal/model"
	"BreakoutScreener/internal/scanner"
)

// Status of the current scan of a session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrNoData is returned for chart requests on symbols without price history.
var ErrNoData = errors.New("no price data for symbol")

// Snapshot is a point-in-time view of a session's scan.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	ScanID    string            `json:"scan_id,omitempty"`
	Status    Status            `json:"status"`
	Request   *ScanRequest      `json:"request,omitempty"`
	Progress  model.Progress    `json:"progress"`
	Result    *model.ScanResult `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// ScanRequest echoes the parameters of the current scan.
type ScanRequest struct {
	Universe string    `json:"universe"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	RankBy   string    `json:"rank_by,omitempty"`
}

// Session is one user's working state: a private series cache and at most
// one scan. Starting a scan cancels the one in progress.
type Session struct {
	ID string

	cache   *collector.SeriesCache
	scanner *scanner.Scanner
	log     *logrus.Entry

	mu       sync.Mutex
	scanID   string
	request  *ScanRequest
	cancel   context.CancelFunc
	done     chan struct{}
	status   Status
	progress model.Progress
	result   *model.ScanResult
	err      error
	lastUsed time.Time
	subs     map[int]chan model.Progress
	nextSub  int
	now      func() time.Time
}

func newSession(id string, cache *collector.SeriesCache, sc *scanner.Scanner, log *logrus.Entry, now func() time.Time) *Session {
	return &Session{
		ID:       id,
		cache:    cache,
		scanner:  sc.WithSeries(cache),
		log:      log.WithField("session", id),
		status:   StatusIdle,
		lastUsed: now(),
		subs:     make(map[int]chan model.Progress),
		now:      now,
	}
}

// StartScan validates req, cancels any running scan and starts a new one in
// the background. It returns the new scan id.
func (s *Session) StartScan(req scanner.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	done := make(chan struct{})

	s.scanID = id
	s.request = &ScanRequest{Universe: req.Universe, Start: req.Start, End: req.End, RankBy: req.RankBy}
	s.cancel = cancel
	s.done = done
	s.status = StatusRunning
	s.progress = model.Progress{}
	s.result = nil
	s.err = nil
	s.lastUsed = s.now()

	go s.run(ctx, id, req, done)
	return id, nil
}

func (s *Session) run(ctx context.Context, id string, req scanner.Request, done chan struct{}) {
	defer close(done)

	res, err := s.scanner.Scan(ctx, req, func(p model.Progress) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.scanID != id {
			return
		}
		s.progress = p
		s.publishLocked(p)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanID != id {
		return
	}
	s.cancel()
	s.cancel = nil
	switch {
	case err == nil:
		s.status = StatusCompleted
		s.result = res
	case errors.Is(err, context.Canceled):
		s.status = StatusCancelled
	default:
		s.status = StatusFailed
		s.err = err
		s.log.WithError(err).Warn("scan failed")
	}
}

// stopLocked cancels the running scan, if any. The caller holds s.mu.
func (s *Session) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.status = StatusCancelled
	}
}

// Reset cancels any scan, discards its result and empties the cache.
func (s *Session) Reset() {
	s.mu.Lock()
	s.stopLocked()
	s.scanID = ""
	s.request = nil
	s.status = StatusIdle
	s.progress = model.Progress{}
	s.result = nil
	s.err = nil
	s.lastUsed = s.now()
	s.mu.Unlock()

	s.cache.Purge()
}

// Wait blocks until the current scan finishes or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.now()
	snap := Snapshot{
		SessionID: s.ID,
		ScanID:    s.scanID,
		Status:    s.status,
		Request:   s.request,
		Progress:  s.progress,
		Result:    s.result,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// Subscribe returns a channel of progress reports for scans of this session
// and a function that ends the subscription. Slow readers miss reports.
func (s *Session) Subscribe() (<-chan model.Progress, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan model.Progress, 64)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Session) publishLocked(p model.Progress) {
	for _, ch := range s.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// Frame returns the indicator frame of symbol, reading through the session
// cache. Settings are validated before anything is fetched.
func (s *Session) Frame(ctx context.Context, symbol string, start, end time.Time, settings calculator.Settings) (*model.IndicatorFrame, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	s.touch()
	series, err := s.cache.Get(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if series.Empty() {
		return nil, ErrNoData
	}
	return calculator.BuildFrame(series, settings)
}

func (s *Session) CacheStats() collector.CacheStats { return s.cache.Stats() }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

func (s *Session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status != StatusRunning && s.lastUsed.Before(cutoff)
}

// close ends the session: the scan is cancelled and subscribers are released.
func (s *Session) close() {
	s.Reset()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
