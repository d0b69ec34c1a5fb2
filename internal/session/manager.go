package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"BreakoutScreener/internal/collector"
	"BreakoutScreener/internal/logging"
	"BreakoutScreener/internal/metrics"
	"BreakoutScreener/internal/scanner"
)

var ErrNotFound = errors.New("session not found")

type ManagerConfig struct {
	Fetcher collector.Fetcher
	Scanner *scanner.Scanner
	Cache   collector.CacheOptions
	// IdleTTL is how long an inactive session survives Sweep.
	IdleTTL time.Duration
	Logger  *logrus.Entry
	Metrics *metrics.Metrics
}

// Manager owns the live sessions. Sessions share nothing but the fetcher.
type Manager struct {
	cfg ManagerConfig
	log *logrus.Entry
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * time.Hour
	}
	if cfg.Cache.Metrics == nil {
		cfg.Cache.Metrics = cfg.Metrics
	}
	return &Manager{
		cfg:      cfg,
		log:      logging.OrDiscard(cfg.Logger),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session with an empty cache.
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	cacheOpts := m.cfg.Cache
	cacheOpts.Logger = m.log.WithField("session", id)
	s := newSession(id, collector.NewSeriesCache(m.cfg.Fetcher, cacheOpts), m.cfg.Scanner, m.log, m.now)

	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.cfg.Metrics.SetActiveSessions(n)
	m.log.WithField("session", id).Info("session created")
	return s
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close ends and forgets a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.close()
	m.cfg.Metrics.SetActiveSessions(n)
	m.log.WithField("session", id).Info("session closed")
	return nil
}

// Sweep closes sessions idle for longer than IdleTTL and returns how many.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.idleSince(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range stale {
		s.close()
	}
	if len(stale) > 0 {
		m.cfg.Metrics.SetActiveSessions(n)
		m.log.WithField("closed", len(stale)).Info("idle sessions swept")
	}
	return len(stale)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll ends every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.close()
	}
	m.cfg.Metrics.SetActiveSessions(0)
}
