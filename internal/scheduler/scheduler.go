package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"BreakoutScreener/internal/collector"
	"BreakoutScreener/internal/logging"
	"BreakoutScreener/internal/model"
	"BreakoutScreener/internal/notifier"
	"BreakoutScreener/internal/scanner"
	"BreakoutScreener/internal/session"
	"BreakoutScreener/internal/universe"
)

// Job is a scan run on a cron schedule and reported to Telegram.
type Job struct {
	Name     string `yaml:"name"`
	Cron     string `yaml:"cron"`
	Universe string `yaml:"universe"`
	RankBy   string `yaml:"rank_by"`
	// LookbackDays overrides the scheduler's default date range.
	LookbackDays int `yaml:"lookback_days"`
}

// Notifier delivers reports.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

type Config struct {
	Scanner   *scanner.Scanner
	Fetcher   collector.Fetcher
	Cache     collector.CacheOptions
	Universes universe.Provider
	Sessions  *session.Manager
	Notifier  Notifier
	Jobs      []Job
	// SweepCron schedules closing of idle sessions. Empty disables it.
	SweepCron    string
	LookbackDays int
	ScanTimeout  time.Duration
	Logger       *logrus.Entry
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron *cron.Cron
	cfg  Config
	ctx  context.Context
	log  *logrus.Entry
	now  func() time.Time
}

// NewScheduler creates a new Scheduler. Cron specs carry a seconds field.
func NewScheduler(ctx context.Context, cfg Config) *Scheduler {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 365
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 15 * time.Minute
	}
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		cfg:  cfg,
		ctx:  ctx,
		log:  logging.OrDiscard(cfg.Logger),
		now:  time.Now,
	}
}

// RegisterAll registers every scan job and the session sweep.
func (s *Scheduler) RegisterAll() error {
	for _, job := range s.cfg.Jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Cron, func() { s.runJob(job) }); err != nil {
			return fmt.Errorf("register job %q: %w", job.Name, err)
		}
		s.log.WithFields(logrus.Fields{"job": job.Name, "cron": job.Cron, "universe": job.Universe}).Info("scan job registered")
	}
	if s.cfg.SweepCron != "" && s.cfg.Sessions != nil {
		if _, err := s.cron.AddFunc(s.cfg.SweepCron, func() { s.cfg.Sessions.Sweep() }); err != nil {
			return fmt.Errorf("register session sweep: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunJobsNow executes every job immediately (RUN_ON_START).
func (s *Scheduler) RunJobsNow() {
	for _, job := range s.cfg.Jobs {
		s.runJob(job)
	}
}

// RunScan screens a universe with a private cache that is dropped afterwards.
func (s *Scheduler) RunScan(ctx context.Context, universeName, rankBy string, lookbackDays int) (*model.ScanResult, error) {
	if lookbackDays <= 0 {
		lookbackDays = s.cfg.LookbackDays
	}
	y, m, d := s.now().Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -lookbackDays)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanTimeout)
	defer cancel()

	cache := collector.NewSeriesCache(s.cfg.Fetcher, s.cfg.Cache)
	return s.cfg.Scanner.WithSeries(cache).Scan(ctx, scanner.Request{
		Universe: universeName,
		Start:    start,
		End:      end,
		RankBy:   rankBy,
	}, nil)
}

func (s *Scheduler) runJob(job Job) {
	log := s.log.WithField("job", job.Name)
	log.Info("running scheduled scan")
	res, err := s.RunScan(s.ctx, job.Universe, job.RankBy, job.LookbackDays)
	if err != nil {
		log.WithError(err).Error("scheduled scan failed")
		s.trySend(fmt.Sprintf("❌ Scheduled scan <b>%s</b> failed: %v", job.Name, err))
		return
	}
	s.trySend(notifier.FormatScanReport(res))
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(command), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/scan":
		name, ok := s.resolveUniverse(arg)
		if !ok {
			return "Unknown universe. " + notifier.FormatUniverses(s.cfg.Universes.Universes())
		}
		res, err := s.RunScan(ctx, name, "", 0)
		if err != nil {
			return fmt.Sprintf("❌ Scan failed: %v", err)
		}
		return notifier.FormatScanReport(res)
	case "/universes":
		return notifier.FormatUniverses(s.cfg.Universes.Universes())
	default:
		return notifier.HelpText
	}
}

func (s *Scheduler) resolveUniverse(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, u := range s.cfg.Universes.Universes() {
		if strings.EqualFold(u, name) {
			return u, true
		}
	}
	return "", false
}

func (s *Scheduler) trySend(text string) {
	if s.cfg.Notifier == nil {
		return
	}
	if err := s.cfg.Notifier.SendWithRetry(s.ctx, text, 3); err != nil {
		s.log.WithError(err).Error("send notification failed")
	}
}
