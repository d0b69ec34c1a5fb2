package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"BreakoutScreener/internal/api"
	"BreakoutScreener/internal/collector"
	"BreakoutScreener/internal/config"
	"BreakoutScreener/internal/logging"
	"BreakoutScreener/internal/metrics"
	"BreakoutScreener/internal/notifier"
	"BreakoutScreener/internal/scanner"
	"BreakoutScreener/internal/scheduler"
	"BreakoutScreener/internal/session"
	"BreakoutScreener/internal/strategy"
	"BreakoutScreener/internal/universe"
)

func main() {
	once := flag.String("once", "", "scan this universe once, print the result as JSON and exit")
	rankBy := flag.String("rank", "", "ranking for -once: empty or rsi")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("config validation: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		logrus.Fatalf("init logger: %v", err)
	}
	log := logging.Component(logger, "main")
	log.Info("BreakoutScreener starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	fetcher := newFetcher(cfg)
	log.WithField("source", fetcher.Name()).Info("price provider selected")

	universes, err := newUniverses(cfg)
	if err != nil {
		log.WithError(err).Fatal("init universes")
	}

	detector, err := strategy.NewDetector(cfg.Detector)
	if err != nil {
		log.WithError(err).Fatal("init detector")
	}

	cacheOpts := collector.CacheOptions{
		MaxEntries:   cfg.Cache.MaxEntries,
		FetchTimeout: cfg.Scan.FetchTimeout,
		Logger:       logging.Component(logger, "cache"),
		Metrics:      m,
	}
	sc, err := scanner.New(scanner.Config{
		Universes:    universes,
		Detector:     detector,
		Workers:      cfg.Scan.Workers,
		FetchTimeout: cfg.Scan.FetchTimeout,
		RSIWindow:    cfg.Scan.RSIWindow,
		Logger:       logging.Component(logger, "scanner"),
		Metrics:      m,
	})
	if err != nil {
		log.WithError(err).Fatal("init scanner")
	}

	sessions := session.NewManager(session.ManagerConfig{
		Fetcher: fetcher,
		Scanner: sc,
		Cache:   cacheOpts,
		IdleTTL: cfg.Session.IdleTTL,
		Logger:  logging.Component(logger, "session"),
		Metrics: m,
	})
	defer sessions.CloseAll()

	schedCfg := scheduler.Config{
		Scanner:      sc,
		Fetcher:      fetcher,
		Cache:        cacheOpts,
		Universes:    universes,
		Sessions:     sessions,
		Jobs:         cfg.Schedule.Jobs,
		SweepCron:    cfg.Schedule.SweepCron,
		LookbackDays: cfg.Server.LookbackDays,
		ScanTimeout:  cfg.Schedule.ScanTimeout,
		Logger:       logging.Component(logger, "scheduler"),
	}

	if *once != "" {
		sched := scheduler.NewScheduler(ctx, schedCfg)
		res, err := sched.RunScan(ctx, *once, *rankBy, 0)
		if err != nil {
			log.WithError(err).Fatal("scan failed")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.WithError(err).Fatal("write result")
		}
		return
	}

	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn, err = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logging.Component(logger, "telegram"))
		if err != nil {
			log.WithError(err).Fatal("init telegram notifier")
		}
		schedCfg.Notifier = tn
	} else {
		log.Warn("telegram not configured, scheduled reports are only logged")
	}

	sched := scheduler.NewScheduler(ctx, schedCfg)
	if err := sched.RegisterAll(); err != nil {
		log.WithError(err).Fatal("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go func() {
			if err := tn.StartPolling(ctx, sched.HandleCommand); err != nil {
				log.WithError(err).Error("telegram polling stopped")
			}
		}()
		log.Info("telegram polling started")
	}

	if cfg.Schedule.RunOnStart {
		log.Info("run_on_start enabled, executing scheduled scans now")
		go sched.RunJobsNow()
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewServer(api.Config{
			Sessions:        sessions,
			Universes:       universes,
			Metrics:         m,
			Indicators:      cfg.Indicators,
			DefaultLookback: time.Duration(cfg.Server.LookbackDays) * 24 * time.Hour,
			Logger:          logging.Component(logger, "api"),
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	log.Info("BreakoutScreener stopped")
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	switch cfg.Provider.Name {
	case config.ProviderREST:
		return collector.NewRESTFetcher(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Proxy)
	case config.ProviderMock:
		return &collector.MockFetcher{Price: cfg.Provider.MockPrice}
	default:
		return collector.NewYahooFetcher(cfg.Proxy)
	}
}

func newUniverses(cfg *config.Config) (*universe.Registry, error) {
	var providers []universe.Provider
	if cfg.Universes.StaticFile != "" {
		p, err := universe.LoadStaticFile(cfg.Universes.StaticFile)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.Universes.CSVURL != "" {
		providers = append(providers, universe.NewCSVProvider(cfg.Universes.CSVURL, cfg.Universes.CSVSuffix, cfg.Universes.CSVIndexes, cfg.Universes.TTL))
	}
	if cfg.Universes.Wikipedia {
		providers = append(providers, universe.NewWikipediaProvider(cfg.Universes.TTL))
	}
	if len(providers) == 0 {
		return nil, errors.New("no universe source configured")
	}
	return universe.NewRegistry(providers...), nil
}
