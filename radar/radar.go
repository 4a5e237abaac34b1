// Package radar is the crypto-social ingestion orchestrator: it
// schedules source crawls, drives the authenticated browser session,
// deduplicates into sqlite, tracks term buzz, scores items, and
// publishes ranked snapshots.
package radar

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/solweave/degenradar/dbopen"
	"github.com/solweave/degenradar/idgen"
	"github.com/solweave/degenradar/radar/internal/adapter"
	"github.com/solweave/degenradar/radar/internal/buzz"
	"github.com/solweave/degenradar/radar/internal/fetch"
	"github.com/solweave/degenradar/radar/internal/jobcache"
	"github.com/solweave/degenradar/radar/internal/scheduler"
	"github.com/solweave/degenradar/radar/internal/scoring"
	"github.com/solweave/degenradar/radar/internal/session"
	"github.com/solweave/degenradar/radar/internal/snapshot"
	"github.com/solweave/degenradar/radar/internal/store"
)

// Service owns every stateful component: the cache store, buzz
// accelerator, persistence gateway, session worker, scoring engine,
// publisher, and the scheduler that drives them. Adapters and the
// scoring function receive these by reference; there is no
// package-level mutable state anywhere in the module.
type Service struct {
	cfg    *Config
	logger *slog.Logger

	db        *sql.DB
	gateway   *store.Store
	cache     *jobcache.Store
	accel     *buzz.Accelerator
	engine    *scoring.Engine
	publisher *snapshot.Publisher
	worker    *session.Worker
	sched     *scheduler.Scheduler

	adapters map[string]adapter.Adapter
	sources  map[string]adapter.CrawlSource
	plans    map[string]scheduler.SourcePlan

	newID idgen.Generator
	now   func() time.Time
}

// Option configures a Service during creation.
type Option func(*Service)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAdapter registers (or replaces) a source adapter with its crawl
// descriptor and scheduling plan. Used in tests to substitute fakes.
func WithAdapter(a Adapter, src CrawlSource, plan SourcePlan) Option {
	return func(s *Service) {
		name := a.Name()
		src.Name = name
		plan.Name = name
		s.adapters[name] = a
		s.sources[name] = src
		s.plans[name] = plan
	}
}

// New creates a Service from cfg. Call Start to begin crawling.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("radar: create data dir: %w", err)
	}

	db, err := dbopen.Open(cfg.DBPath(), dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
	if err != nil {
		return nil, fmt.Errorf("radar: open database: %w", err)
	}

	svc := &Service{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		gateway:  store.NewStore(db),
		engine:   scoring.New(),
		adapters: make(map[string]adapter.Adapter),
		sources:  make(map[string]adapter.CrawlSource),
		plans:    make(map[string]scheduler.SourcePlan),
		newID:    idgen.Default,
		now:      time.Now,
	}
	// Subsystems close over svc.now so WithClock reaches all of them.
	clock := func() time.Time { return svc.now() }

	svc.cache = jobcache.New(filepath.Join(cfg.DataDir, "scrape_cache.json"), logger,
		jobcache.WithTTL(cfg.CacheTTL), jobcache.WithClock(clock))

	accel, err := buzz.New(cfg.DataDir, logger, buzz.WithClock(clock))
	if err != nil {
		db.Close()
		return nil, err
	}
	svc.accel = accel

	pubOpts := []snapshot.Option{snapshot.WithClock(clock)}
	if cfg.Remote.BaseURL != "" {
		sink := snapshot.NewRemoteSink(cfg.Remote.BaseURL, logger, snapshot.WithToken(cfg.Remote.Token))
		pubOpts = append(pubOpts, snapshot.WithRemote(sink))
	}
	publisher, err := snapshot.NewPublisher(cfg.DataDir, logger, pubOpts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	svc.publisher = publisher

	if err := svc.buildAdapters(); err != nil {
		db.Close()
		return nil, err
	}

	for _, opt := range opts {
		opt(svc)
	}

	svc.sched = scheduler.New(svc.runCycle, logger, scheduler.WithClock(clock))
	for _, plan := range svc.plans {
		svc.sched.AddSource(plan)
	}

	logger.Info("radar: service ready", "sources", svc.SourceNames(), "data_dir", cfg.DataDir)
	return svc, nil
}

// buildAdapters wires one adapter per enabled source from the config.
func (s *Service) buildAdapters() error {
	cfg := s.cfg
	fetcher := fetch.New(fetch.Config{}, s.logger)
	resultsDir := filepath.Join(cfg.DataDir, "results")

	if cfg.Twitter.Enabled {
		mgr := session.NewManager(session.Config{
			Username:   cfg.Twitter.Username,
			Password:   cfg.Twitter.Password,
			BaseURL:    cfg.Twitter.BaseURL,
			CookiePath: filepath.Join(cfg.DataDir, "cookies.json"),
			ItemCap:    cfg.Twitter.ItemCap,
			Headless:   !cfg.Twitter.Headful,
			Logger:     s.logger,
		})
		s.worker = session.NewWorker(mgr)

		tw, err := adapter.NewTwitter(s.worker, s.cache, resultsDir, s.logger)
		if err != nil {
			return err
		}
		s.adapters["twitter"] = tw
		s.sources["twitter"] = adapter.CrawlSource{
			Name:          "twitter",
			Kind:          adapter.KindBrowser,
			Queries:       cfg.Twitter.Queries,
			ItemCap:       cfg.Twitter.ItemCap,
			MinEngagement: cfg.Twitter.MinEngagement,
		}
		plan := scheduler.SourcePlan{
			Name:      "twitter",
			Interval:  cfg.Twitter.Interval,
			JitterPct: cfg.Twitter.JitterPct,
		}
		if w := cfg.Twitter.ActiveHours; w != nil {
			plan.ActiveHours = &scheduler.Window{StartHour: w.Start, EndHour: w.End}
		}
		s.plans["twitter"] = plan
	}

	if cfg.Reddit.Enabled {
		s.adapters["reddit"] = adapter.NewReddit(fetcher, s.logger)
		s.sources["reddit"] = adapter.CrawlSource{
			Name:     "reddit",
			Kind:     adapter.KindRest,
			Endpoint: cfg.Reddit.Endpoint,
			Queries:  cfg.Reddit.Subreddits,
			ItemCap:  cfg.Reddit.ItemCap,
		}
		s.plans["reddit"] = scheduler.SourcePlan{Name: "reddit", Interval: cfg.Reddit.Interval}
	}

	if cfg.News.Enabled {
		news, err := adapter.NewNews(fetcher, s.cache, resultsDir, s.logger)
		if err != nil {
			return err
		}
		s.adapters["news"] = news
		s.sources["news"] = adapter.CrawlSource{
			Name:     "news",
			Kind:     adapter.KindRest,
			Endpoint: cfg.News.Endpoint,
			ItemCap:  cfg.News.ItemCap,
		}
		s.plans["news"] = scheduler.SourcePlan{Name: "news", Interval: cfg.News.Interval}
	}

	if cfg.Dex.Enabled {
		s.adapters["dex"] = adapter.NewDex(fetcher, s.logger)
		s.sources["dex"] = adapter.CrawlSource{
			Name:     "dex",
			Kind:     adapter.KindRest,
			Endpoint: cfg.Dex.Endpoint,
			ItemCap:  cfg.Dex.ItemCap,
		}
		s.plans["dex"] = scheduler.SourcePlan{Name: "dex", Interval: cfg.Dex.Interval}
	}

	return nil
}

// SourceNames lists the configured sources.
func (s *Service) SourceNames() []string {
	names := make([]string, 0, len(s.adapters))
	for name := range s.adapters {
		names = append(names, name)
	}
	return names
}

// Start runs the scheduler until ctx is cancelled. Blocking.
func (s *Service) Start(ctx context.Context) error {
	if len(s.adapters) == 0 {
		return fmt.Errorf("radar: no sources enabled")
	}
	s.sched.Start(ctx)
	return nil
}

// RunSourceOnce executes a single cycle for the named source,
// bypassing the scheduler. Used by the -once flag and for manual
// backfills.
func (s *Service) RunSourceOnce(ctx context.Context, name string) (CycleSummary, error) {
	if _, ok := s.adapters[name]; !ok {
		return CycleSummary{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	sum := s.runCycle(ctx, name)
	if sum.Status == scheduler.StatusError {
		return sum, fmt.Errorf("radar: %s cycle failed: %s", name, sum.ErrorMessage)
	}
	return sum, nil
}

// runCycle is one full pass for one source: fetch, upsert, buzz
// record, score, publish, fetch-log. Never panics the scheduler; all
// failure lands in the summary.
func (s *Service) runCycle(ctx context.Context, name string) scheduler.CycleSummary {
	start := s.now()
	sum := scheduler.CycleSummary{Source: name, Status: scheduler.StatusError}

	a, ok := s.adapters[name]
	if !ok {
		sum.ErrorMessage = ErrUnknownSource.Error()
		return sum
	}

	items, err := a.Fetch(ctx, s.sources[name])
	if err != nil {
		sum.ErrorMessage = err.Error()
		if errors.Is(err, session.ErrAuthFailed) && s.worker != nil {
			sum.AuthFailures = s.worker.ConsecutiveAuthFailures()
			s.logger.Error("radar: authentication failing",
				"source", name, "consecutive", sum.AuthFailures)
		}
		s.finishCycle(ctx, &sum, start)
		return sum
	}
	sum.Items = len(items)

	report, err := s.gateway.Upsert(ctx, items)
	if err != nil {
		sum.ErrorMessage = fmt.Sprintf("upsert: %v", err)
		s.finishCycle(ctx, &sum, start)
		return sum
	}
	sum.Inserted = report.Inserted

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Body
	}
	s.accel.Record(texts)

	now := s.now()
	scored := make([]snapshot.ScoredItem, 0, len(items))
	for _, item := range items {
		scored = append(scored, snapshot.ScoredItem{
			RawItem: item,
			Score:   s.engine.Score(item, s.accel.AccelerationOf, nil, now),
		})
	}

	sum.Status = scheduler.StatusSuccess
	if err := s.publisher.Publish(ctx, name, scored); err != nil {
		// Items are persisted; only the snapshot is missing.
		sum.Status = scheduler.StatusPartial
		sum.ErrorMessage = fmt.Sprintf("publish: %v", err)
	}

	s.finishCycle(ctx, &sum, start)
	return sum
}

// finishCycle stamps the duration and records the fetch_log row.
func (s *Service) finishCycle(ctx context.Context, sum *scheduler.CycleSummary, start time.Time) {
	sum.Duration = s.now().Sub(start)

	entry := &store.FetchLogEntry{
		ID:           s.newID(),
		SourceName:   sum.Source,
		Status:       string(sum.Status),
		Items:        sum.Items,
		Inserted:     sum.Inserted,
		ErrorMessage: sum.ErrorMessage,
		DurationMs:   sum.Duration.Milliseconds(),
		FetchedAt:    s.now().UnixMilli(),
	}
	if err := s.gateway.InsertFetchLog(ctx, entry); err != nil {
		s.logger.Warn("radar: fetch log insert failed", "source", sum.Source, "error", err)
	}
}

// FetchHistory exposes recent cycle records for a source.
func (s *Service) FetchHistory(ctx context.Context, source string, limit int) ([]*store.FetchLogEntry, error) {
	return s.gateway.FetchHistory(ctx, source, limit)
}

// ListRecent returns the latest persisted items for a source ("" for
// all sources).
func (s *Service) ListRecent(ctx context.Context, source string, limit int) ([]RawItem, error) {
	return s.gateway.ListRecent(ctx, source, limit)
}

// Latest returns the most recently published snapshot for a source.
func (s *Service) Latest(source string) (*Snapshot, error) {
	return s.publisher.Latest(source)
}

// Close releases the session worker, flushes buzz snapshots, and
// closes the database.
func (s *Service) Close() error {
	if s.worker != nil {
		s.worker.Close()
	}
	if err := s.accel.Close(); err != nil {
		s.logger.Warn("radar: buzz flush on close failed", "error", err)
	}
	return s.db.Close()
}
