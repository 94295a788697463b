package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/maltedev/marketplace-scraper/internal/browser"
	"github.com/maltedev/marketplace-scraper/internal/config"
	"github.com/maltedev/marketplace-scraper/internal/database"
	"github.com/maltedev/marketplace-scraper/internal/exporter"
	"github.com/maltedev/marketplace-scraper/internal/logger"
	"github.com/maltedev/marketplace-scraper/internal/parser"
	"github.com/maltedev/marketplace-scraper/internal/ratelimit"
	"github.com/maltedev/marketplace-scraper/internal/scraper"
	"github.com/redis/go-redis/v9"
)

// app holds what outlives a single browser session: configuration, the
// lookup pacer, and the optional database, store and relay.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	pacer    *ratelimit.AdaptiveRateLimiter
	exporter *exporter.Exporter

	db    *database.DB
	store *database.Store
	redis *redis.Client
	relay *database.Relay

	closers []io.Closer
}

func newLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	if cfg.File != "" {
		return logger.NewFile(cfg.Level, cfg.Format, cfg.File)
	}
	return logger.New(cfg.Level, cfg.Format, os.Stderr), nil, nil
}

// newApp connects the optional backends. Persistence is off unless
// DB_ENABLED is set; the relay additionally needs REDIS_ADDR.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	log, logCloser, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   log,
		pacer:    ratelimit.NewAdaptiveRateLimiter(cfg.Scraper.LookupDelayMin, cfg.Scraper.LookupDelayMax),
		exporter: exporter.New(cfg.Scraper.OutputDir, log),
	}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}

	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if !cfg.Database.Enabled {
		return a, nil
	}

	a.db, err = database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.DBName,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := a.db.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	a.store = database.NewStore(a.db, cfg.Redis.Stream)

	if cfg.Redis.Addr == "" {
		a.logger.Warn("REDIS_ADDR not set, outbox events stay in the database")
		return a, nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.relay = database.NewRelay(a.db, a.redis, a.logger, database.RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	})
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis client", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	for _, c := range a.closers {
		c.Close()
	}
}

// run executes req in a fresh browser session that is always released.
func (a *app) run(ctx context.Context, req scraper.Request) (*scraper.Report, error) {
	var report *scraper.Report

	err := browser.WithSession(ctx, a.browserOptions(), a.logger, func(ctx context.Context, s *browser.Session) error {
		var err error
		report, err = a.marketplace(s).Run(ctx, req)
		return err
	})

	return report, err
}

func (a *app) marketplace(s *browser.Session) *scraper.Marketplace {
	mc := a.cfg.Marketplace

	loader := browser.NewLoader(s.Page(), browser.LoaderOptions{
		ScrollPixels: a.cfg.Loader.ScrollPixels,
		ScrollPause:  a.cfg.Loader.ScrollPause,
		PollInterval: a.cfg.Loader.PollInterval,
		StablePolls:  a.cfg.Loader.StablePolls,
	}, a.logger)

	deps := scraper.Deps{
		Loader:   loader,
		Cards:    parser.NewCardExtractor(mc.ProductHost, a.logger),
		Offers:   parser.NewOfferParser(a.logger),
		Exporter: a.exporter,
		Pacer:    a.pacer,
	}
	if a.store != nil {
		deps.Sink = a.store
	}

	return scraper.New(deps, scraper.Options{
		BaseURL:           mc.BaseURL,
		CatalogURL:        mc.CatalogURL,
		SearchScrollSteps: mc.SearchScrollSteps,
		OfferScrollSteps:  mc.OfferScrollSteps,
		SettleTimeout:     a.cfg.Loader.SettleTimeout,
		WriteJSON:         a.cfg.Scraper.WriteJSON,
	}, a.logger)
}

func (a *app) browserOptions() *browser.Options {
	bc := a.cfg.Browser
	return &browser.Options{
		Headless:       bc.Headless,
		Timeout:        bc.Timeout,
		UserAgent:      bc.UserAgent,
		Locale:         bc.Locale,
		Languages:      bc.Languages,
		Vendor:         bc.Vendor,
		Platform:       bc.Platform,
		WebGLVendor:    bc.WebGLVendor,
		Renderer:       bc.Renderer,
		ViewportWidth:  bc.ViewportWidth,
		ViewportHeight: bc.ViewportHeight,
	}
}

// flush publishes the events a CLI run left in the outbox.
func (a *app) flush(ctx context.Context) {
	if a.relay == nil {
		return
	}

	published, err := a.relay.Flush(ctx)
	if err != nil {
		a.logger.Error("failed to flush outbox", "error", err)
		return
	}
	a.logger.Info("outbox flushed", "published", published)
}
