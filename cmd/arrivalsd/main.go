package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mtd-arrivals/internal/config"
	"mtd-arrivals/internal/db"
	"mtd-arrivals/internal/favorites"
	"mtd-arrivals/internal/metrics"
	"mtd-arrivals/internal/mtd"
	"mtd-arrivals/internal/publisher"
	"mtd-arrivals/internal/server"
	"mtd-arrivals/internal/stops"
	"mtd-arrivals/internal/stream"
	"mtd-arrivals/internal/watch"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := newLogger(cfg.LogDev)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := openFavorites(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("favorites store", zap.Error(err))
	}
	defer closeStore()

	// Metrics are always collected; the listener is optional.
	mcol := metrics.NewCollector(cfg.BoardRefreshInterval, cfg.PreviewMinutes)
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(logger, cfg.MetricsAddr)
	}

	client := mtd.NewClient(logger.Named("mtd"), mtd.Options{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		PreviewMinutes: cfg.PreviewMinutes,
		Timeout:        cfg.RequestTimeout,
		Metrics:        mcol,
	})

	index := stops.NewIndex()
	mgr := watch.NewManager(logger.Named("watch"), client, index, watch.Options{
		BoardInterval:  cfg.BoardRefreshInterval,
		StopsInterval:  cfg.StopsRefreshInterval,
		Location:       cfg.Location,
		PreviewMinutes: cfg.PreviewMinutes,
		Metrics:        mcol,
	})
	// The refresher retries later if the provider is down at startup.
	if err := mgr.RefreshIndex(ctx); err != nil {
		logger.Error("initial stop index load failed", zap.Error(err))
	}
	mgr.StartRefresher(ctx)

	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(logger.Named("nats"), cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			logger.Fatal("nats error", zap.Error(err))
		}
		defer pub.Close()
		mgr.AddSink(pub)
	}

	hub := stream.NewHub(ctx, logger.Named("ws"), mgr, mcol)
	mgr.AddSink(hub)

	api := server.New(server.Options{
		Logger:      logger.Named("http"),
		Index:       index,
		Favorites:   store,
		Boards:      mgr,
		Nearby:      client,
		Stream:      hub,
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()

	// Block until context cancelled
	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	hub.Close()
	mgr.Stop()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.Info("shutdown complete")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openFavorites uses PostgreSQL when a DSN is configured and SQLite otherwise.
func openFavorites(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*favorites.SQLStore, func(), error) {
	var (
		conn  *sql.DB
		store *favorites.SQLStore
		err   error
	)
	if cfg.DatabaseURL != "" {
		dsn, err := db.WithDBName(cfg.DatabaseURL, cfg.FavoritesDB)
		if err != nil {
			return nil, nil, err
		}
		if conn, err = db.Open(dsn); err != nil {
			return nil, nil, err
		}
		store = favorites.NewPostgresStore(conn)
	} else {
		if conn, err = db.OpenSQLite(cfg.SQLiteDatabase); err != nil {
			return nil, nil, err
		}
		store = favorites.NewSQLiteStore(conn)
	}
	closeFn := func() { conn.Close() }

	if err := db.Ping(ctx, conn); err != nil {
		closeFn()
		return nil, nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	logger.Info("favorites store ready", zap.String("dialect", store.Dialect()))
	return store, closeFn, nil
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
