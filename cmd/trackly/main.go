package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"trackly/internal/api"
	"trackly/internal/catalog"
	"trackly/internal/config"
	"trackly/internal/db"
	"trackly/internal/match"
	"trackly/internal/metrics"
	"trackly/internal/publisher"
	"trackly/internal/session"
	"trackly/internal/source"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.RefreshInterval, cfg.SessionTTL)
		msrv := mcol.Serve(cfg.MetricsAddr)
		defer shutdown(msrv)
	}

	// Bus data source
	var src source.Source
	switch cfg.BusSource {
	case config.SourcePostgres:
		dsn, dbName, err := db.ResolveFleetDSN(ctx, cfg.DatabaseURL, cfg.Fleet)
		if err != nil {
			log.Fatalf("resolve fleet database: %v", err)
		}
		if dbName != "" {
			log.Printf("using database %q for fleet %q", dbName, cfg.Fleet)
		}
		sqlDB, err := db.Open(dsn)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		defer sqlDB.Close()
		if err := db.Ping(ctx, sqlDB); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		src = source.NewPostgresSource(sqlDB)
	default:
		src = source.NewHTTPSource(cfg.BusServerURL, cfg.HTTPTimeout)
	}

	cat := catalog.New(src, cfg.LineCacheSize, catalogMetrics(mcol))
	// A failed first load is retried on the first query
	if _, err := cat.Refresh(ctx); err != nil {
		log.Printf("initial bus data load failed: %v", err)
	}

	// Optional NATS publisher for selected trips
	var pub session.Publisher
	if cfg.NATSURL != "" {
		np, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, publisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer np.Close()
		pub = np
	}

	matcher := match.NewMatcher(cat, matchObserver(mcol))
	mgr := session.NewManager(cat, matcher, pub, sessionMetrics(mcol), session.Options{
		Clock:           func() time.Time { return time.Now().In(cfg.Location) },
		DisplayLocation: cfg.DisplayLocation,
		SessionTTL:      cfg.SessionTTL,
		RefreshInterval: cfg.RefreshInterval,
	})
	mgr.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewServer(cat, mgr).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s (source=%s)", cfg.HTTPAddr, src.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			cancel()
		}
	}()

	// Block until context cancelled
	<-ctx.Done()
	shutdown(srv)
	mgr.Stop()
	log.Println("shutdown complete")
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown %s: %v", srv.Addr, err)
	}
}

// The helpers below keep a nil *Collector from turning into a non-nil
// interface value.

func catalogMetrics(c *metrics.Collector) catalog.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func publisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return c
}

func sessionMetrics(c *metrics.Collector) session.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func matchObserver(c *metrics.Collector) match.Observer {
	if c == nil {
		return nil
	}
	return c
}
