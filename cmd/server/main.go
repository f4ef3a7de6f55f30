package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-bidding/internal/config"
	"github.com/example/ride-bidding/internal/conn"
	"github.com/example/ride-bidding/internal/dispatch"
	"github.com/example/ride-bidding/internal/eta"
	"github.com/example/ride-bidding/internal/httpapi"
	"github.com/example/ride-bidding/internal/ingest"
	"github.com/example/ride-bidding/internal/logging"
	"github.com/example/ride-bidding/internal/payments"
	"github.com/example/ride-bidding/internal/presence"
	"github.com/example/ride-bidding/internal/recovery"
	"github.com/example/ride-bidding/internal/ride"
	"github.com/example/ride-bidding/internal/router"
	"github.com/example/ride-bidding/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var store storage.Store
	if cfg.PGDSN != "" {
		maybeMigrate(cfg.PGDSN)
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		store = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	var tracker presence.Tracker = presence.NewIndex()
	if cfg.RedisAddr != "" {
		tracker = presence.NewRedisMirror(tracker, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	}

	var producer *ingest.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewProducer(cfg.KafkaBrokers, cfg.RideEventsTopic, cfg.PresenceTopic)
		defer producer.Close()
	}

	var pay ride.Payments
	if os.Getenv("STRIPE_API_KEY") != "" {
		pay = payments.NewStripeClient()
	}

	conns := conn.NewRegistry()
	coord := ride.NewCoordinator(store, tracker, conns, pay, logger)
	coord.WriteTimeout = cfg.StorageWriteTimeout
	coord.WriteAttempts = cfg.StorageWriteAttempts
	coord.RetryDelay = cfg.StorageRetryDelay

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Boot-time recovery is fatal on failure: an empty index would silently
	// drop in-flight rides.
	n, err := recovery.RecoverActiveRequests(ctx, store, coord)
	if err != nil {
		logger.Error("recovery failed, refusing to start", "error", err)
		os.Exit(1)
	}
	logger.Info("recovered active ride requests", "count", n)

	reconciler := &recovery.Reconciler{
		Store:    store,
		Idx:      coord,
		Interval: cfg.ReconcileInterval,
		Sample:   cfg.ReconcileSample,
		Logger:   logger,
	}
	go reconciler.Run(ctx)

	hub := dispatch.NewHub(logger)
	est := &eta.Estimator{SpeedMps: cfg.DefaultSpeedMps, Cache: eta.NewCache(5 * time.Minute)}
	if cfg.OSRMEndpoint != "" {
		est.Client = eta.NewOSRMClient(cfg.OSRMEndpoint)
	}
	rt := &router.Router{
		Conns:     conns,
		Coord:     coord,
		Hub:       hub,
		Presence:  tracker,
		Store:     store,
		Estimator: est,
		Logger:    logger,
	}
	if producer != nil {
		rt.Events = producer
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(rt, hub, coord, store, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shctx)
	}()

	logger.Info("ride-bidding listening", "addr", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// maybeMigrate applies the bundled schema when MIGRATE=true, mirroring how
// local and CI environments bootstrap.
func maybeMigrate(dsn string) {
	if !strings.EqualFold(os.Getenv("MIGRATE"), "true") {
		return
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Printf("migration db open error: %v", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_ride_requests.sql"))
	if err != nil {
		log.Printf("migration read error: %v", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		log.Printf("migration exec error: %v", err)
		return
	}
	log.Printf("migration applied: 001_create_ride_requests.sql")
}
