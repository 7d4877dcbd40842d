package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seantiz/vexing/internal/api"
	"github.com/seantiz/vexing/internal/auction"
	"github.com/seantiz/vexing/internal/bidder"
	"github.com/seantiz/vexing/internal/bidder/httpbidder"
	"github.com/seantiz/vexing/internal/bounded"
	"github.com/seantiz/vexing/internal/config"
	"github.com/seantiz/vexing/internal/deadline"
	"github.com/seantiz/vexing/internal/exchange"
	"github.com/seantiz/vexing/internal/health"
	"github.com/seantiz/vexing/internal/store"
	"github.com/seantiz/vexing/internal/storedrequest"
)

// healthCheckTimeout bounds each database health check.
const healthCheckTimeout = time.Second

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("vexing: starting",
		"listen_addr", cfg.ListenAddr,
		"db_driver", cfg.DBDriver,
		"default_timeout_ms", cfg.DefaultTimeout.Milliseconds(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := bounded.NewRunner(bounded.SystemTimers(), logger)

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN, runner)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize database pool: %v", err)
	}

	var fetcher storedrequest.Fetcher = storedrequest.NewDBFetcher(db)
	if cfg.S3.Enabled() {
		fetcher, err = storedrequest.NewS3Fetcher(storedrequest.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
		}, runner)
		if err != nil {
			log.Fatalf("failed to create S3 stored request source: %v", err)
		}
		logger.Info("stored requests: S3 source", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
	}
	if cfg.RedisAddr != "" {
		cache, err := storedrequest.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisTTL, runner)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer cache.Close()
		fetcher = storedrequest.NewCachingFetcher(cache, fetcher, logger)
		logger.Info("stored requests: redis cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL.String())
	}
	processor := storedrequest.NewProcessor(fetcher, cfg.StoredRequestTimeout, logger)

	registry := bidder.NewRegistry()
	if cfg.BiddersFile != "" {
		bidders, err := config.LoadBidders(cfg.BiddersFile)
		if err != nil {
			log.Fatalf("failed to load bidders: %v", err)
		}
		client := &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 64,
			IdleConnTimeout:     90 * time.Second,
		}}
		for _, b := range bidders {
			registry.Register(b.Name, httpbidder.New(httpbidder.Config{
				Name:      b.Name,
				Endpoint:  b.Endpoint,
				TimeoutMS: b.TimeoutMS,
			}, client, logger))
		}
		logger.Info("bidders loaded", "count", len(bidders))
	}

	dbChecker, err := health.NewPeriodicChecker("database", cfg.HealthPeriod, cfg.HealthJitter,
		func(ctx context.Context) error {
			d, err := deadline.New(healthCheckTimeout)
			if err != nil {
				return err
			}
			return db.Ping(ctx, d)
		}, logger)
	if err != nil {
		log.Fatalf("invalid health check schedule: %v", err)
	}
	dbChecker.Start(ctx)

	ex := exchange.New(registry, runner, logger)
	ex.SetConcurrency(cfg.BidderConcurrency)

	auctionHandler := api.NewAuctionHandler(
		api.AuctionConfig{
			MaxRequestSize: cfg.MaxRequestSize,
			DefaultTimeout: cfg.DefaultTimeout,
		},
		processor,
		auction.NewContextFactory(),
		auction.NewValidator(),
		ex,
		logger,
	)

	srv := api.NewServer(cfg.ListenAddr, api.Deps{
		Auction:  auctionHandler,
		Store:    db,
		Registry: registry,
		Checkers: []health.Checker{dbChecker},
	}, logger)

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
