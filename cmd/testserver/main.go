// testserver starts a vexing auction server with stub bidders and an
// in-memory stored request database for E2E testing.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seantiz/vexing/internal/api"
	"github.com/seantiz/vexing/internal/auction"
	"github.com/seantiz/vexing/internal/bidder"
	"github.com/seantiz/vexing/internal/bounded"
	"github.com/seantiz/vexing/internal/exchange"
	"github.com/seantiz/vexing/internal/health"
	"github.com/seantiz/vexing/internal/model"
	"github.com/seantiz/vexing/internal/store"
	"github.com/seantiz/vexing/internal/storedrequest"
)

// stubBidder bids a fixed price on every impression after a delay.
type stubBidder struct {
	delay time.Duration
	price float64
}

func (s *stubBidder) MakeBids(ctx context.Context, req *model.BidRequest) ([]model.Bid, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.price == 0 {
		return nil, nil
	}
	bids := make([]model.Bid, 0, len(req.Imp))
	for _, imp := range req.Imp {
		bids = append(bids, model.Bid{
			ID:    model.NewID(),
			ImpID: imp.ID,
			Price: s.price,
			AdM:   "<div>stub ad</div>",
			CrID:  "stub-creative",
		})
	}
	return bids, nil
}

func (s *stubBidder) Info() bidder.Info {
	return bidder.Info{}
}

// seed holds the stored requests available to E2E tests.
var seed = []model.StoredRequest{
	{Kind: model.KindRequest, ID: "e2e-request", Data: json.RawMessage(
		`{"site":{"page":"https://e2e.example/article","domain":"e2e.example"},"cur":["USD"]}`)},
	{Kind: model.KindImp, ID: "e2e-banner", Data: json.RawMessage(
		`{"banner":{"format":[{"w":300,"h":250}]},"bidfloor":0.5,"ext":{"fast":{},"nobid":{}}}`)},
	{Kind: model.KindImp, ID: "e2e-slow", Data: json.RawMessage(
		`{"banner":{"format":[{"w":728,"h":90}]},"ext":{"slow":{}}}`)},
}

func main() {
	addr := ":8080"
	if v := os.Getenv("VEXING_LISTEN_ADDR"); v != "" {
		addr = v
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runner := bounded.NewRunner(bounded.SystemTimers(), logger)

	db, err := store.Open(ctx, store.DriverSQLite, ":memory:", runner)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	for i := range seed {
		if err := db.PutStoredRequest(ctx, &seed[i]); err != nil {
			log.Fatalf("failed to seed stored request %s: %v", seed[i].ID, err)
		}
	}

	reg := bidder.NewRegistry()
	reg.Register("fast", &stubBidder{delay: 10 * time.Millisecond, price: 1.25})
	reg.Register("nobid", &stubBidder{delay: 5 * time.Millisecond})
	reg.Register("slow", &stubBidder{delay: 2 * time.Second, price: 9.99})

	dbChecker, err := health.NewPeriodicChecker("database", time.Second, 100*time.Millisecond,
		func(ctx context.Context) error { return db.Initialize(ctx) }, logger)
	if err != nil {
		log.Fatalf("health checker: %v", err)
	}
	dbChecker.Start(ctx)

	auctionHandler := api.NewAuctionHandler(
		api.AuctionConfig{MaxRequestSize: 262144, DefaultTimeout: 500 * time.Millisecond},
		storedrequest.NewProcessor(storedrequest.NewDBFetcher(db), 100*time.Millisecond, logger),
		auction.NewContextFactory(),
		auction.NewValidator(),
		exchange.New(reg, runner, logger),
		logger,
	)

	srv := api.NewServer(addr, api.Deps{
		Auction:  auctionHandler,
		Store:    db,
		Registry: reg,
		Checkers: []health.Checker{dbChecker},
	}, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
