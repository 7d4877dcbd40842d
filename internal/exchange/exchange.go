package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/vexing/internal/bidder"
	"github.com/seantiz/vexing/internal/bounded"
	"github.com/seantiz/vexing/internal/deadline"
	"github.com/seantiz/vexing/internal/model"
)

// Error codes reported in ext.errors.
const (
	ErrorCodeTimeout = 1
	ErrorCodeFailure = 2
)

// BidderError describes why a bidder contributed no bids.
type BidderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ResponseExt is the exchange's extension of the bid response.
type ResponseExt struct {
	Errors             map[string][]BidderError `json:"errors,omitempty"`
	ResponseTimeMillis map[string]int64         `json:"responsetimemillis,omitempty"`
}

// DefaultConcurrency is the number of bidders called at once per auction.
const DefaultConcurrency = 32

// Exchange holds auctions across the registered bidders.
type Exchange struct {
	registry    *bidder.Registry
	runner      *bounded.Runner
	logger      *slog.Logger
	concurrency int
}

// New creates an Exchange.
func New(registry *bidder.Registry, runner *bounded.Runner, logger *slog.Logger) *Exchange {
	if runner == nil {
		runner = bounded.NewRunner(nil, logger)
	}
	return &Exchange{
		registry:    registry,
		runner:      runner,
		logger:      logger,
		concurrency: DefaultConcurrency,
	}
}

// SetConcurrency caps the bidder calls in flight for one auction. Calls
// waiting for a slot still spend the auction's deadline. Values below 1 are
// ignored.
func (e *Exchange) SetConcurrency(n int) {
	if n > 0 {
		e.concurrency = n
	}
}

// bidderCall is the work and the outcome for one bidder.
type bidderCall struct {
	name     string
	bidder   bidder.Bidder
	request  *model.BidRequest
	floors   map[string]float64
	bids     []model.Bid
	err      error
	duration time.Duration
}

// HoldAuction offers req to its bidders and collects their bids, all within d.
// It fails only when it cannot run an auction at all.
func (e *Exchange) HoldAuction(ctx context.Context, req *model.BidRequest, d deadline.Deadline) (*model.BidResponse, error) {
	if req == nil {
		return nil, errors.New("nil bid request")
	}

	auctionID := model.NewID()
	logger := e.logger.With("auction_id", auctionID, "request_id", req.ID)
	start := time.Now()

	calls := e.plan(req, logger)

	// Bidder outcomes are recorded on each call, so the group never fails.
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, c := range calls {
		g.Go(func() error {
			e.callBidder(ctx, c, d)
			return nil
		})
	}
	_ = g.Wait()

	resp := buildResponse(req, calls)
	logger.Info("auction completed",
		"bidders", len(calls),
		"seats", len(resp.SeatBid),
		"remaining_ms", d.Remaining().Milliseconds(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// plan builds one request per bidder holding the impressions offered to it,
// ordered by bidder name.
func (e *Exchange) plan(req *model.BidRequest, logger *slog.Logger) []*bidderCall {
	byName := make(map[string]*bidderCall)
	for _, imp := range req.Imp {
		names, err := e.registry.Resolve(imp.Ext)
		if err != nil {
			logger.Warn("skipping impression with invalid ext", "imp_id", imp.ID, "error", err)
			continue
		}
		for _, name := range names {
			c, ok := byName[name]
			if !ok {
				b, err := e.registry.Get(name)
				if err != nil {
					continue
				}
				breq := *req
				breq.Imp = nil
				c = &bidderCall{
					name:    name,
					bidder:  b,
					request: &breq,
					floors:  make(map[string]float64),
				}
				byName[name] = c
			}
			c.request.Imp = append(c.request.Imp, imp)
			c.floors[imp.ID] = imp.BidFloor
		}
	}

	calls := make([]*bidderCall, 0, len(byName))
	for _, c := range byName {
		calls = append(calls, c)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].name < calls[j].name })
	return calls
}

func (e *Exchange) callBidder(ctx context.Context, c *bidderCall, d deadline.Deadline) {
	if ms := c.bidder.Info().TimeoutMS; ms > 0 {
		if capped, err := deadline.New(time.Duration(ms) * time.Millisecond); err == nil {
			d = d.Min(capped)
		}
	}

	start := time.Now()
	c.bids, c.err = bounded.Run(ctx, e.runner, d, "request to bidder "+c.name,
		func(ctx context.Context) ([]model.Bid, error) {
			return c.bidder.MakeBids(ctx, c.request)
		})
	c.duration = time.Since(start)
}

func buildResponse(req *model.BidRequest, calls []*bidderCall) *model.BidResponse {
	resp := &model.BidResponse{ID: req.ID}
	if len(req.Cur) > 0 {
		resp.Cur = req.Cur[0]
	}
	if len(calls) == 0 {
		return resp
	}

	ext := ResponseExt{ResponseTimeMillis: make(map[string]int64, len(calls))}
	for _, c := range calls {
		ext.ResponseTimeMillis[c.name] = c.duration.Milliseconds()

		if c.err != nil {
			code := ErrorCodeFailure
			if bounded.IsTimeout(c.err) {
				code = ErrorCodeTimeout
			}
			if ext.Errors == nil {
				ext.Errors = make(map[string][]BidderError)
			}
			ext.Errors[c.name] = []BidderError{{Code: code, Message: c.err.Error()}}
			continue
		}

		var kept []model.Bid
		for _, bid := range c.bids {
			floor, ok := c.floors[bid.ImpID]
			if !ok || bid.Price <= 0 || bid.Price < floor {
				continue
			}
			kept = append(kept, bid)
		}
		if len(kept) > 0 {
			resp.SeatBid = append(resp.SeatBid, model.SeatBid{Seat: c.name, Bid: kept})
		}
	}

	// Maps of plain values always encode.
	resp.Ext, _ = json.Marshal(ext)
	return resp
}
