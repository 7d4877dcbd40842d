package exchange_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seantiz/vexing/internal/bidder"
	"github.com/seantiz/vexing/internal/deadline"
	"github.com/seantiz/vexing/internal/exchange"
	"github.com/seantiz/vexing/internal/model"
)

// delayBidder is a configurable fake bidder for exchange tests.
type delayBidder struct {
	delay     time.Duration
	bids      []model.Bid
	err       error
	timeoutMS int

	calls     atomic.Int32
	gotImps   atomic.Int32
	cancelled atomic.Bool
}

func (d *delayBidder) MakeBids(ctx context.Context, req *model.BidRequest) ([]model.Bid, error) {
	d.calls.Add(1)
	d.gotImps.Store(int32(len(req.Imp)))
	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		d.cancelled.Store(true)
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.bids, nil
}

func (d *delayBidder) Info() bidder.Info {
	return bidder.Info{TimeoutMS: d.timeoutMS}
}

func newTestExchange(t *testing.T, bidders map[string]bidder.Bidder) *exchange.Exchange {
	t.Helper()
	reg := bidder.NewRegistry()
	for name, b := range bidders {
		reg.Register(name, b)
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return exchange.New(reg, nil, logger)
}

func mustDeadline(t *testing.T, d time.Duration) deadline.Deadline {
	t.Helper()
	dl, err := deadline.New(d)
	if err != nil {
		t.Fatal(err)
	}
	return dl
}

func makeRequest() *model.BidRequest {
	return &model.BidRequest{
		ID:  "req-1",
		Cur: []string{"EUR"},
		Imp: []model.Imp{
			{ID: "imp-1", Banner: &model.Banner{}, BidFloor: 1.0, Ext: json.RawMessage(`{"alpha":{},"beta":{}}`)},
			{ID: "imp-2", Banner: &model.Banner{}, Ext: json.RawMessage(`{"prebid":{"bidder":{"alpha":{}}}}`)},
		},
	}
}

func decodeExt(t *testing.T, resp *model.BidResponse) exchange.ResponseExt {
	t.Helper()
	var ext exchange.ResponseExt
	if err := json.Unmarshal(resp.Ext, &ext); err != nil {
		t.Fatalf("decode ext: %v", err)
	}
	return ext
}

func TestHoldAuctionCollectsBids(t *testing.T) {
	alpha := &delayBidder{bids: []model.Bid{
		{ID: "a1", ImpID: "imp-1", Price: 2.5},
		{ID: "a2", ImpID: "imp-1", Price: 0.5},
		{ID: "a3", ImpID: "imp-2", Price: 0.1},
		{ID: "a4", ImpID: "unknown", Price: 9},
	}}
	beta := &delayBidder{bids: []model.Bid{{ID: "b1", ImpID: "imp-1", Price: 1.0}}}
	ex := newTestExchange(t, map[string]bidder.Bidder{"beta": beta, "alpha": alpha})

	resp, err := ex.HoldAuction(context.Background(), makeRequest(), mustDeadline(t, time.Second))
	if err != nil {
		t.Fatalf("HoldAuction: %v", err)
	}

	if resp.ID != "req-1" || resp.Cur != "EUR" {
		t.Errorf("resp id/cur = %q/%q", resp.ID, resp.Cur)
	}
	if len(resp.SeatBid) != 2 {
		t.Fatalf("len(SeatBid) = %d, want 2", len(resp.SeatBid))
	}
	if resp.SeatBid[0].Seat != "alpha" || resp.SeatBid[1].Seat != "beta" {
		t.Errorf("seats = %q, %q; want alpha, beta", resp.SeatBid[0].Seat, resp.SeatBid[1].Seat)
	}

	var ids []string
	for _, b := range resp.SeatBid[0].Bid {
		ids = append(ids, b.ID)
	}
	if len(ids) != 2 || ids[0] != "a1" || ids[1] != "a3" {
		t.Errorf("alpha bids = %v, want [a1 a3] after floor and imp filtering", ids)
	}

	if alpha.gotImps.Load() != 2 || beta.gotImps.Load() != 1 {
		t.Errorf("imps offered alpha=%d beta=%d, want 2 and 1", alpha.gotImps.Load(), beta.gotImps.Load())
	}

	ext := decodeExt(t, resp)
	if len(ext.Errors) != 0 {
		t.Errorf("errors = %v, want none", ext.Errors)
	}
	if _, ok := ext.ResponseTimeMillis["alpha"]; !ok {
		t.Error("missing responsetimemillis for alpha")
	}
}

func TestHoldAuctionBidderFailureAndTimeout(t *testing.T) {
	alpha := &delayBidder{err: errors.New("bidder exploded")}
	beta := &delayBidder{delay: 5 * time.Second}
	ex := newTestExchange(t, map[string]bidder.Bidder{"alpha": alpha, "beta": beta})

	start := time.Now()
	resp, err := ex.HoldAuction(context.Background(), makeRequest(), mustDeadline(t, 50*time.Millisecond))
	if err != nil {
		t.Fatalf("HoldAuction: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("auction took %v, want it bounded by the deadline", elapsed)
	}
	if len(resp.SeatBid) != 0 {
		t.Errorf("SeatBid = %+v, want none", resp.SeatBid)
	}

	ext := decodeExt(t, resp)
	if got := ext.Errors["alpha"]; len(got) != 1 || got[0].Code != exchange.ErrorCodeFailure || got[0].Message != "bidder exploded" {
		t.Errorf("alpha errors = %+v", got)
	}
	want := "Timed out while executing request to bidder beta"
	if got := ext.Errors["beta"]; len(got) != 1 || got[0].Code != exchange.ErrorCodeTimeout || got[0].Message != want {
		t.Errorf("beta errors = %+v", got)
	}

	waitFor(t, func() bool { return beta.cancelled.Load() })
}

func TestHoldAuctionBidderTimeoutCap(t *testing.T) {
	capped := &delayBidder{delay: time.Second, timeoutMS: 20}
	ex := newTestExchange(t, map[string]bidder.Bidder{"alpha": capped})

	start := time.Now()
	resp, err := ex.HoldAuction(context.Background(), makeRequest(), mustDeadline(t, 5*time.Second))
	if err != nil {
		t.Fatalf("HoldAuction: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("auction took %v, want the bidder cap to apply", elapsed)
	}
	if got := decodeExt(t, resp).Errors["alpha"]; len(got) != 1 || got[0].Code != exchange.ErrorCodeTimeout {
		t.Errorf("alpha errors = %+v, want timeout", got)
	}
}

func TestHoldAuctionExpiredDeadline(t *testing.T) {
	alpha := &delayBidder{}
	ex := newTestExchange(t, map[string]bidder.Bidder{"alpha": alpha})

	d, err := deadline.NewFrom(time.Now().Add(-time.Second), 0)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ex.HoldAuction(context.Background(), makeRequest(), d)
	if err != nil {
		t.Fatalf("HoldAuction: %v", err)
	}
	if alpha.calls.Load() != 0 {
		t.Errorf("bidder called %d times, want 0", alpha.calls.Load())
	}
	if got := decodeExt(t, resp).Errors["alpha"]; len(got) != 1 || got[0].Code != exchange.ErrorCodeTimeout {
		t.Errorf("alpha errors = %+v, want timeout", got)
	}
}

func TestHoldAuctionNoBidders(t *testing.T) {
	ex := newTestExchange(t, nil)
	req := &model.BidRequest{ID: "req-2", Imp: []model.Imp{{ID: "i", Banner: &model.Banner{}}}}

	resp, err := ex.HoldAuction(context.Background(), req, mustDeadline(t, time.Second))
	if err != nil {
		t.Fatalf("HoldAuction: %v", err)
	}
	data, _ := json.Marshal(resp)
	if string(data) != `{"id":"req-2"}` {
		t.Errorf("response = %s", data)
	}
}

func TestHoldAuctionNilRequest(t *testing.T) {
	ex := newTestExchange(t, nil)
	if _, err := ex.HoldAuction(context.Background(), nil, mustDeadline(t, time.Second)); err == nil {
		t.Error("expected error for nil request")
	}
}

// inFlightBidder records the peak number of concurrent calls across all
// bidders sharing its counters.
type inFlightBidder struct {
	cur, peak *atomic.Int32
}

func (b inFlightBidder) MakeBids(ctx context.Context, req *model.BidRequest) ([]model.Bid, error) {
	n := b.cur.Add(1)
	defer b.cur.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return []model.Bid{{ID: "b", ImpID: req.Imp[0].ID, Price: 1}}, nil
}

func (inFlightBidder) Info() bidder.Info { return bidder.Info{} }

func TestHoldAuctionConcurrencyLimit(t *testing.T) {
	var cur, peak atomic.Int32
	b := inFlightBidder{cur: &cur, peak: &peak}
	ex := newTestExchange(t, map[string]bidder.Bidder{"alpha": b, "beta": b, "gamma": b})
	ex.SetConcurrency(1)

	req := &model.BidRequest{ID: "req-3", Imp: []model.Imp{
		{ID: "i", Banner: &model.Banner{}, Ext: json.RawMessage(`{"alpha":{},"beta":{},"gamma":{}}`)},
	}}
	resp, err := ex.HoldAuction(context.Background(), req, mustDeadline(t, 2*time.Second))
	if err != nil {
		t.Fatalf("HoldAuction: %v", err)
	}
	if len(resp.SeatBid) != 3 {
		t.Errorf("got %d seats, want 3", len(resp.SeatBid))
	}
	if got := peak.Load(); got != 1 {
		t.Errorf("peak concurrent bidder calls = %d, want 1", got)
	}
}

func TestHoldAuctionQueuedBidderSpendsDeadline(t *testing.T) {
	alpha := &delayBidder{delay: 500 * time.Millisecond}
	beta := &delayBidder{bids: []model.Bid{{ID: "b", ImpID: "imp-1", Price: 2}}}
	ex := newTestExchange(t, map[string]bidder.Bidder{"alpha": alpha, "beta": beta})
	ex.SetConcurrency(1)

	resp, err := ex.HoldAuction(context.Background(), makeRequest(), mustDeadline(t, 100*time.Millisecond))
	if err != nil {
		t.Fatalf("HoldAuction: %v", err)
	}
	if beta.calls.Load() != 0 {
		t.Errorf("beta called %d times after the deadline passed in the queue", beta.calls.Load())
	}
	ext := decodeExt(t, resp)
	for _, name := range []string{"alpha", "beta"} {
		if got := ext.Errors[name]; len(got) != 1 || got[0].Code != exchange.ErrorCodeTimeout {
			t.Errorf("%s errors = %+v, want timeout", name, got)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	until := time.Now().Add(2 * time.Second)
	for time.Now().Before(until) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
