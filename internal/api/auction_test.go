package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/vexing/internal/bounded"
	"github.com/seantiz/vexing/internal/deadline"
	"github.com/seantiz/vexing/internal/model"
)

// fakeProcessor returns the request unchanged after an optional delay.
type fakeProcessor struct {
	delay time.Duration
	err   error
	calls int
}

func (f *fakeProcessor) Process(_ context.Context, req *model.BidRequest) (*model.BidRequest, error) {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return req, nil
}

type fakeFactory struct {
	calls int
}

func (f *fakeFactory) FromRequest(req *model.BidRequest, _ *http.Request) *model.BidRequest {
	f.calls++
	return req
}

type fakeValidator struct {
	errs []string
}

func (f *fakeValidator) Validate(*model.BidRequest) []string {
	return f.errs
}

// fakeExchange records the budget left when the auction starts.
type fakeExchange struct {
	resp      *model.BidResponse
	err       error
	panicWith any

	calls     int
	remaining time.Duration
}

func (f *fakeExchange) HoldAuction(_ context.Context, req *model.BidRequest, d deadline.Deadline) (*model.BidResponse, error) {
	f.calls++
	f.remaining = d.Remaining()
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &model.BidResponse{ID: req.ID}, nil
}

type auctionFixture struct {
	processor *fakeProcessor
	factory   *fakeFactory
	validator *fakeValidator
	exchange  *fakeExchange
	cfg       AuctionConfig
}

func newAuctionFixture() *auctionFixture {
	return &auctionFixture{
		processor: &fakeProcessor{},
		factory:   &fakeFactory{},
		validator: &fakeValidator{},
		exchange:  &fakeExchange{},
		cfg:       AuctionConfig{MaxRequestSize: 1 << 16, DefaultTimeout: 5000 * time.Millisecond},
	}
}

func (f *auctionFixture) serve(body io.Reader) *httptest.ResponseRecorder {
	h := NewAuctionHandler(f.cfg, f.processor, f.factory, f.validator, f.exchange,
		slog.New(slog.DiscardHandler))
	req := httptest.NewRequest(http.MethodPost, "/openrtb2/auction", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func assertResponse(t *testing.T, rec *httptest.ResponseRecorder, status int, body string) {
	t.Helper()
	if rec.Code != status {
		t.Errorf("status = %d, want %d", rec.Code, status)
	}
	if got := rec.Body.String(); got != body {
		t.Errorf("body = %q, want %q", got, body)
	}
}

func assertNear(t *testing.T, got, want time.Duration) {
	t.Helper()
	const tolerance = 20 * time.Millisecond
	if got < want-tolerance || got > want+tolerance {
		t.Errorf("remaining = %v, want %v ± %v", got, want, tolerance)
	}
}

func TestAuctionNoBody(t *testing.T) {
	f := newAuctionFixture()
	rec := f.serve(nil)

	assertResponse(t, rec, http.StatusBadRequest, "Invalid request format: Incoming request has no body")
	if f.processor.calls != 0 || f.exchange.calls != 0 {
		t.Error("later stages ran for an empty body")
	}
}

func TestAuctionBodyTooLarge(t *testing.T) {
	f := newAuctionFixture()
	f.cfg.MaxRequestSize = 1

	rec := f.serve(strings.NewReader("body"))
	assertResponse(t, rec, http.StatusBadRequest, "Invalid request format: Request size exceeded max size of 1 bytes.")
}

func TestAuctionBodyAtMaxSize(t *testing.T) {
	f := newAuctionFixture()
	f.cfg.MaxRequestSize = 2

	rec := f.serve(strings.NewReader("{}"))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for a body of exactly the max size", rec.Code)
	}
}

func TestAuctionDecodeFailure(t *testing.T) {
	f := newAuctionFixture()
	rec := f.serve(strings.NewReader("{not json"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "Invalid request format: Failed to decode: ") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if f.processor.calls != 0 {
		t.Error("stored request processing ran for an undecodable body")
	}
}

func TestAuctionStoredRequestFailure(t *testing.T) {
	f := newAuctionFixture()
	f.processor.err = errors.New("stored request not found: request ids [sr1]")

	rec := f.serve(strings.NewReader("{}"))
	assertResponse(t, rec, http.StatusBadRequest, "Invalid request format: stored request not found: request ids [sr1]")
	if f.factory.calls != 0 {
		t.Error("context was built after stored request resolution failed")
	}
}

func TestAuctionValidationErrors(t *testing.T) {
	f := newAuctionFixture()
	f.validator.errs = []string{"error1", "error2"}

	rec := f.serve(strings.NewReader("{}"))
	assertResponse(t, rec, http.StatusBadRequest, "Invalid request format: error1\nInvalid request format: error2")
	if f.exchange.calls != 0 {
		t.Error("auction ran for an invalid request")
	}
}

func TestAuctionExchangeFailure(t *testing.T) {
	f := newAuctionFixture()
	f.exchange.err = errors.New("Unexpected exception")

	rec := f.serve(strings.NewReader("{}"))
	assertResponse(t, rec, http.StatusInternalServerError, "Critical error while running the auction: Unexpected exception")
}

func TestAuctionExchangePanic(t *testing.T) {
	f := newAuctionFixture()
	f.exchange.panicWith = "Unexpected exception"

	rec := f.serve(strings.NewReader("{}"))
	assertResponse(t, rec, http.StatusInternalServerError, "Critical error while running the auction: Unexpected exception")
}

func TestAuctionExchangeTimeout(t *testing.T) {
	f := newAuctionFixture()
	f.exchange.err = &bounded.TimeoutError{Op: "auction"}

	rec := f.serve(strings.NewReader("{}"))
	assertResponse(t, rec, http.StatusInternalServerError, "Critical error while running the auction: Timed out while executing auction")
}

func TestAuctionSuccess(t *testing.T) {
	f := newAuctionFixture()
	f.exchange.resp = &model.BidResponse{
		ID:      "req-1",
		SeatBid: []model.SeatBid{{Seat: "alpha", Bid: []model.Bid{{ID: "b1", ImpID: "i1", Price: 1.5}}}},
	}

	rec := f.serve(strings.NewReader(`{"id":"req-1"}`))
	assertResponse(t, rec, http.StatusOK, `{"id":"req-1","seatbid":[{"seat":"alpha","bid":[{"id":"b1","impid":"i1","price":1.5}]}]}`)
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestAuctionDeadlineFromTMax(t *testing.T) {
	f := newAuctionFixture()
	rec := f.serve(strings.NewReader(`{"tmax":1000}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	assertNear(t, f.exchange.remaining, 1000*time.Millisecond)
}

func TestAuctionDeadlineDefault(t *testing.T) {
	f := newAuctionFixture()
	rec := f.serve(strings.NewReader(`{}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	assertNear(t, f.exchange.remaining, 5000*time.Millisecond)
}

func TestAuctionDeadlineChargesStoredRequestTime(t *testing.T) {
	f := newAuctionFixture()
	f.processor.delay = 50 * time.Millisecond

	rec := f.serve(strings.NewReader(`{"tmax":1000}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	assertNear(t, f.exchange.remaining, 950*time.Millisecond)
}

func TestAuctionDeadlineExhaustedBeforeAuction(t *testing.T) {
	f := newAuctionFixture()
	f.processor.delay = 30 * time.Millisecond

	rec := f.serve(strings.NewReader(`{"tmax":10}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.exchange.remaining != 0 {
		t.Errorf("remaining = %v, want 0 once the budget is spent", f.exchange.remaining)
	}
}
