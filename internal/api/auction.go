package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/seantiz/vexing/internal/bounded"
	"github.com/seantiz/vexing/internal/deadline"
	"github.com/seantiz/vexing/internal/model"
)

const (
	invalidRequestPrefix = "Invalid request format: "
	criticalErrorPrefix  = "Critical error while running the auction: "
)

// StoredRequestProcessor merges referenced stored fragments into a request.
type StoredRequestProcessor interface {
	Process(ctx context.Context, req *model.BidRequest) (*model.BidRequest, error)
}

// ContextFactory completes a request with data from the HTTP request.
type ContextFactory interface {
	FromRequest(req *model.BidRequest, r *http.Request) *model.BidRequest
}

// RequestValidator returns one message per structural problem in a request.
type RequestValidator interface {
	Validate(req *model.BidRequest) []string
}

// Exchange runs the auction within a deadline.
type Exchange interface {
	HoldAuction(ctx context.Context, req *model.BidRequest, d deadline.Deadline) (*model.BidResponse, error)
}

// AuctionConfig holds the request limits of the auction endpoint.
type AuctionConfig struct {
	MaxRequestSize int64
	// DefaultTimeout is the budget of requests without tmax.
	DefaultTimeout time.Duration
}

// AuctionHandler serves POST /openrtb2/auction. Every stage runs in order and
// is charged against one budget that starts when the request arrives.
type AuctionHandler struct {
	cfg       AuctionConfig
	processor StoredRequestProcessor
	factory   ContextFactory
	validator RequestValidator
	exchange  Exchange
	logger    *slog.Logger
}

// NewAuctionHandler creates the auction endpoint handler.
func NewAuctionHandler(cfg AuctionConfig, processor StoredRequestProcessor, factory ContextFactory,
	validator RequestValidator, exchange Exchange, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		cfg:       cfg,
		processor: processor,
		factory:   factory,
		validator: validator,
		exchange:  exchange,
		logger:    logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *AuctionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	logger := h.logger.With("request_id", middleware.GetReqID(ctx))

	req, msg := h.parse(r)
	if msg != "" {
		h.badRequest(w, msg)
		return
	}

	req, err := h.processor.Process(ctx, req)
	if err != nil {
		logger.Debug("stored request resolution failed", "error", err)
		h.badRequest(w, err.Error())
		return
	}

	req = h.factory.FromRequest(req, r)

	if errs := h.validator.Validate(req); len(errs) > 0 {
		h.badRequest(w, errs...)
		return
	}

	total := h.cfg.DefaultTimeout
	if req.TMax > 0 {
		total = time.Duration(req.TMax) * time.Millisecond
	}
	d, err := deadline.NewFrom(start, total)
	if err != nil {
		h.critical(w, logger, err)
		return
	}

	resp, err := h.holdAuction(ctx, req, d)
	if err != nil {
		h.critical(w, logger, err)
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		h.critical(w, logger, fmt.Errorf("encode bid response: %w", err))
		return
	}

	auctionRequestsTotal.WithLabelValues(outcomeOK).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// parse reads and decodes the body. A non-empty message reports client input
// the handler cannot use.
func (h *AuctionHandler) parse(r *http.Request) (*model.BidRequest, string) {
	if r.Body == nil {
		return nil, "Incoming request has no body"
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxRequestSize+1))
	if err != nil {
		return nil, fmt.Sprintf("Failed to read request body: %v", err)
	}
	if len(body) == 0 {
		return nil, "Incoming request has no body"
	}
	if int64(len(body)) > h.cfg.MaxRequestSize {
		return nil, fmt.Sprintf("Request size exceeded max size of %d bytes.", h.cfg.MaxRequestSize)
	}

	var req model.BidRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, "Failed to decode: " + err.Error()
	}
	return &req, ""
}

// holdAuction runs the exchange and turns a panic into an error.
func (h *AuctionHandler) holdAuction(ctx context.Context, req *model.BidRequest, d deadline.Deadline) (resp *model.BidResponse, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%v", p)
		}
	}()
	return h.exchange.HoldAuction(ctx, req, d)
}

func (h *AuctionHandler) badRequest(w http.ResponseWriter, msgs ...string) {
	auctionRequestsTotal.WithLabelValues(outcomeBadInput).Inc()
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = invalidRequestPrefix + m
	}
	writeText(w, http.StatusBadRequest, strings.Join(lines, "\n"))
}

func (h *AuctionHandler) critical(w http.ResponseWriter, logger *slog.Logger, err error) {
	outcome := outcomeError
	if bounded.IsTimeout(err) {
		outcome = outcomeTimeout
	}
	auctionRequestsTotal.WithLabelValues(outcome).Inc()
	logger.Error("auction failed", "error", err)
	writeText(w, http.StatusInternalServerError, criticalErrorPrefix+err.Error())
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
