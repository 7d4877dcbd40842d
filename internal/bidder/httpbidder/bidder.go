// Package httpbidder adapts a partner that speaks OpenRTB over HTTP to the
// bidder.Bidder interface.
package httpbidder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/seantiz/vexing/internal/bidder"
	"github.com/seantiz/vexing/internal/model"
)

// maxResponseSize bounds how much of a bidder's response body is read.
const maxResponseSize = 1 << 20

// Compile-time interface satisfaction check.
var _ bidder.Bidder = (*Bidder)(nil)

// Config describes one HTTP bidder.
type Config struct {
	Name      string
	Endpoint  string
	TimeoutMS int
}

// Bidder posts bid requests as JSON to a fixed endpoint.
type Bidder struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates an HTTP bidder. A nil client uses http.DefaultClient.
func New(cfg Config, client *http.Client, logger *slog.Logger) *Bidder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Bidder{
		cfg:    cfg,
		client: client,
		logger: logger.With("bidder", cfg.Name),
	}
}

// Info implements bidder.Bidder.
func (b *Bidder) Info() bidder.Info {
	return bidder.Info{
		Name:      b.cfg.Name,
		Endpoint:  b.cfg.Endpoint,
		TimeoutMS: b.cfg.TimeoutMS,
	}
}

// MakeBids implements bidder.Bidder. A 204 response means no bids.
func (b *Bidder) MakeBids(ctx context.Context, req *model.BidRequest) ([]model.Bid, error) {
	start := time.Now()
	bids, err := b.call(ctx, req)
	requestDuration.WithLabelValues(b.cfg.Name).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		requestsTotal.WithLabelValues(b.cfg.Name, statusCancelled).Inc()
	case err != nil:
		requestsTotal.WithLabelValues(b.cfg.Name, statusFailed).Inc()
		b.logger.Warn("bidder request failed", "error", err)
	case len(bids) == 0:
		requestsTotal.WithLabelValues(b.cfg.Name, statusNoBid).Inc()
	default:
		requestsTotal.WithLabelValues(b.cfg.Name, statusBids).Inc()
	}
	return bids, err
}

func (b *Bidder) call(ctx context.Context, req *model.BidRequest) ([]model.Bid, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode bid request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Openrtb-Version", "2.5")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var bidResp model.BidResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&bidResp); err != nil {
		return nil, fmt.Errorf("decode bid response: %w", err)
	}

	var bids []model.Bid
	for _, sb := range bidResp.SeatBid {
		bids = append(bids, sb.Bid...)
	}
	return bids, nil
}
