package bidder

import (
	"context"

	"github.com/seantiz/vexing/internal/model"
)

// Bidder is implemented by every demand partner adapter.
type Bidder interface {
	// MakeBids offers req to the partner and returns its bids. The context
	// is cancelled when the auction stops waiting for the answer.
	MakeBids(ctx context.Context, req *model.BidRequest) ([]model.Bid, error)

	// Info describes the adapter.
	Info() Info
}

// Info describes a registered bidder.
type Info struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint,omitempty"`
	// TimeoutMS caps the time the exchange waits for this bidder. Zero means
	// the auction deadline alone applies.
	TimeoutMS int `json:"timeout_ms,omitempty"`
}
