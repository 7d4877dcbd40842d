package model

import "encoding/json"

// BidResponse is the auction result returned to the caller.
type BidResponse struct {
	ID      string          `json:"id,omitempty"`
	SeatBid []SeatBid       `json:"seatbid,omitempty"`
	BidID   string          `json:"bidid,omitempty"`
	Cur     string          `json:"cur,omitempty"`
	NBR     *int            `json:"nbr,omitempty"`
	Ext     json.RawMessage `json:"ext,omitempty"`
}

// SeatBid groups the bids of one bidder.
type SeatBid struct {
	Seat string `json:"seat,omitempty"`
	Bid  []Bid  `json:"bid,omitempty"`
}

// Bid is an offer to buy one impression.
type Bid struct {
	ID      string          `json:"id,omitempty"`
	ImpID   string          `json:"impid,omitempty"`
	Price   float64         `json:"price,omitempty"`
	AdID    string          `json:"adid,omitempty"`
	NURL    string          `json:"nurl,omitempty"`
	AdM     string          `json:"adm,omitempty"`
	ADomain []string        `json:"adomain,omitempty"`
	CrID    string          `json:"crid,omitempty"`
	DealID  string          `json:"dealid,omitempty"`
	W       int             `json:"w,omitempty"`
	H       int             `json:"h,omitempty"`
	Ext     json.RawMessage `json:"ext,omitempty"`
}
