package model

import (
	"encoding/json"
	"time"
)

// Stored request kinds.
const (
	KindRequest = "request"
	KindImp     = "imp"
)

// ValidKind reports whether kind names a stored request table partition.
func ValidKind(kind string) bool {
	return kind == KindRequest || kind == KindImp
}

// StoredRequest is a JSON fragment merged into incoming bid requests that reference it.
type StoredRequest struct {
	Kind      string          `json:"kind"`
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}
