// Package store provides deadline-aware SQL access and persistence for stored
// request fragments.
package store

import (
	"context"
	"errors"

	"github.com/seantiz/vexing/internal/model"
)

// ErrNotFound is returned when a stored request is not found.
var ErrNotFound = errors.New("stored request not found")

// Store defines the management operations for stored requests.
type Store interface {
	PutStoredRequest(ctx context.Context, sr *model.StoredRequest) error
	GetStoredRequest(ctx context.Context, kind, id string) (*model.StoredRequest, error)
	ListStoredRequests(ctx context.Context, kind string, limit, offset int) ([]*model.StoredRequest, int, error)
	DeleteStoredRequest(ctx context.Context, kind, id string) error
	Close() error
}
