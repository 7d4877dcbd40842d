package storedrequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/seantiz/vexing/internal/deadline"
)

// ErrNotFound is returned when a referenced stored request does not exist.
var ErrNotFound = errors.New("stored request not found")

// Result holds the fragments found by a Fetcher, keyed by ID. IDs that were
// not found are absent.
type Result struct {
	Requests map[string]json.RawMessage
	Imps     map[string]json.RawMessage
}

func newResult() *Result {
	return &Result{
		Requests: make(map[string]json.RawMessage),
		Imps:     make(map[string]json.RawMessage),
	}
}

// Fetcher loads stored request and stored imp fragments. Implementations must
// finish within d and report missing IDs by leaving them out of the Result.
type Fetcher interface {
	FetchRequests(ctx context.Context, d deadline.Deadline, requestIDs, impIDs []string) (*Result, error)
}

// missingError describes the IDs absent from res, or returns nil.
func missingError(res *Result, requestIDs, impIDs []string) error {
	var missingReq, missingImp []string
	for _, id := range requestIDs {
		if _, ok := res.Requests[id]; !ok {
			missingReq = append(missingReq, id)
		}
	}
	for _, id := range impIDs {
		if _, ok := res.Imps[id]; !ok {
			missingImp = append(missingImp, id)
		}
	}
	if len(missingReq) == 0 && len(missingImp) == 0 {
		return nil
	}

	var parts []string
	if len(missingReq) > 0 {
		parts = append(parts, "request ids ["+strings.Join(missingReq, ", ")+"]")
	}
	if len(missingImp) > 0 {
		parts = append(parts, "imp ids ["+strings.Join(missingImp, ", ")+"]")
	}
	return fmt.Errorf("%w: %s", ErrNotFound, strings.Join(parts, "; "))
}
