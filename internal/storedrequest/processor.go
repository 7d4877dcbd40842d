package storedrequest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/vexing/internal/deadline"
	"github.com/seantiz/vexing/internal/model"
)

// storedRequestExt is the part of request.ext and imp.ext naming a stored request.
type storedRequestExt struct {
	Prebid *struct {
		StoredRequest *struct {
			ID string `json:"id"`
		} `json:"storedrequest"`
	} `json:"prebid"`
}

func storedRequestID(ext json.RawMessage) (string, error) {
	if len(ext) == 0 {
		return "", nil
	}
	var e storedRequestExt
	if err := json.Unmarshal(ext, &e); err != nil {
		return "", err
	}
	if e.Prebid == nil || e.Prebid.StoredRequest == nil {
		return "", nil
	}
	return e.Prebid.StoredRequest.ID, nil
}

// Processor merges stored fragments into incoming bid requests.
type Processor struct {
	fetcher Fetcher
	timeout time.Duration
	logger  *slog.Logger
}

// NewProcessor creates a Processor. Each fetch is bounded by timeout.
func NewProcessor(fetcher Fetcher, timeout time.Duration, logger *slog.Logger) *Processor {
	return &Processor{fetcher: fetcher, timeout: timeout, logger: logger}
}

// Process returns req with every referenced stored request and stored imp
// merged in. A request without references is returned unchanged.
func (p *Processor) Process(ctx context.Context, req *model.BidRequest) (*model.BidRequest, error) {
	requestID, err := storedRequestID(req.Ext)
	if err != nil {
		return nil, fmt.Errorf("invalid request.ext: %w", err)
	}

	impIDs := make([]string, len(req.Imp))
	var uniqueImpIDs []string
	seen := make(map[string]bool)
	for i := range req.Imp {
		id, err := storedRequestID(req.Imp[i].Ext)
		if err != nil {
			return nil, fmt.Errorf("invalid request.imp[%d].ext: %w", i, err)
		}
		impIDs[i] = id
		if id != "" && !seen[id] {
			seen[id] = true
			uniqueImpIDs = append(uniqueImpIDs, id)
		}
	}

	var requestIDs []string
	if requestID != "" {
		requestIDs = []string{requestID}
	}
	if len(requestIDs) == 0 && len(uniqueImpIDs) == 0 {
		return req, nil
	}

	d, err := deadline.New(p.timeout)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := p.fetcher.FetchRequests(ctx, d, requestIDs, uniqueImpIDs)
	if err != nil {
		return nil, fmt.Errorf("stored request processing failed: %w", err)
	}
	if err := missingError(res, requestIDs, uniqueImpIDs); err != nil {
		return nil, err
	}
	p.logger.Debug("stored requests fetched",
		"request_ids", requestIDs,
		"imp_ids", uniqueImpIDs,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return merge(req, res, requestID, impIDs)
}

func merge(req *model.BidRequest, res *Result, requestID string, impIDs []string) (*model.BidRequest, error) {
	imps := make([]model.Imp, len(req.Imp))
	for i, imp := range req.Imp {
		if impIDs[i] == "" {
			imps[i] = imp
			continue
		}
		merged, err := mergeInto(res.Imps[impIDs[i]], imp, &model.Imp{})
		if err != nil {
			return nil, fmt.Errorf("merge stored imp %q: %w", impIDs[i], err)
		}
		imps[i] = *merged
	}

	out := *req
	out.Imp = imps
	if requestID == "" {
		return &out, nil
	}

	merged, err := mergeInto(res.Requests[requestID], out, &model.BidRequest{})
	if err != nil {
		return nil, fmt.Errorf("merge stored request %q: %w", requestID, err)
	}
	return merged, nil
}

// mergeInto merges incoming on top of stored and decodes the result into dst.
func mergeInto[T any](stored json.RawMessage, incoming any, dst *T) (*T, error) {
	patch, err := json.Marshal(incoming)
	if err != nil {
		return nil, err
	}
	data, err := MergeJSON(stored, patch)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
