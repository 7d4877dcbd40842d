package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/vexing/internal/model"
	"github.com/seantiz/vexing/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// listStoredRequestsResponse wraps the paginated list response.
type listStoredRequestsResponse struct {
	StoredRequests []*model.StoredRequest `json:"stored_requests"`
	Total          int                    `json:"total"`
	Limit          int                    `json:"limit"`
	Offset         int                    `json:"offset"`
}

func (s *Server) handlePutStoredRequest(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if !model.ValidKind(kind) {
		s.writeError(w, http.StatusBadRequest, `kind must be "request" or "imp"`)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		s.writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	sr := &model.StoredRequest{
		Kind: kind,
		ID:   chi.URLParam(r, "id"),
		Data: json.RawMessage(data),
	}
	if err := s.deps.Store.PutStoredRequest(r.Context(), sr); err != nil {
		s.logger.Error("put stored request", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to save stored request")
		return
	}

	s.writeJSON(w, http.StatusOK, sr)
}

func (s *Server) handleGetStoredRequest(w http.ResponseWriter, r *http.Request) {
	sr, err := s.deps.Store.GetStoredRequest(r.Context(), chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "stored request not found")
		return
	}
	if err != nil {
		s.logger.Error("get stored request", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stored request")
		return
	}

	s.writeJSON(w, http.StatusOK, sr)
}

func (s *Server) handleListStoredRequests(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "" && !model.ValidKind(kind) {
		s.writeError(w, http.StatusBadRequest, `kind must be "request" or "imp"`)
		return
	}

	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, total, err := s.deps.Store.ListStoredRequests(r.Context(), kind, limit, offset)
	if err != nil {
		s.logger.Error("list stored requests", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list stored requests")
		return
	}

	if items == nil {
		items = []*model.StoredRequest{}
	}

	s.writeJSON(w, http.StatusOK, listStoredRequestsResponse{
		StoredRequests: items,
		Total:          total,
		Limit:          limit,
		Offset:         offset,
	})
}

func (s *Server) handleDeleteStoredRequest(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Store.DeleteStoredRequest(r.Context(), chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "stored request not found")
		return
	}
	if err != nil {
		s.logger.Error("delete stored request", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete stored request")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
