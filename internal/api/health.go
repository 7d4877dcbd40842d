package api

import (
	"net/http"

	"github.com/seantiz/vexing/internal/health"
)

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleStatus reports every dependency checker and fails when any is down.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := make(map[string]health.Status, len(s.deps.Checkers))
	code := http.StatusOK
	for _, c := range s.deps.Checkers {
		st := c.Status()
		statuses[c.Name()] = st
		if st.Status != health.StatusUp {
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, statuses)
}
