package api

import "net/http"

func (s *Server) handleListBidders(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Registry.List())
}
