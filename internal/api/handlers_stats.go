package api

import (
	"net/http"
)

func (s *Server) handleCaptionStats(w http.ResponseWriter, r *http.Request) {
	if s.captionStats == nil {
		jsonError(w, "captioning is disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model": s.cfg.CaptionModel,
		"stats": s.captionStats.Snapshot(),
	})
}
