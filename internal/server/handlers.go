package server

import (
	"net/http"
	"time"

	"cargohold/internal/constants"
	"cargohold/internal/version"
)

// handleStatus handles GET /api/status - service health summary
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", constants.ErrCodeMethodNotAllowed)
		return
	}

	subjects, _ := s.app.Authority.CountSubjects()
	transfers, _ := s.app.Transfers.Count()

	WriteSuccess(w, map[string]interface{}{
		"service":         "cargohold",
		"version":         version.Version,
		"uptime_secs":     int64(time.Since(s.app.StartedAt).Seconds()),
		"subjects":        subjects,
		"transfers":       transfers,
		"live_sessions":   s.app.Registry.Count(),
		"channel_enabled": s.app.ChannelEnabled(),
	})
}
