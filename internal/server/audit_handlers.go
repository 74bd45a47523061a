package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"cargohold/internal/audit"
	"cargohold/internal/constants"
)

// handleAuditQuery handles GET /api/audit - query the security event log
func (s *Server) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", constants.ErrCodeMethodNotAllowed)
		return
	}

	filter := audit.Filter{
		SubjectID: r.URL.Query().Get("subject_id"),
		Outcome:   r.URL.Query().Get("outcome"),
	}
	if eventType := r.URL.Query().Get("event_type"); eventType != "" {
		if !audit.IsValidEventType(eventType) {
			WriteError(w, http.StatusBadRequest, "Invalid event type", constants.ErrCodeBadRequest)
			return
		}
		filter.EventType = eventType
	}
	if before := r.URL.Query().Get("before"); before != "" {
		filter.Before, _ = strconv.ParseInt(before, 10, 64)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		filter.Limit, _ = strconv.Atoi(limit)
	}

	entries, err := s.app.Audit.Query(filter)
	if err != nil {
		s.logger.Error("Security event query failed: %v", err)
		WriteError(w, http.StatusInternalServerError, "Event query failed", constants.ErrCodeInternal)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}

	WriteSuccess(w, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleAuditStream handles GET /api/audit/stream - SSE stream of new events
func (s *Server) handleAuditStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", constants.ErrCodeMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "Streaming not supported", constants.ErrCodeInternal)
		return
	}

	w.Header().Set(constants.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.app.Audit.Subscribe()
	defer s.app.Audit.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleAuditEventTypes handles GET /api/audit/types - list valid event types
func (s *Server) handleAuditEventTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", constants.ErrCodeMethodNotAllowed)
		return
	}
	WriteSuccess(w, map[string]interface{}{
		"event_types": audit.ValidEventTypes(),
	})
}
