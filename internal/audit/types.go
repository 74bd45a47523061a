// Package audit is the append-only security event sink. Every authorization
// decision on the admin channel (handshake accept or reject, periodic
// re-verification, terminal close) lands here exactly once. Entries are
// never mutated or deleted by the authorization path; only the size-limit
// cleanup purges oldest rows.
package audit

import (
	"cargohold/internal/constants"
)

// Entry represents a single security event.
type Entry struct {
	ID        int64       `json:"id"`
	Timestamp int64       `json:"timestamp"`
	EventType string      `json:"event_type"`
	SubjectID string      `json:"subject_id,omitempty"`
	Outcome   string      `json:"outcome"`
	Message   string      `json:"message,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

// HandshakeDetails holds details for handshake events. TokenFingerprint is
// a BLAKE3 hash prefix; the raw credential is never recorded.
type HandshakeDetails struct {
	TokenFingerprint string `json:"token_fingerprint,omitempty"`
	RemoteAddr       string `json:"remote_addr,omitempty"`
	Role             string `json:"role,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// SessionCloseDetails holds details for session_closed events.
type SessionCloseDetails struct {
	SessionID    string `json:"session_id"`
	Reason       string `json:"reason"`
	DurationSecs int64  `json:"duration_secs"`
}

// SubjectChangeDetails holds details for subject_created / subject_updated.
type SubjectChangeDetails struct {
	TargetSubjectID string   `json:"target_subject_id"`
	TargetUsername  string   `json:"target_username"`
	FieldsChanged   []string `json:"fields_changed,omitempty"`
}

// ValidEventTypes returns all valid security event types.
func ValidEventTypes() []string {
	return []string{
		constants.EventHandshakeAuthorized,
		constants.EventHandshakeRejected,
		constants.EventSessionVerified,
		constants.EventSessionClosed,
		constants.EventSubjectCreated,
		constants.EventSubjectUpdated,
	}
}

// IsValidEventType checks if an event type is valid.
func IsValidEventType(eventType string) bool {
	for _, valid := range ValidEventTypes() {
		if eventType == valid {
			return true
		}
	}
	return false
}
