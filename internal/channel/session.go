// Package channel implements the authorization core of the privileged admin
// connection: the handshake gate, the per-session supervisor with periodic
// re-verification against the authority store, and the registry of live
// sessions. A credential only ever proves identity here; whether the holder
// is currently allowed in is re-decided from the authority store, at
// handshake time and continuously afterwards.
package channel

import (
	"context"
	"sync"
	"time"

	"cargohold/internal/authority"
)

// State is the lifecycle state of an admin session.
type State int

const (
	StateOpen State = iota
	StateVerifying
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateVerifying:
		return "verifying"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// CloseReason names why a session reached its terminal state.
type CloseReason string

const (
	ReasonRevoked          CloseReason = "revoked"
	ReasonClientDisconnect CloseReason = "client_disconnect"
	ReasonProtocolError    CloseReason = "protocol_error"
	ReasonSystemError      CloseReason = "system_error"
	ReasonShutdown         CloseReason = "shutdown"
)

// CloseCode is the wire close code sent to the remote party. Only three
// values ever leave the server, so the specific internal reason is not
// observable remotely.
type CloseCode int

const (
	CloseNormal          CloseCode = 1000
	ClosePolicyViolation CloseCode = 1008
	CloseInternalError   CloseCode = 1011
)

// closeCodeFor maps an internal close reason to the generic wire code and
// the short reason string sent to the client.
func closeCodeFor(reason CloseReason) (CloseCode, string) {
	switch reason {
	case ReasonClientDisconnect, ReasonShutdown:
		return CloseNormal, "closed"
	case ReasonSystemError:
		return CloseInternalError, "internal error"
	default:
		return ClosePolicyViolation, "policy violation"
	}
}

// Session is the bookkeeping record of one accepted admin connection. It is
// owned by exactly one Supervisor; state transitions are monotonic: once
// CLOSING is entered the session can only move to CLOSED.
type Session struct {
	ID         string
	SubjectID  string
	Role       string
	RemoteAddr string
	OpenedAt   time.Time

	mu             sync.Mutex
	state          State
	lastVerifiedAt time.Time
	requestClose   func(CloseReason)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastVerifiedAt returns when the subject's authority was last confirmed.
func (s *Session) LastVerifiedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastVerifiedAt
}

// RequestClose asks the owning supervisor to close the session. Safe to
// call from any goroutine and any number of times.
func (s *Session) RequestClose(reason CloseReason) {
	s.mu.Lock()
	fn := s.requestClose
	s.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

func (s *Session) setCloser(fn func(CloseReason)) {
	s.mu.Lock()
	s.requestClose = fn
	s.mu.Unlock()
}

// beginVerify moves OPEN -> VERIFYING. Returns false if the session is
// already closing or closed.
func (s *Session) beginVerify() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return false
	}
	s.state = StateVerifying
	return true
}

// endVerify moves VERIFYING -> OPEN and stamps the verification time.
// Returns false if a concurrent close won the race, in which case the
// verification result is discarded.
func (s *Session) endVerify(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateVerifying {
		return false
	}
	s.state = StateOpen
	s.lastVerifiedAt = now
	return true
}

// beginClose moves any non-terminal state to CLOSING. Returns false if the
// session is already CLOSING or CLOSED, so close paths racing each other
// resolve to a single winner.
func (s *Session) beginClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		return false
	}
	s.state = StateClosing
	return true
}

// finishClose moves CLOSING -> CLOSED.
func (s *Session) finishClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing {
		s.state = StateClosed
	}
}

// AuthorityLookup is the read-only view of the authority store consumed by
// the gate and the supervisor.
type AuthorityLookup interface {
	Lookup(ctx context.Context, ref string) (*authority.Record, error)
}

// EventSink records security events. Implementations are best-effort and
// must never block the authorization path.
type EventSink interface {
	Record(eventType, subjectID, outcome, message string, details interface{})
}

// Transport is one accepted admin connection as seen by the supervisor.
// ReadMessage blocks until a message arrives, the peer goes away, or ctx is
// cancelled. Close must be idempotent.
type Transport interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close(code CloseCode, reason string) error
}
