package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"cargohold/internal/authority"
	"cargohold/internal/constants"
	"cargohold/internal/logger"
)

// SupervisorConfig holds the re-verification policy for one session.
type SupervisorConfig struct {
	VerifyInterval  time.Duration // backstop tick, bounds the staleness window
	Retry           RetryPolicy
	PrivilegedRoles map[string]struct{}
}

// Supervisor owns the lifecycle of one accepted admin connection: the
// inbound message loop, the periodic re-verification against the authority
// store, and the terminal close. A session closes at most once no matter
// how many triggers race: client disconnect, revocation, protocol error,
// server shutdown.
type Supervisor struct {
	session   *Session
	conn      Transport
	authority AuthorityLookup
	events    EventSink
	registry  *Registry
	log       *logger.Logger
	cfg       SupervisorConfig

	cancelMu  sync.Mutex
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// inbound is one result of the blocking transport read.
type inbound struct {
	data []byte
	err  error
}

// message is the envelope every inbound admin-channel message must match.
type message struct {
	Type string `json:"type"`
}

// NewSupervisor creates a supervisor for an accepted connection. The
// session starts in OPEN, already verified by the handshake.
func NewSupervisor(accept *Accept, remoteAddr string, conn Transport, store AuthorityLookup,
	events EventSink, registry *Registry, log *logger.Logger, cfg SupervisorConfig) *Supervisor {

	now := time.Now()
	s := &Supervisor{
		session: &Session{
			ID:             uuid.NewString(),
			SubjectID:      accept.SubjectID,
			Role:           accept.Role,
			RemoteAddr:     remoteAddr,
			OpenedAt:       now,
			state:          StateOpen,
			lastVerifiedAt: now,
		},
		conn:      conn,
		authority: store,
		events:    events,
		registry:  registry,
		log:       log,
		cfg:       cfg,
	}
	s.session.setCloser(s.close)
	return s
}

// Session returns the supervised session.
func (s *Supervisor) Session() *Session {
	return s.session
}

// Run drives the session until it closes. It registers the session, starts
// the read loop, and re-verifies authority on every tick and on every
// inbound message. Run returns only after the session is CLOSED and
// unregistered.
func (s *Supervisor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
	defer cancel()

	s.registry.Register(s.session)

	// A close requested before registration could not unregister a session
	// that was not in the registry yet. Re-check after registering so a
	// CLOSED session never lingers there; Unregister is idempotent when the
	// close path got there first.
	if s.session.State() >= StateClosing {
		s.registry.Unregister(s.session.ID)
		return
	}

	ticker := time.NewTicker(s.cfg.VerifyInterval)
	defer ticker.Stop()

	msgs := make(chan inbound, 1)
	go s.readLoop(ctx, msgs)

	for {
		select {
		case <-ctx.Done():
			// Parent cancelled (server shutdown) or close() already ran.
			s.close(ReasonShutdown)
			return

		case <-ticker.C:
			if !s.reverify(ctx) {
				return
			}

		case in := <-msgs:
			if in.err != nil {
				s.close(ReasonClientDisconnect)
				return
			}
			if !s.handleMessage(ctx, in.data) {
				return
			}
		}
	}
}

// readLoop blocks on the transport and forwards each read to Run. It exits
// after the first error; ctx cancellation unblocks the read.
func (s *Supervisor) readLoop(ctx context.Context, msgs chan<- inbound) {
	for {
		data, err := s.conn.ReadMessage(ctx)
		select {
		case msgs <- inbound{data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// handleMessage validates and dispatches one inbound message, then runs an
// opportunistic re-verification. The periodic ticker remains the backstop;
// this only tightens the staleness window for chatty clients.
// Returns false when the session closed.
func (s *Supervisor) handleMessage(ctx context.Context, data []byte) bool {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		s.log.Warn("channel: malformed message on session %s", s.session.ID)
		s.close(ReasonProtocolError)
		return false
	}

	switch msg.Type {
	case "ping":
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.conn.WriteMessage(writeCtx, []byte(`{"type":"pong"}`))
		cancel()
		if err != nil {
			s.close(ReasonClientDisconnect)
			return false
		}
	default:
		// Unknown types are tolerated; the envelope was well-formed.
		s.log.Debug("channel: ignoring message type %q on session %s", msg.Type, s.session.ID)
	}

	return s.reverify(ctx)
}

// reverify checks the subject's current authority. On success the session
// returns to OPEN with a fresh verification stamp. A definitive negative
// answer (gone, disabled, demoted) revokes the session; an unreachable
// store after the retry budget fails closed as a system error.
// Returns false when the session closed.
func (s *Supervisor) reverify(ctx context.Context) bool {
	if !s.session.beginVerify() {
		return false
	}

	rec, err := lookupWithRetry(ctx, s.authority, s.session.SubjectID, s.cfg.Retry)
	switch {
	case err == nil && rec.Active && s.privileged(rec.Role):
		if !s.session.endVerify(time.Now()) {
			// A concurrent close won; the terminal event is already the
			// last word for this session.
			return false
		}
		s.events.Record(constants.EventSessionVerified, s.session.SubjectID, constants.OutcomeOK,
			"authority re-verified", nil)
		s.log.Debug("channel: session %s re-verified (role %s)", s.session.ID, rec.Role)
		return true

	case err != nil && !errors.Is(err, authority.ErrNotFound):
		s.log.Error("channel: session %s failing closed, authority store unavailable: %v", s.session.ID, err)
		s.close(ReasonSystemError)
		return false

	default:
		// Subject deleted, disabled, or no longer holding a privileged
		// role. The credential may still be cryptographically valid; that
		// no longer matters.
		s.log.Info("channel: session %s revoked for subject %q", s.session.ID, s.session.SubjectID)
		s.close(ReasonRevoked)
		return false
	}
}

func (s *Supervisor) privileged(role string) bool {
	_, ok := s.cfg.PrivilegedRoles[role]
	return ok
}

// close performs the terminal transition exactly once: CLOSING -> CLOSED,
// transport released, timer cancelled via context, session unregistered,
// and exactly one terminal security event recorded.
func (s *Supervisor) close(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.session.beginClose()

		// The close frame must go out before the read context is cancelled;
		// cancelling a pending read tears down the underlying connection and
		// the remote party would see EOF instead of the close code. Closing
		// the transport also unblocks any in-flight read.
		code, wireReason := closeCodeFor(reason)
		if err := s.conn.Close(code, wireReason); err != nil {
			s.log.Debug("channel: transport close on session %s: %v", s.session.ID, err)
		}

		s.cancelMu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.cancelMu.Unlock()

		s.registry.Unregister(s.session.ID)
		s.session.finishClose()

		duration := int64(time.Since(s.session.OpenedAt).Seconds())
		outcome := constants.OutcomeClosed
		switch reason {
		case ReasonRevoked:
			outcome = constants.OutcomeRevoked
		case ReasonSystemError, ReasonProtocolError:
			outcome = constants.OutcomeError
		}
		s.events.Record(constants.EventSessionClosed, s.session.SubjectID, outcome,
			"admin channel session closed", auditCloseDetails(s.session.ID, reason, duration))
		s.log.Info("channel: session %s closed (%s) after %ds", s.session.ID, reason, duration)
	})
}
