package channel

import (
	"context"
	"errors"

	"cargohold/internal/authority"
	"cargohold/internal/constants"
	"cargohold/internal/credential"
	"cargohold/internal/logger"
)

// RejectReason is the internal classification of a refused handshake. It is
// recorded in the security event log but never sent to the remote party.
type RejectReason string

const (
	RejectTokenMalformed   RejectReason = "token_malformed"
	RejectTokenExpired     RejectReason = "token_expired"
	RejectSubjectNotFound  RejectReason = "subject_not_found"
	RejectSubjectDisabled  RejectReason = "subject_disabled"
	RejectInsufficientRole RejectReason = "insufficient_role"
	RejectClientGone       RejectReason = "client_gone"
	RejectSystemError      RejectReason = "system_error"
)

// Accept carries the authorization result of a successful handshake. Role
// comes from the authority store, never from the credential.
type Accept struct {
	SubjectID string
	Role      string
}

// Rejection carries the internal reason a handshake was refused.
type Rejection struct {
	Reason RejectReason
}

// WireClose returns the generic close code and reason sent to the remote
// party. Every policy rejection collapses to the same code; only a system
// error is distinguishable, and then only as "internal error".
func (r *Rejection) WireClose() (CloseCode, string) {
	if r.Reason == RejectSystemError {
		return CloseInternalError, "internal error"
	}
	return ClosePolicyViolation, "policy violation"
}

// TokenParser validates a bearer credential and yields a bare identity.
type TokenParser interface {
	Parse(token string) (*credential.Identity, error)
}

// Gate decides whether an incoming admin connection may be accepted. It
// parses the credential for identity only, then consults the authority
// store for the current role and active status. Every branch emits exactly
// one security event before returning.
type Gate struct {
	parser     TokenParser
	authority  AuthorityLookup
	events     EventSink
	log        *logger.Logger
	privileged map[string]struct{}
	retry      RetryPolicy
}

// GateConfig bundles the gate's dependencies and policy.
type GateConfig struct {
	Parser          TokenParser
	Authority       AuthorityLookup
	Events          EventSink
	Logger          *logger.Logger
	PrivilegedRoles []string
	Retry           RetryPolicy
}

// NewGate creates a connection gate.
func NewGate(cfg GateConfig) *Gate {
	privileged := make(map[string]struct{}, len(cfg.PrivilegedRoles))
	for _, role := range cfg.PrivilegedRoles {
		privileged[role] = struct{}{}
	}
	return &Gate{
		parser:     cfg.Parser,
		authority:  cfg.Authority,
		events:     cfg.Events,
		log:        cfg.Logger,
		privileged: privileged,
		retry:      cfg.Retry,
	}
}

// IsPrivileged reports whether a role is in the privileged set.
func (g *Gate) IsPrivileged(role string) bool {
	_, ok := g.privileged[role]
	return ok
}

// Handshake runs the admission algorithm for one connection attempt.
// Exactly one of the return values is non-nil, and exactly one security
// event has been recorded when it returns.
//
// Credential failures terminate before any authority lookup, so an expired
// or forged token costs no store traffic.
func (g *Gate) Handshake(ctx context.Context, token, remoteAddr string) (*Accept, *Rejection) {
	fingerprint := credential.Fingerprint(token)

	identity, err := g.parser.Parse(token)
	if err != nil {
		reason := RejectTokenMalformed
		if errors.Is(err, credential.ErrExpired) {
			reason = RejectTokenExpired
		}
		g.log.Warn("channel: handshake rejected (%s): %v", reason, err)
		g.reject("", remoteAddr, fingerprint, reason)
		return nil, &Rejection{Reason: reason}
	}

	rec, err := lookupWithRetry(ctx, g.authority, identity.SubjectID, g.retry)
	if err != nil {
		if errors.Is(err, authority.ErrNotFound) {
			g.log.Warn("channel: handshake rejected, subject %q not in authority store", identity.SubjectID)
			g.reject(identity.SubjectID, remoteAddr, fingerprint, RejectSubjectNotFound)
			return nil, &Rejection{Reason: RejectSubjectNotFound}
		}
		if errors.Is(err, context.Canceled) {
			// The client went away while the lookup was still running. No
			// decision was reached; the event log should not call this a
			// store failure.
			g.log.Info("channel: handshake abandoned, client %s gone during verification", remoteAddr)
			g.reject(identity.SubjectID, remoteAddr, fingerprint, RejectClientGone)
			return nil, &Rejection{Reason: RejectClientGone}
		}
		// Retries exhausted. Fail closed: an unreachable authority store
		// never grants access.
		g.log.Error("channel: handshake aborted, authority store unavailable: %v", err)
		g.reject(identity.SubjectID, remoteAddr, fingerprint, RejectSystemError)
		return nil, &Rejection{Reason: RejectSystemError}
	}

	if !rec.Active {
		g.log.Warn("channel: handshake rejected, subject %q disabled", rec.SubjectID)
		g.reject(rec.SubjectID, remoteAddr, fingerprint, RejectSubjectDisabled)
		return nil, &Rejection{Reason: RejectSubjectDisabled}
	}

	if !g.IsPrivileged(rec.Role) {
		g.log.Warn("channel: handshake rejected, subject %q holds role %q", rec.SubjectID, rec.Role)
		g.reject(rec.SubjectID, remoteAddr, fingerprint, RejectInsufficientRole)
		return nil, &Rejection{Reason: RejectInsufficientRole}
	}

	g.events.Record(constants.EventHandshakeAuthorized, rec.SubjectID, constants.OutcomeAuthorized,
		"admin channel handshake accepted", auditHandshakeDetails(fingerprint, remoteAddr, rec.Role, ""))
	g.log.Info("channel: handshake accepted for subject %q (role %s)", rec.SubjectID, rec.Role)

	return &Accept{SubjectID: rec.SubjectID, Role: rec.Role}, nil
}

func (g *Gate) reject(subjectID, remoteAddr, fingerprint string, reason RejectReason) {
	g.events.Record(constants.EventHandshakeRejected, subjectID, constants.OutcomeRejected,
		"admin channel handshake rejected", auditHandshakeDetails(fingerprint, remoteAddr, "", string(reason)))
}
