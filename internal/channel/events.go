package channel

import "cargohold/internal/audit"

func auditHandshakeDetails(fingerprint, remoteAddr, role, reason string) audit.HandshakeDetails {
	return audit.HandshakeDetails{
		TokenFingerprint: fingerprint,
		RemoteAddr:       remoteAddr,
		Role:             role,
		Reason:           reason,
	}
}

func auditCloseDetails(sessionID string, reason CloseReason, durationSecs int64) audit.SessionCloseDetails {
	return audit.SessionCloseDetails{
		SessionID:    sessionID,
		Reason:       string(reason),
		DurationSecs: durationSecs,
	}
}
