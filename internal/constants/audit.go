package constants

// Security event types. Every authorization decision on the admin channel
// produces exactly one of these.
const (
	EventHandshakeAuthorized = "handshake_authorized"
	EventHandshakeRejected   = "handshake_rejected"
	EventSessionVerified     = "session_verified"
	EventSessionClosed       = "session_closed"
	EventSubjectCreated      = "subject_created"
	EventSubjectUpdated      = "subject_updated"
)

// Security event outcomes
const (
	OutcomeAuthorized = "authorized"
	OutcomeRejected   = "rejected"
	OutcomeRevoked    = "revoked"
	OutcomeClosed     = "closed"
	OutcomeError      = "error"
	OutcomeOK         = "ok"
)

// Event sink housekeeping
const (
	AuditStreamBufferSize    = 100
	AuditCleanupIntervalMins = 60
	AuditMaxLogSizeBytes     = 52428800 // 50MB
	AuditPurgePercentage     = 20
	AuditMinPurgeEntries     = 100
)
