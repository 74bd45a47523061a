package constants

// API error codes returned in JSON error responses. The admin channel never
// exposes these to the remote party; rejections surface only as a generic
// policy violation (see internal/channel).
const (
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodePolicyViolation  = "POLICY_VIOLATION"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	ErrCodeSubjectExists    = "SUBJECT_ALREADY_EXISTS"
	ErrCodeSubjectNotFound  = "SUBJECT_NOT_FOUND"
)
