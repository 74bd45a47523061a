// Package authority reads and maintains the system of record for subjects:
// who they are, what role they currently hold, and whether the account is
// active. The admin channel trusts nothing but this store for authorization
// decisions; credential claims are never consulted.
package authority

import "errors"

// Subject represents an account capable of holding a privileged role.
type Subject struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Record is the result of an authority lookup: the subject's current role
// and active status as committed in the store at lookup time.
type Record struct {
	SubjectID string
	Username  string
	Role      string
	Active    bool
}

var (
	// ErrNotFound means neither the primary nor the secondary key matched.
	ErrNotFound = errors.New("subject not found")

	// ErrUnavailable wraps transient store failures (busy database, lookup
	// timeout). Callers retry these; a NotFound is never retried.
	ErrUnavailable = errors.New("authority store unavailable")

	// ErrSubjectExists is returned when creating a subject whose username
	// is already taken.
	ErrSubjectExists = errors.New("subject already exists")
)
