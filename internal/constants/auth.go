package constants

import "time"

// Roles recorded in the authority store. The privileged set for the admin
// channel is configurable; RoleAdmin is the default member.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleUser     = "user"
)

// Credential verification
const (
	CredentialAlgEd25519 = "ed25519"
	CredentialAlgHS256   = "hs256"

	// HS256 key derivation from the configured shared secret
	CredentialKDFIterations = 600_000
	CredentialKDFKeyBytes   = 32
	CredentialKDFSalt       = "cargohold-admin-channel-v1"

	// Clock skew tolerated when validating exp/nbf
	CredentialLeeway = 30 * time.Second
)

// Admin channel defaults (all overridable via config)
const (
	ChannelVerifyInterval  = 30 * time.Second // re-verification backstop
	ChannelLookupTimeout   = 3 * time.Second  // per authority lookup attempt
	ChannelLookupRetries   = 3                // attempts before failing closed
	ChannelRetryBackoff    = 250 * time.Millisecond
	ChannelMaxMessageBytes = 65536
)

// Token hash prefix length used in audit details. Raw credentials are never
// written to the event sink; only a BLAKE3 hash prefix for correlation.
const TokenHashPrefixLength = 12

// Subject username validation (secondary lookup key)
const (
	SubjectUsernameRegex = `^[a-z0-9_-]{3,64}$`
)

// Bootstrap
const (
	BootstrapUsername = "admin"
)
