// Package credential validates bearer credentials presented on the admin
// channel and extracts a bare subject identifier. It deliberately returns
// nothing else: role or permission claims carried in the token payload are
// part of the wire format but are never read for authorization. Every
// authorization decision is made from the authority store instead.
package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/pbkdf2"

	"cargohold/internal/constants"
)

// Identity is the sole output of a successful parse: an opaque subject
// reference usable as an authority store lookup key.
type Identity struct {
	SubjectID string
}

var (
	// ErrMalformed covers bad encoding, bad signature, wrong algorithm,
	// wrong issuer/audience, and a missing subject.
	ErrMalformed = errors.New("credential malformed")

	// ErrExpired means the credential validated but is past its expiry.
	ErrExpired = errors.New("credential expired")
)

// Config holds the verification settings for the parser.
type Config struct {
	Algorithm    string // "ed25519" or "hs256"
	PublicKeyPEM []byte // ed25519 only
	SharedSecret string // hs256 only; the verify key is derived, never used raw
	Issuer       string
	Audience     string
}

// Parser verifies bearer credentials. Safe for concurrent use.
type Parser struct {
	method    jwt.SigningMethod
	verifyKey interface{}
	parser    *jwt.Parser
}

// wireClaims mirrors the credential payload. Role is present on the wire
// but intentionally never read; see the package comment.
type wireClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// NewParser creates a parser for the configured algorithm.
func NewParser(cfg Config) (*Parser, error) {
	p := &Parser{}

	switch cfg.Algorithm {
	case constants.CredentialAlgEd25519:
		if len(cfg.PublicKeyPEM) == 0 {
			return nil, errors.New("ed25519 requires a public key")
		}
		key, err := jwt.ParseEdPublicKeyFromPEM(cfg.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("invalid ed25519 public key: %w", err)
		}
		p.method = jwt.SigningMethodEdDSA
		p.verifyKey = key
	case constants.CredentialAlgHS256:
		if cfg.SharedSecret == "" {
			return nil, errors.New("hs256 requires a shared secret")
		}
		p.method = jwt.SigningMethodHS256
		p.verifyKey = DeriveSharedKey(cfg.SharedSecret)
	default:
		return nil, fmt.Errorf("unsupported credential algorithm: %q", cfg.Algorithm)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithLeeway(constants.CredentialLeeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	p.parser = jwt.NewParser(options...)

	return p, nil
}

// NewParserFromConfigFile builds a parser from config values, reading the
// public key PEM from disk for ed25519.
func NewParserFromConfigFile(algorithm, publicKeyPath, sharedSecret, issuer, audience string) (*Parser, error) {
	cfg := Config{
		Algorithm:    algorithm,
		SharedSecret: sharedSecret,
		Issuer:       issuer,
		Audience:     audience,
	}
	if publicKeyPath != "" {
		pem, err := os.ReadFile(publicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		cfg.PublicKeyPEM = pem
	}
	return NewParser(cfg)
}

// Parse validates the credential's signature and expiry and returns the
// bare subject identity. Errors are one of ErrExpired or ErrMalformed so
// the caller can audit the precise reason without leaking it remotely.
func (p *Parser) Parse(token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	parsed, err := p.parser.ParseWithClaims(token, &wireClaims{}, func(t *jwt.Token) (interface{}, error) {
		return p.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := parsed.Claims.(*wireClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrMalformed)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	return &Identity{SubjectID: claims.Subject}, nil
}

// DeriveSharedKey derives the HS256 verify key from the configured
// passphrase. Token issuers must use the same derivation.
func DeriveSharedKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), []byte(constants.CredentialKDFSalt),
		constants.CredentialKDFIterations, constants.CredentialKDFKeyBytes, sha256.New)
}

// Fingerprint returns a short BLAKE3 hash prefix of a token for audit
// correlation. The raw token is never logged or persisted.
func Fingerprint(token string) string {
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:constants.TokenHashPrefixLength]
}
