package credential

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cargohold/internal/constants"
)

const (
	testSecret   = "unit-test-secret"
	testIssuer   = "cargohold-test"
	testAudience = "cargohold-admin"
)

func newHS256Parser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(Config{
		Algorithm:    constants.CredentialAlgHS256,
		SharedSecret: testSecret,
		Issuer:       testIssuer,
		Audience:     testAudience,
	})
	if err != nil {
		t.Fatalf("NewParser failed: %v", err)
	}
	return p
}

// signHS256 issues a token the way an external issuer would, with the same
// key derivation the parser uses.
func signHS256(t *testing.T, claims wireClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(DeriveSharedKey(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func validClaims(subject string) wireClaims {
	return wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestParseValidToken(t *testing.T) {
	p := newHS256Parser(t)

	identity, err := p.Parse(signHS256(t, validClaims("subj-123")))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if identity.SubjectID != "subj-123" {
		t.Errorf("SubjectID = %q, want subj-123", identity.SubjectID)
	}
}

func TestParseExpiredToken(t *testing.T) {
	p := newHS256Parser(t)

	claims := validClaims("subj-123")
	// Well past the leeway window.
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-10 * time.Minute))

	_, err := p.Parse(signHS256(t, claims))
	if !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestParseMalformedToken(t *testing.T) {
	p := newHS256Parser(t)

	for _, token := range []string{"", "   ", "not-a-token", "a.b.c"} {
		_, err := p.Parse(token)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q): expected ErrMalformed, got %v", token, err)
		}
	}
}

func TestParseWrongKey(t *testing.T) {
	p := newHS256Parser(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("subj-123")).
		SignedString(DeriveSharedKey("a-different-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := p.Parse(token); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for bad signature, got %v", err)
	}
}

func TestParseWrongIssuerOrAudience(t *testing.T) {
	p := newHS256Parser(t)

	badIssuer := validClaims("subj-123")
	badIssuer.Issuer = "someone-else"
	if _, err := p.Parse(signHS256(t, badIssuer)); !errors.Is(err, ErrMalformed) {
		t.Errorf("wrong issuer: expected ErrMalformed, got %v", err)
	}

	badAudience := validClaims("subj-123")
	badAudience.Audience = jwt.ClaimStrings{"other-service"}
	if _, err := p.Parse(signHS256(t, badAudience)); !errors.Is(err, ErrMalformed) {
		t.Errorf("wrong audience: expected ErrMalformed, got %v", err)
	}
}

func TestParseMissingSubject(t *testing.T) {
	p := newHS256Parser(t)

	if _, err := p.Parse(signHS256(t, validClaims(""))); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for missing subject, got %v", err)
	}
}

func TestParseMissingExpiry(t *testing.T) {
	p := newHS256Parser(t)

	claims := validClaims("subj-123")
	claims.ExpiresAt = nil
	if _, err := p.Parse(signHS256(t, claims)); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for missing exp, got %v", err)
	}
}

// A role claim embedded in the credential is part of the wire format but has
// no bearing on the parse result. The identity carries the subject only.
func TestEmbeddedRoleClaimIgnored(t *testing.T) {
	p := newHS256Parser(t)

	claims := validClaims("subj-123")
	claims.Role = "admin"

	identity, err := p.Parse(signHS256(t, claims))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if identity.SubjectID != "subj-123" {
		t.Errorf("SubjectID = %q, want subj-123", identity.SubjectID)
	}
}

func TestEd25519Parser(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	p, err := NewParser(Config{
		Algorithm:    constants.CredentialAlgEd25519,
		PublicKeyPEM: pubPEM,
		Issuer:       testIssuer,
		Audience:     testAudience,
	})
	if err != nil {
		t.Fatalf("NewParser failed: %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, validClaims("subj-ed")).SignedString(priv)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	identity, err := p.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if identity.SubjectID != "subj-ed" {
		t.Errorf("SubjectID = %q, want subj-ed", identity.SubjectID)
	}

	// An HS256 token must not pass an ed25519 parser, even with a valid
	// payload. Guards against algorithm confusion.
	if _, err := p.Parse(signHS256(t, validClaims("subj-ed"))); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for hs256 token, got %v", err)
	}
}

func TestNewParserRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{Algorithm: "rsa", SharedSecret: "x"},
		{Algorithm: constants.CredentialAlgEd25519},
		{Algorithm: constants.CredentialAlgHS256},
		{Algorithm: constants.CredentialAlgEd25519, PublicKeyPEM: []byte("not a pem")},
	}
	for _, cfg := range cases {
		if _, err := NewParser(cfg); err == nil {
			t.Errorf("NewParser(%+v) should have failed", cfg)
		}
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("token-a")
	b := Fingerprint("token-b")

	if len(a) != constants.TokenHashPrefixLength {
		t.Errorf("fingerprint length = %d, want %d", len(a), constants.TokenHashPrefixLength)
	}
	if a == b {
		t.Error("different tokens produced the same fingerprint")
	}
	if a != Fingerprint("token-a") {
		t.Error("fingerprint is not deterministic")
	}
}
