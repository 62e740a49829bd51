package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "test-secret"
	testBaseURL = "https://id.example.com"
)

type tokenOverrides struct {
	secret   string
	issuer   string
	audience string
	expiry   time.Time
	subject  string
	method   jwt.SigningMethod
}

func mintToken(t *testing.T, o tokenOverrides) string {
	t.Helper()

	if o.secret == "" {
		o.secret = testSecret
	}
	if o.issuer == "" {
		o.issuer = testBaseURL + "/auth/v1"
	}
	if o.audience == "" {
		o.audience = "authenticated"
	}
	if o.expiry.IsZero() {
		o.expiry = time.Now().Add(time.Hour)
	}
	if o.subject == "" {
		o.subject = "user-1"
	}
	if o.method == nil {
		o.method = jwt.SigningMethodHS256
	}

	claims := Claims{
		Email: "user@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   o.subject,
			Issuer:    o.issuer,
			Audience:  jwt.ClaimStrings{o.audience},
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(o.expiry),
		},
	}
	signed, err := jwt.NewWithClaims(o.method, claims).SignedString([]byte(o.secret))
	require.NoError(t, err)
	return signed
}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret, testBaseURL)
	require.NoError(t, err)
	return v
}

func TestNewVerifierRequiresConfig(t *testing.T) {
	_, err := NewVerifier("", testBaseURL)
	assert.Error(t, err)

	_, err = NewVerifier(testSecret, "  ")
	assert.Error(t, err)
}

func TestVerifyValidToken(t *testing.T) {
	v := newTestVerifier(t)

	id, err := v.Verify(mintToken(t, tokenOverrides{}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "user@example.com", id.Email)
	assert.Equal(t, "authenticated", id.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt, time.Minute)
}

func TestVerifyTrailingSlashIssuerBaseURL(t *testing.T) {
	v, err := NewVerifier(testSecret, testBaseURL+"/")
	require.NoError(t, err)

	_, err = v.Verify(mintToken(t, tokenOverrides{}))
	assert.NoError(t, err)
}

func TestVerifyRejections(t *testing.T) {
	v := newTestVerifier(t)

	cases := map[string]string{
		"empty token":    "",
		"garbage":        "not.a.token",
		"wrong secret":   mintToken(t, tokenOverrides{secret: "other-secret"}),
		"expired":        mintToken(t, tokenOverrides{expiry: time.Now().Add(-time.Minute)}),
		"wrong issuer":   mintToken(t, tokenOverrides{issuer: "https://evil.example.com/auth/v1"}),
		"wrong audience": mintToken(t, tokenOverrides{audience: "anon"}),
		"missing sub":    mintToken(t, tokenOverrides{subject: " "}),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken), "expected ErrInvalidToken, got %v", err)
		})
	}
}

func TestVerifyRejectsNonHMACAlgorithm(t *testing.T) {
	v := newTestVerifier(t)

	// alg=none style tokens must never pass the method check.
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    testBaseURL + "/auth/v1",
		Audience:  jwt.ClaimStrings{"authenticated"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
