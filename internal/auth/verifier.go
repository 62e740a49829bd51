package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience every access token must carry.
const expectedAudience = "authenticated"

// ErrInvalidToken indicates the token failed verification. All verification
// failures collapse into this sentinel so callers can uniformly reject;
// the underlying cause is only for server-side logs.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal bound to a connection. It is
// derived from a verified token and never mutated.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Claims is the token payload issued by the identity provider.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens signed with a shared HS256 secret.
// It is stateless and safe for concurrent use.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier builds a verifier for tokens minted by the identity provider
// at issuerBaseURL.
func NewVerifier(secret, issuerBaseURL string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth secret is required")
	}
	base := strings.TrimRight(strings.TrimSpace(issuerBaseURL), "/")
	if base == "" {
		return nil, errors.New("issuer base URL is required")
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: base + "/auth/v1",
	}, nil
}

// Verify checks the token signature, expiry, audience and issuer, and
// returns the embedded identity. Any failure yields ErrInvalidToken.
func (v *Verifier) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}
	if err := v.validateClaims(claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	role := claims.Role
	if role == "" {
		role = expectedAudience
	}
	return Identity{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (v *Verifier) validateClaims(claims *Claims) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil {
		return errors.New("expiry missing")
	}
	if time.Now().UTC().After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	if claims.Issuer != v.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if !hasAudience(claims.Audience, expectedAudience) {
		return errors.New("unexpected audience")
	}
	return nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
