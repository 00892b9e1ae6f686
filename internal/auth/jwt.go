package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IDTokenExpiry is the lifetime of an issued credential. Role changes made
// server-side become visible no later than one refresh cycle.
const IDTokenExpiry = time.Hour

// DefaultLeeway for token validation.
const DefaultLeeway = 30 * time.Second

// ErrInvalidToken is returned when token validation fails.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned when the token has expired.
var ErrExpiredToken = errors.New("token has expired")

// ErrTokenRevoked is returned when the token's session generation is stale,
// i.e. the user's sessions were revoked after the token was issued.
var ErrTokenRevoked = errors.New("token has been revoked")

// ErrEmptyUID is returned when a token is requested for an empty user id.
var ErrEmptyUID = errors.New("uid cannot be empty")

// Claims is the full claim set carried by a Connect credential.
// RoleClaims is embedded flat so the wire format matches the claim layout
// the admin panel reads ("admin", "lider", "adolescent", "role").
type Claims struct {
	jwt.RegisteredClaims
	RoleClaims
	Name       string `json:"name,omitempty"`
	Anonymous  bool   `json:"anon,omitempty"`
	Generation int64  `json:"gen"`
}

// UID returns the subject, which is the user id.
func (c *Claims) UID() string {
	return c.RegisteredClaims.Subject
}

// TokenService issues and validates credentials. Validation consults the
// RevocationStore so that revoked sessions fail distinctly from merely
// invalid or expired ones.
type TokenService struct {
	secret      []byte
	leeway      time.Duration
	ttl         time.Duration
	revocations RevocationStore
}

// NewTokenService creates a TokenService signing with secret and checking
// revocation state against revocations.
func NewTokenService(secret string, revocations RevocationStore) *TokenService {
	return &TokenService{
		secret:      []byte(secret),
		leeway:      DefaultLeeway,
		ttl:         IDTokenExpiry,
		revocations: revocations,
	}
}

// NewTokenServiceWithLeeway creates a TokenService with custom validation leeway.
func NewTokenServiceWithLeeway(secret string, revocations RevocationStore, leeway time.Duration) *TokenService {
	ts := NewTokenService(secret, revocations)
	ts.leeway = leeway
	return ts
}

// NewTokenServiceWithTTL creates a TokenService issuing credentials with the
// given lifetime. The lifetime bounds how long a stale role assignment can
// survive without an explicit revocation. ttl <= 0 falls back to
// IDTokenExpiry.
func NewTokenServiceWithTTL(secret string, revocations RevocationStore, ttl time.Duration) *TokenService {
	ts := NewTokenService(secret, revocations)
	if ttl > 0 {
		ts.ttl = ttl
	}
	return ts
}

// Issue creates a credential for the user carrying the given role claims.
// The current session generation is embedded so a later RevokeSessions call
// invalidates it.
func (s *TokenService) Issue(ctx context.Context, uid, name string, anonymous bool, role RoleClaims) (string, error) {
	if uid == "" {
		return "", ErrEmptyUID
	}

	gen, err := s.revocations.Generation(ctx, uid)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		RoleClaims: role,
		Name:       name,
		Anonymous:  anonymous,
		Generation: gen,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a credential, returning its claims.
// A token signed before the user's sessions were revoked fails with
// ErrTokenRevoked; callers must treat that differently from ErrInvalidToken
// (sign out locally and re-bootstrap rather than retry).
func (s *TokenService) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithLeeway(s.leeway))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	gen, err := s.revocations.Generation(ctx, claims.UID())
	if err != nil {
		return nil, err
	}
	if claims.Generation < gen {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}
