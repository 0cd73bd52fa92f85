package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload issued by the auth collaborator.
type Claims struct {
	Role   string `json:"role"`
	Banned bool   `json:"banned"`
	jwt.RegisteredClaims
}

// Verifier validates collaborator-issued bearer tokens and maps them to actors.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier over a shared HMAC secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken parses a bearer token and returns the actor it describes.
// Only HS256 tokens are accepted.
func (v *Verifier) VerifyToken(raw string) (Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Actor{}, ErrInvalidToken
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Actor{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Actor{}, ErrInvalidToken
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return Actor{}, ErrInvalidRole
	}
	return Actor{ID: claims.Subject, Role: role, Banned: claims.Banned}, nil
}

// IssueToken signs an actor into a token. Used by tests and local tooling;
// production tokens come from the auth collaborator.
func (v *Verifier) IssueToken(actor Actor, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role:   string(actor.Role),
		Banned: actor.Banned,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
