package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	// ErrMissingCredential covers an absent Authorization header or a
	// scheme other than Bearer.
	ErrMissingCredential = errors.New("missing or invalid authorization header")

	// ErrInvalidToken covers every verification failure: bad signature,
	// expiry, malformed payload. Callers cannot tell which.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the verified actor identity for one request. It is never
// persisted; the batch owner id recorded on detections comes from UserID.
type Claims struct {
	UserID string
	Email  string
}

// Verifier checks HS256 bearer tokens against the process-wide secret.
// Token issuance is out of scope; only already-issued tokens are accepted.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify parses and validates one token string (without the Bearer prefix)
// and returns the identity claims from its subject and optional email.
func (v *Verifier) Verify(tokenString string) (Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrMissingCredential
	}

	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	subject, _ := mapClaims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		return Claims{}, ErrInvalidToken
	}

	email, _ := mapClaims["email"].(string)

	return Claims{
		UserID: subject,
		Email:  email,
	}, nil
}

// VerifyAuthorizationHeader extracts the bearer token from an Authorization
// header value and verifies it. A missing header or wrong scheme fails with
// ErrMissingCredential before any parsing happens.
func (v *Verifier) VerifyAuthorizationHeader(header string) (Claims, error) {
	const prefix = "Bearer "
	if header == "" || !strings.HasPrefix(header, prefix) {
		return Claims{}, ErrMissingCredential
	}
	return v.Verify(strings.TrimPrefix(header, prefix))
}
