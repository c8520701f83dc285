// Package auth authenticates the local account and issues and verifies
// the short-lived bearer tokens that gate every monitoring endpoint.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials means the username or password is wrong. The
	// two cases are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenExpired means the token was valid but its lifetime is over.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid covers every other verification failure: bad
	// signature, malformed token, wrong algorithm, missing claims.
	ErrTokenInvalid = errors.New("token invalid")
)

// Credentials resolves a username to its stored account record.
type Credentials interface {
	// Lookup returns the account identifier and bcrypt password hash for
	// username, or an error when no such account exists.
	Lookup(username string) (id string, passwordHash []byte, err error)
}

// Token is an issued access token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Service authenticates credentials and manages access tokens.
type Service struct {
	creds  Credentials
	secret []byte
	ttl    time.Duration

	now func() time.Time
}

// NewService creates a Service signing tokens with secret, each valid for
// ttl.
func NewService(creds Credentials, secret []byte, ttl time.Duration) *Service {
	return &Service{
		creds:  creds,
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Authenticate checks username and password against the credential store
// and issues a token on success. Unknown usernames and wrong passwords
// both fail with ErrInvalidCredentials.
func (s *Service) Authenticate(username, password string) (Token, error) {
	id, hash, err := s.creds.Lookup(username)
	if err != nil {
		return Token{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}
	return s.Issue(id)
}

// Issue creates a signed access token for subject.
func (s *Service) Issue(subject string) (Token, error) {
	now := s.now()
	expires := now.Add(s.ttl)

	claims := jwt.MapClaims{
		"sub":  subject,
		"iat":  now.Unix(),
		"exp":  expires.Unix(),
		"type": "access",
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("signing token: %w", err)
	}

	return Token{Value: signed, ExpiresAt: expires}, nil
}

// Verify validates tokenString and returns its subject. Expiry is
// distinguished from all other failures so callers can tell the consumer
// to re-authenticate.
func (s *Service) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrTokenInvalid
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrTokenInvalid
	}
	if typ, _ := claims["type"].(string); typ != "access" {
		return "", ErrTokenInvalid
	}
	return sub, nil
}
