package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	authTestUser     = "hostpulse"
	authTestPassword = "correct horse battery staple"
	authTestID       = "8d6f0a4e-21bc-4c5e-9f13-2f0f6f9f7a01"
	authTestTTL      = time.Minute
)

var authTestSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeCreds struct {
	id   string
	hash []byte
	err  error
}

func (f *fakeCreds) Lookup(username string) (string, []byte, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	if username != authTestUser {
		return "", nil, errors.New("no such account")
	}
	return f.id, f.hash, nil
}

func testService(t *testing.T) *Service {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(authTestPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return NewService(&fakeCreds{id: authTestID, hash: hash}, authTestSecret, authTestTTL)
}

func TestAuthenticateSuccess(t *testing.T) {
	svc := testService(t)

	tok, err := svc.Authenticate(authTestUser, authTestPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Value)
	assert.WithinDuration(t, time.Now().Add(authTestTTL), tok.ExpiresAt, 5*time.Second)

	subject, err := svc.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, authTestID, subject)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := testService(t)
	_, err := svc.Authenticate(authTestUser, "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc := testService(t)
	_, err := svc.Authenticate("nobody", authTestPassword)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyExpiredToken(t *testing.T) {
	svc := testService(t)

	issued := time.Now().Add(-2 * authTestTTL)
	svc.now = func() time.Time { return issued }
	tok, err := svc.Issue(authTestID)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyGarbage(t *testing.T) {
	svc := testService(t)
	_, err := svc.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyWrongSecret(t *testing.T) {
	svc := testService(t)

	other := NewService(nil, []byte("another-secret-another-secret!!!"), authTestTTL)
	tok, err := other.Issue(authTestID)
	require.NoError(t, err)

	_, err = svc.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	svc := testService(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  authTestID,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"type": "access",
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsWrongType(t *testing.T) {
	svc := testService(t)

	claims := jwt.MapClaims{
		"sub":  authTestID,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
		"type": "refresh",
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(authTestSecret)
	require.NoError(t, err)

	_, err = svc.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	svc := testService(t)

	claims := jwt.MapClaims{
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
		"type": "access",
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(authTestSecret)
	require.NoError(t, err)

	_, err = svc.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
