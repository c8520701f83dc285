package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"missing", "", ""},
		{"well formed", "Bearer abc123", "abc123"},
		{"lowercase scheme", "bearer abc123", "abc123"},
		{"wrong scheme", "Basic abc123", ""},
		{"scheme only", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/system", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, BearerToken(r))
		})
	}
}

func TestMiddleware(t *testing.T) {
	svc := testService(t)
	tok, err := svc.Issue(authTestID)
	require.NoError(t, err)

	var gotSubject string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	var gotErr error
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	}

	handler := Middleware(svc, onError)(next)

	t.Run("valid token", func(t *testing.T) {
		gotErr = nil
		r := httptest.NewRequest(http.MethodGet, "/system", nil)
		r.Header.Set("Authorization", "Bearer "+tok.Value)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, authTestID, gotSubject)
		assert.NoError(t, gotErr)
	})

	t.Run("missing header", func(t *testing.T) {
		gotErr = nil
		r := httptest.NewRequest(http.MethodGet, "/system", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.ErrorIs(t, gotErr, ErrTokenInvalid)
	})

	t.Run("tampered token", func(t *testing.T) {
		gotErr = nil
		r := httptest.NewRequest(http.MethodGet, "/system", nil)
		r.Header.Set("Authorization", "Bearer "+tok.Value+"x")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.ErrorIs(t, gotErr, ErrTokenInvalid)
	})
}

func TestSubjectWithoutMiddleware(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/system", nil)
	assert.Empty(t, Subject(r.Context()))
}
