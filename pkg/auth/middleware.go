package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is a private type for context keys.
type contextKey int

const subjectContextKey contextKey = iota

// WithSubject adds the authenticated subject to the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

// Subject retrieves the authenticated subject from the context. It returns
// the empty string when the request never passed the middleware.
func Subject(ctx context.Context) string {
	if s, ok := ctx.Value(subjectContextKey).(string); ok {
		return s
	}
	return ""
}

// BearerToken extracts the token from an Authorization: Bearer header. It
// returns the empty string when the header is missing or malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Middleware verifies the bearer token on every request and places the
// token's subject in the request context. Requests without a valid token
// are rejected by onError with the verification failure.
func Middleware(svc *Service, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				onError(w, r, ErrTokenInvalid)
				return
			}

			subject, err := svc.Verify(token)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}
