package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hostpulse/hostpulse/pkg/auth"
	"github.com/hostpulse/hostpulse/pkg/pool"
)

const (
	defaultAveragesInterval = 5 * time.Second
	maxAveragesInterval     = 30 * time.Second
)

type authenticateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authenticateResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type workerResponse struct {
	ID string `json:"id"`
}

// handleAuthenticate exchanges credentials for a short-lived token. Every
// failure is the same 401 so the response shape never leaks whether the
// username exists.
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.deps.Auth.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, authenticateResponse{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
	})
}

// handleCreateWorker issues a session identifier the caller must claim on
// a streaming connection within the grace period.
func (s *Server) handleCreateWorker(w http.ResponseWriter, r *http.Request) {
	id, err := s.deps.Registry.Create(auth.Subject(r.Context()))
	if err != nil {
		slog.Error("creating worker failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create worker")
		return
	}
	writeJSON(w, http.StatusOK, workerResponse{ID: id})
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Snapshots.System(r.Context())
	if err != nil {
		writeSnapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	withAverages := false
	switch r.URL.Query().Get("averages") {
	case "1", "true":
		withAverages = true
	}

	interval := defaultAveragesInterval
	if raw := r.URL.Query().Get("interval"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			writeError(w, http.StatusBadRequest, "interval must be a positive number of seconds")
			return
		}
		interval = time.Duration(secs) * time.Second
		if interval > maxAveragesInterval {
			interval = maxAveragesInterval
		}
	}

	snap, err := s.deps.Snapshots.Network(r.Context(), withAverages, interval)
	if err != nil {
		writeSnapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// writeSnapshotError maps collection failures: pool overload is 503,
// anything else is a plain 500.
func writeSnapshotError(w http.ResponseWriter, err error) {
	if errors.Is(err, pool.ErrSaturated) {
		writeError(w, http.StatusServiceUnavailable, "server is at full capacity, please try again later")
		return
	}
	slog.Error("snapshot failed", "error", err)
	writeError(w, http.StatusInternalServerError, "snapshot unavailable")
}

// unauthorized is the middleware error sink. Token expiry gets its own
// message so consumers know to re-authenticate.
func unauthorized(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, auth.ErrTokenExpired) {
		writeError(w, http.StatusUnauthorized, "token expired")
		return
	}
	writeError(w, http.StatusUnauthorized, "token invalid")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
