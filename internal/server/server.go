// Package server assembles the HTTP surface of the monitoring daemon:
// authentication, worker issuance, snapshot endpoints, the websocket
// streams and the operational endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostpulse/hostpulse/pkg/auth"
	"github.com/hostpulse/hostpulse/pkg/config"
	"github.com/hostpulse/hostpulse/pkg/health"
	"github.com/hostpulse/hostpulse/pkg/observe"
	"github.com/hostpulse/hostpulse/pkg/snapshot"
	"github.com/hostpulse/hostpulse/pkg/stream"
	"github.com/hostpulse/hostpulse/pkg/worker"
)

// Version is set at build time.
var Version = "dev"

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Config    config.Config
	Auth      *auth.Service
	Registry  *worker.Registry
	Snapshots *snapshot.Service
	Publisher *stream.Publisher
	Health    *health.Checker
}

// Server is the HTTP server.
type Server struct {
	deps    Deps
	handler http.Handler
	httpSrv *http.Server
}

// New creates a Server with all routes registered.
func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.handler = s.routes()
	s.httpSrv = &http.Server{
		Addr:              deps.Config.Server.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("http server listening", "address", s.httpSrv.Addr, "version", Version)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.Health != nil {
		s.deps.Health.SetDraining()
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	requireAuth := auth.Middleware(s.deps.Auth, unauthorized)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /authenticate", s.handleAuthenticate)
	mux.Handle("POST /worker", requireAuth(http.HandlerFunc(s.handleCreateWorker)))
	mux.Handle("GET /system", requireAuth(http.HandlerFunc(s.handleSystem)))
	mux.Handle("GET /network", requireAuth(http.HandlerFunc(s.handleNetwork)))

	// Streaming endpoints authenticate inside the publisher: websocket
	// clients pass the token as a query parameter.
	mux.Handle("GET /connect", s.deps.Publisher.System())
	mux.Handle("GET /connect/network", s.deps.Publisher.Network())

	if s.deps.Health != nil {
		mux.HandleFunc("GET /healthz", s.deps.Health.LivenessHandler())
		mux.HandleFunc("GET /readyz", s.deps.Health.ReadinessHandler())
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	return instrument(cors(mux))
}

// cors allows the desktop consumer, which loads from a file:// origin, to
// call the API.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket upgrades need the raw ResponseWriter for hijacking.
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		observe.HTTPRequests.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
	})
}
