// Package stream pushes periodic metric snapshots over websocket
// connections. A connection presents a worker identifier and a bearer
// token on open; claiming the worker binds the connection to it for the
// rest of its life.
package stream

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hostpulse/hostpulse/pkg/auth"
	"github.com/hostpulse/hostpulse/pkg/config"
	"github.com/hostpulse/hostpulse/pkg/observe"
	"github.com/hostpulse/hostpulse/pkg/snapshot"
	"github.com/hostpulse/hostpulse/pkg/worker"
)

// Greeting is the first frame sent on a claimed connection.
const Greeting = "connected to monitor, transmitting data..."

// Publisher upgrades monitoring requests to websockets and streams
// snapshots until the consumer goes away.
type Publisher struct {
	registry *worker.Registry
	auth     *auth.Service
	snaps    *snapshot.Service
	cfg      config.StreamConfig

	active   atomic.Int64
	upgrader websocket.Upgrader
}

// NewPublisher creates a Publisher streaming per cfg.
func NewPublisher(registry *worker.Registry, authSvc *auth.Service, snaps *snapshot.Service, cfg config.StreamConfig) *Publisher {
	return &Publisher{
		registry: registry,
		auth:     authSvc,
		snaps:    snaps,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			// The desktop consumer connects from a file:// origin; origin
			// checks add nothing on a localhost-bound listener.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// System returns the handler streaming system snapshots.
func (p *Publisher) System() http.Handler {
	return p.handler(func(ctx context.Context) (any, error) {
		return p.snaps.System(ctx)
	})
}

// Network returns the handler streaming network snapshots.
func (p *Publisher) Network() http.Handler {
	return p.handler(func(ctx context.Context) (any, error) {
		return p.snaps.Network(ctx, false, 0)
	})
}

func (p *Publisher) handler(collect func(ctx context.Context) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Capacity is checked before the upgrade so a saturated server
		// answers with a plain 503 instead of a half-open socket.
		if !p.acquire() {
			http.Error(w, "server is at full capacity, please try again later", http.StatusServiceUnavailable)
			return
		}
		defer p.release()

		// Browsers cannot set headers on websocket requests, so the
		// token also travels as a query parameter.
		token := auth.BearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		subject, err := p.auth.Verify(token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := p.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the handshake error.
			return
		}
		defer conn.Close()

		id := r.URL.Query().Get("id")
		if err := p.registry.Claim(id, subject, conn); err != nil {
			slog.Info("stream claim rejected", "error", err)
			p.closeWith(conn, websocket.ClosePolicyViolation, "invalid worker id")
			return
		}
		defer p.registry.Release(id)

		observe.ActiveStreams.Inc()
		defer observe.ActiveStreams.Dec()

		p.run(r.Context(), conn, collect)
	})
}

// run is the publish loop. It exits when the consumer disconnects, a
// write misses its deadline or the request context ends.
func (p *Publisher) run(ctx context.Context, conn *websocket.Conn, collect func(ctx context.Context) (any, error)) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Drain incoming frames so close and ping frames are processed; any
	// read error means the consumer is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(Greeting)); err != nil {
		return
	}

	ticker := time.NewTicker(p.cfg.PublishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := collect(ctx)
			if err != nil {
				slog.Warn("stream snapshot failed", "error", err)
				p.closeWith(conn, websocket.CloseInternalServerErr, "snapshot unavailable")
				return
			}

			// A consumer that cannot drain a frame within the write
			// timeout is treated as gone.
			_ = conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	}
}

func (p *Publisher) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// acquire reserves a connection slot, failing when the cap is reached.
func (p *Publisher) acquire() bool {
	for {
		n := p.active.Load()
		if n >= int64(p.cfg.MaxConnections) {
			return false
		}
		if p.active.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (p *Publisher) release() {
	p.active.Add(-1)
}
