// Package worker provides the session registry that pairs authenticated
// HTTP requests with streaming websocket connections.
//
// A worker is created by POST /worker, then claimed exactly once by the
// websocket connection that presents its identifier and subject. Unclaimed
// workers are destroyed by a periodic sweep after a grace period; claimed
// workers live until their connection ends.
package worker

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hostpulse/hostpulse/pkg/observe"
)

// Claim errors. All lookup failures are reported to the caller; none of
// them indicate a registry fault.
var (
	// ErrNotFound means the identifier was never issued or has already
	// been swept or released.
	ErrNotFound = errors.New("worker not found")

	// ErrAlreadyClaimed means another connection won the claim race.
	ErrAlreadyClaimed = errors.New("worker already claimed")

	// ErrSubjectMismatch means the presented subject does not match the
	// subject the worker was created for.
	ErrSubjectMismatch = errors.New("worker subject mismatch")
)

// Conn is the connection a claimed worker owns. The registry closes it on
// shutdown; the streaming publisher closes it on write failure.
type Conn interface {
	Close() error
}

// Worker is one pending or active monitoring session.
type Worker struct {
	// ID is the opaque session identifier, 256 bits of crypto-random
	// data in base64url form.
	ID string

	// Subject is the authenticated principal that created the worker.
	Subject string

	// CreatedAt is when the worker was created.
	CreatedAt time.Time

	claimed bool
	conn    Conn
}

// Registry is the process-wide table of workers. All mutating operations
// take the registry mutex, which makes claim and sweep on the same
// identifier mutually exclusive.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*Worker

	grace time.Duration
	now   func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry creates a registry whose sweeper destroys unclaimed workers
// older than grace.
func NewRegistry(grace time.Duration) *Registry {
	return &Registry{
		workers: make(map[string]*Worker),
		grace:   grace,
		now:     time.Now,
	}
}

// Create inserts an unclaimed worker for subject and returns its
// identifier. A generated identifier colliding with a live record means
// the generator is broken; Create refuses to overwrite and reports it.
func (r *Registry) Create(subject string) (string, error) {
	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("generating worker id: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[id]; exists {
		return "", fmt.Errorf("worker id collision on %q", id)
	}

	r.workers[id] = &Worker{
		ID:        id,
		Subject:   subject,
		CreatedAt: r.now(),
	}

	observe.WorkersCreated.Inc()
	return id, nil
}

// Claim atomically binds conn to the worker. At most one caller ever
// succeeds for a given identifier; every later call fails with
// ErrAlreadyClaimed regardless of subject. A subject mismatch never marks
// the record claimed.
func (r *Registry) Claim(id, subject string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		observe.ClaimFailures.WithLabelValues("not_found").Inc()
		return ErrNotFound
	}
	if w.claimed {
		observe.ClaimFailures.WithLabelValues("already_claimed").Inc()
		return ErrAlreadyClaimed
	}
	if w.Subject != subject {
		observe.ClaimFailures.WithLabelValues("subject_mismatch").Inc()
		return ErrSubjectMismatch
	}

	w.claimed = true
	w.conn = conn

	observe.WorkersClaimed.Inc()
	return nil
}

// Release destroys the worker. It is called when a claimed connection
// ends and is a no-op for identifiers already gone.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workers[id]; !ok {
		return
	}
	delete(r.workers, id)
	observe.WorkersReleased.Inc()
}

// Sweep destroys every unclaimed worker created before now minus the
// grace period and returns how many were destroyed. Claimed workers are
// never swept, regardless of age.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.grace)
	swept := 0
	for id, w := range r.workers {
		if w.claimed || w.CreatedAt.After(cutoff) {
			continue
		}
		delete(r.workers, id)
		swept++
	}

	if swept > 0 {
		observe.WorkersSwept.Add(float64(swept))
		slog.Debug("worker registry: swept unclaimed workers", "count", swept)
	}
	return swept
}

// Len returns the number of live workers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Start launches the background sweeper. It is stopped by Close.
func (r *Registry) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep(r.now())
			}
		}
	}()
}

// Close stops the sweeper and destroys all remaining workers, closing any
// bound connections. Safe to call when Start was never called.
func (r *Registry) Close() error {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, w := range r.workers {
		if w.conn != nil {
			_ = w.conn.Close()
		}
		delete(r.workers, id)
	}
	return nil
}

// newID returns 32 bytes of crypto-random data in base64url form,
// matching the collision resistance of a 256-bit random token.
func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
