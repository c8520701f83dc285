// Package health provides liveness and readiness handlers for the
// monitoring server.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
)

// State constants for the readiness state machine.
const (
	stateStarting int32 = iota
	stateReady
	stateDraining
)

// Probe reports whether one dependency is usable. A nil error means
// healthy.
type Probe func() error

// Checker tracks readiness and runs dependency probes.
// It is safe for concurrent use.
type Checker struct {
	state atomic.Int32

	mu     sync.RWMutex
	probes map[string]Probe
}

// NewChecker creates a Checker in the Starting state.
func NewChecker() *Checker {
	return &Checker{probes: make(map[string]Probe)}
}

// Register adds a named dependency probe evaluated on every readiness
// request.
func (c *Checker) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// SetReady transitions to the Ready state.
func (c *Checker) SetReady() {
	c.state.Store(stateReady)
}

// SetDraining transitions to the Draining state.
func (c *Checker) SetDraining() {
	c.state.Store(stateDraining)
}

// State returns the current state as a human-readable string.
func (c *Checker) State() string {
	switch c.state.Load() {
	case stateReady:
		return "ready"
	case stateDraining:
		return "draining"
	default:
		return "starting"
	}
}

// response is the JSON body returned by the health endpoints.
type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler always responds 200 OK while the process is serving.
func (*Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, response{Status: "ok"})
	}
}

// ReadinessHandler responds 200 when the server is ready and every probe
// passes, 503 otherwise with the failing checks listed.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		checks, healthy := c.runProbes()

		if c.state.Load() == stateReady && healthy {
			writeJSON(w, http.StatusOK, response{Status: c.State(), Checks: checks})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, response{Status: c.State(), Checks: checks})
	}
}

func (c *Checker) runProbes() (map[string]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.probes) == 0 {
		return nil, true
	}

	checks := make(map[string]string, len(c.probes))
	healthy := true
	for name, probe := range c.probes {
		if err := probe(); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}
	return checks, healthy
}

func writeJSON(w http.ResponseWriter, code int, v response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
