package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/hostpulse/pkg/auth"
	"github.com/hostpulse/hostpulse/pkg/config"
	"github.com/hostpulse/hostpulse/pkg/pool"
	"github.com/hostpulse/hostpulse/pkg/snapshot"
	"github.com/hostpulse/hostpulse/pkg/worker"
)

const streamTestSubject = "account-1"

var streamTestSecret = []byte("secret-secret-secret-secret-32b!")

type streamFixture struct {
	registry *worker.Registry
	auth     *auth.Service
	server   *httptest.Server
	token    string
}

func newStreamFixture(t *testing.T, maxConnections int) *streamFixture {
	t.Helper()

	registry := worker.NewRegistry(5 * time.Second)
	t.Cleanup(func() { _ = registry.Close() })

	pl := pool.New(4)
	t.Cleanup(pl.Close)

	providers := snapshot.Providers{
		CPU:       func() (snapshot.CPU, error) { return snapshot.CPU{Usage: 7.5}, nil },
		Memory:    func() (snapshot.Usage, error) { return snapshot.Usage{Total: 16}, nil },
		Disk:      func() (snapshot.Usage, error) { return snapshot.Usage{Total: 500}, nil },
		Processes: func() ([]snapshot.Process, error) { return nil, nil },
		Platform:  func() (snapshot.Platform, error) { return snapshot.Platform{Distro: "Debian"}, nil },
		User:      func() (string, error) { return "chris", nil },
		Interfaces: func() ([]string, error) {
			return []string{"eth0"}, nil
		},
		Wireless:   func() (snapshot.Wireless, error) { return snapshot.Wireless{}, nil },
		Statistics: func() (map[string]snapshot.NICStats, error) { return nil, nil },
		Averages: func(ctx context.Context, interval time.Duration) (map[string]snapshot.Average, error) {
			return nil, nil
		},
	}

	authSvc := auth.NewService(nil, streamTestSecret, time.Minute)
	tok, err := authSvc.Issue(streamTestSubject)
	require.NoError(t, err)

	pub := NewPublisher(registry, authSvc, snapshot.NewService(pl, providers), config.StreamConfig{
		PublishInterval: 10 * time.Millisecond,
		WriteTimeout:    time.Second,
		MaxConnections:  maxConnections,
	})

	mux := http.NewServeMux()
	mux.Handle("/connect", pub.System())
	mux.Handle("/connect/network", pub.Network())

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &streamFixture{registry: registry, auth: authSvc, server: server, token: tok.Value}
}

func (f *streamFixture) wsURL(path, id string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + path + "?id=" + id + "&token=" + f.token
}

func TestStreamSystemSnapshots(t *testing.T) {
	f := newStreamFixture(t, 20)

	id, err := f.registry.Create(streamTestSubject)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/connect", id), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Greeting first.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, Greeting, string(msg))

	// Then JSON snapshots.
	var snap snapshot.System
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, 7.5, snap.CPU.Usage)
	assert.Equal(t, "chris", snap.User)

	// The worker is bound for the connection's lifetime.
	assert.Equal(t, 1, f.registry.Len())
}

func TestStreamReleasesWorkerOnDisconnect(t *testing.T) {
	f := newStreamFixture(t, 20)

	id, err := f.registry.Create(streamTestSubject)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/connect", id), nil)
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return f.registry.Len() == 0 },
		2*time.Second, 10*time.Millisecond, "worker must be released when the consumer disconnects")
}

func TestStreamRejectsUnknownWorker(t *testing.T) {
	f := newStreamFixture(t, 20)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/connect", "never-issued"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// The server closes immediately with a policy violation.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestStreamRejectsMissingToken(t *testing.T) {
	f := newStreamFixture(t, 20)

	id, err := f.registry.Create(streamTestSubject)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/connect?id=" + id
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamRejectsWrongSubject(t *testing.T) {
	f := newStreamFixture(t, 20)

	// Worker created for a different account than the token subject.
	id, err := f.registry.Create("someone-else")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/connect", id), nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestStreamCapacityLimit(t *testing.T) {
	f := newStreamFixture(t, 1)

	id, err := f.registry.Create(streamTestSubject)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/connect", id), nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	// Second connection is refused before the upgrade.
	id2, err := f.registry.Create(streamTestSubject)
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL("/connect", id2), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStreamNetworkSnapshots(t *testing.T) {
	f := newStreamFixture(t, 20)

	id, err := f.registry.Create(streamTestSubject)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL("/connect/network", id), nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, Greeting, string(msg))

	var snap snapshot.Network
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, []string{"eth0"}, snap.Interfaces)
}
