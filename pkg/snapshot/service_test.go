package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/hostpulse/pkg/pool"
)

func healthyProviders() Providers {
	return Providers{
		CPU:       func() (CPU, error) { return CPU{Usage: 12.5, Temp: 48, Freq: 2400}, nil },
		Memory:    func() (Usage, error) { return Usage{Total: 16, Used: 8, Free: 8, Percent: 50}, nil },
		Disk:      func() (Usage, error) { return Usage{Total: 500, Used: 100, Free: 400, Percent: 20}, nil },
		Processes: func() ([]Process, error) { return []Process{{PID: 1, Name: "init", Mem: 4}}, nil },
		Platform: func() (Platform, error) {
			return Platform{Distro: "Debian 12", Kernel: "6.1.0", Uptime: "2 hrs"}, nil
		},
		User:       func() (string, error) { return "chris", nil },
		Interfaces: func() ([]string, error) { return []string{"lo", "eth0", "wlan0"}, nil },
		Wireless:   func() (Wireless, error) { return Wireless{Name: "HomeNet", Quality: "83"}, nil },
		Statistics: func() (map[string]NICStats, error) {
			return map[string]NICStats{"eth0": {MBSent: 10, MBReceived: 20}}, nil
		},
		Averages: func(ctx context.Context, interval time.Duration) (map[string]Average, error) {
			return map[string]Average{"eth0": {Interface: "eth0", In: 0.5, Out: 0.1}}, nil
		},
	}
}

func testSnapshotService(t *testing.T, p Providers) *Service {
	t.Helper()
	pl := pool.New(4)
	t.Cleanup(pl.Close)
	return NewService(pl, p)
}

func TestSystemAllDomainsHealthy(t *testing.T) {
	svc := testSnapshotService(t, healthyProviders())

	snap, err := svc.System(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12.5, snap.CPU.Usage)
	assert.Equal(t, 16.0, snap.Mem.Total)
	assert.Equal(t, 20.0, snap.Disk.Percent)
	assert.Equal(t, "chris", snap.User)
	assert.Equal(t, "Debian 12", snap.Platform.Distro)
	require.Len(t, snap.Processes, 1)
	assert.Empty(t, snap.Errors)
}

func TestSystemDegradesFailedDomain(t *testing.T) {
	p := healthyProviders()
	p.CPU = func() (CPU, error) { return CPU{}, errors.New("no sensors") }
	svc := testSnapshotService(t, p)

	snap, err := svc.System(context.Background())
	require.NoError(t, err)

	// The failed domain is zero-valued and reported; the rest survive.
	assert.Zero(t, snap.CPU)
	assert.Equal(t, map[string]string{"cpu": "no sensors"}, snap.Errors)
	assert.Equal(t, 16.0, snap.Mem.Total)
	assert.Equal(t, "chris", snap.User)
}

func TestSystemDegradesPanickingDomain(t *testing.T) {
	p := healthyProviders()
	p.Disk = func() (Usage, error) { panic("mount table corrupt") }
	svc := testSnapshotService(t, p)

	snap, err := svc.System(context.Background())
	require.NoError(t, err)

	assert.Zero(t, snap.Disk)
	assert.Contains(t, snap.Errors["disk"], "mount table corrupt")
	assert.Equal(t, 12.5, snap.CPU.Usage)
}

func TestNetworkAllDomainsHealthy(t *testing.T) {
	svc := testSnapshotService(t, healthyProviders())

	snap, err := svc.Network(context.Background(), false, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"lo", "eth0", "wlan0"}, snap.Interfaces)
	assert.Equal(t, "HomeNet", snap.Wireless.Name)
	assert.Contains(t, snap.Statistics, "eth0")
	assert.Nil(t, snap.Averages)
	assert.Empty(t, snap.Errors)
}

func TestNetworkWithAverages(t *testing.T) {
	svc := testSnapshotService(t, healthyProviders())

	snap, err := svc.Network(context.Background(), true, time.Second)
	require.NoError(t, err)

	require.Contains(t, snap.Averages, "eth0")
	assert.Equal(t, 0.5, snap.Averages["eth0"].In)
}

func TestNetworkDegradesWirelessFailure(t *testing.T) {
	p := healthyProviders()
	p.Wireless = func() (Wireless, error) { return Wireless{}, errors.New("no wireless interface") }
	svc := testSnapshotService(t, p)

	snap, err := svc.Network(context.Background(), false, 0)
	require.NoError(t, err)

	assert.Zero(t, snap.Wireless)
	assert.Equal(t, "no wireless interface", snap.Errors["wireless"])
	assert.NotEmpty(t, snap.Interfaces)
}

func TestSystemPoolSaturatedFailsWhole(t *testing.T) {
	pl := pool.New(1)
	t.Cleanup(pl.Close)

	// Jam the pool so every later submission overflows the queue.
	block := make(chan struct{})
	defer close(block)
	for {
		_, err := pl.Submit(func() (any, error) { <-block; return nil, nil })
		if errors.Is(err, pool.ErrSaturated) {
			break
		}
		require.NoError(t, err)
	}

	svc := NewService(pl, healthyProviders())
	_, err := svc.System(context.Background())
	assert.ErrorIs(t, err, pool.ErrSaturated)
}
