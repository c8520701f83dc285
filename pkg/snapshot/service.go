package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/hostpulse/hostpulse/pkg/observe"
	"github.com/hostpulse/hostpulse/pkg/pool"
)

// Providers are the per-domain collectors the Service runs. The zero
// value is unusable; DefaultProviders returns the real ones and tests
// substitute their own.
type Providers struct {
	CPU        func() (CPU, error)
	Memory     func() (Usage, error)
	Disk       func() (Usage, error)
	Processes  func() ([]Process, error)
	Platform   func() (Platform, error)
	User       func() (string, error)
	Interfaces func() ([]string, error)
	Wireless   func() (Wireless, error)
	Statistics func() (map[string]NICStats, error)
	Averages   func(ctx context.Context, interval time.Duration) (map[string]Average, error)
}

// DefaultProviders returns the collectors backed by the host.
func DefaultProviders() Providers {
	return Providers{
		CPU:        collectCPU,
		Memory:     collectMemory,
		Disk:       collectDisk,
		Processes:  collectProcesses,
		Platform:   collectPlatform,
		User:       collectUser,
		Interfaces: collectInterfaces,
		Wireless:   collectWireless,
		Statistics: collectStatistics,
		Averages:   collectAverages,
	}
}

// Service assembles snapshots, running every collector on the offload
// pool so blocking system calls never run on a request goroutine.
type Service struct {
	pool      *pool.Pool
	providers Providers
}

// NewService creates a Service collecting through p.
func NewService(p *pool.Pool, providers Providers) *Service {
	return &Service{pool: p, providers: providers}
}

// domain runs one collector on the pool and returns its future. A pool
// submission failure is an overload condition and fails the snapshot as a
// whole; a collector failure later degrades only its own domain.
func (s *Service) domain(collect func() (any, error)) (<-chan pool.Result, error) {
	return s.pool.Submit(collect)
}

// await resolves one domain future. On collector failure it records the
// domain in errs and returns false.
func await(ctx context.Context, name string, out <-chan pool.Result, errs map[string]string) (any, bool) {
	select {
	case <-ctx.Done():
		errs[name] = ctx.Err().Error()
		return nil, false
	case res := <-out:
		if res.Err != nil {
			observe.ProviderFailures.WithLabelValues(name).Inc()
			slog.Warn("snapshot collector failed", "domain", name, "error", res.Err)
			errs[name] = res.Err.Error()
			return nil, false
		}
		return res.Value, true
	}
}

// System collects a full system snapshot. Domains that fail are zero in
// the result and listed in its Errors map.
func (s *Service) System(ctx context.Context) (System, error) {
	type future struct {
		name string
		out  <-chan pool.Result
	}

	futures := make([]future, 0, 6)
	submit := func(name string, collect func() (any, error)) error {
		out, err := s.domain(collect)
		if err != nil {
			return err
		}
		futures = append(futures, future{name: name, out: out})
		return nil
	}

	p := s.providers
	steps := []struct {
		name    string
		collect func() (any, error)
	}{
		{"cpu", func() (any, error) { return p.CPU() }},
		{"mem", func() (any, error) { return p.Memory() }},
		{"disk", func() (any, error) { return p.Disk() }},
		{"processes", func() (any, error) { return p.Processes() }},
		{"platform", func() (any, error) { return p.Platform() }},
		{"user", func() (any, error) { return p.User() }},
	}
	for _, step := range steps {
		if err := submit(step.name, step.collect); err != nil {
			return System{}, err
		}
	}

	snap := System{Processes: []Process{}}
	errs := make(map[string]string)
	for _, f := range futures {
		v, ok := await(ctx, f.name, f.out, errs)
		if !ok {
			continue
		}
		switch f.name {
		case "cpu":
			snap.CPU = v.(CPU)
		case "mem":
			snap.Mem = v.(Usage)
		case "disk":
			snap.Disk = v.(Usage)
		case "processes":
			snap.Processes = v.([]Process)
		case "platform":
			snap.Platform = v.(Platform)
		case "user":
			snap.User = v.(string)
		}
	}
	if len(errs) > 0 {
		snap.Errors = errs
	}
	return snap, nil
}

// Network collects a full network snapshot. When withAverages is set it
// additionally measures per-interface throughput over interval, which
// delays the response by that long.
func (s *Service) Network(ctx context.Context, withAverages bool, interval time.Duration) (Network, error) {
	p := s.providers

	ifacesOut, err := s.domain(func() (any, error) { return p.Interfaces() })
	if err != nil {
		return Network{}, err
	}
	wirelessOut, err := s.domain(func() (any, error) { return p.Wireless() })
	if err != nil {
		return Network{}, err
	}
	statsOut, err := s.domain(func() (any, error) { return p.Statistics() })
	if err != nil {
		return Network{}, err
	}

	var averagesOut <-chan pool.Result
	if withAverages {
		averagesOut, err = s.domain(func() (any, error) {
			return p.Averages(ctx, interval)
		})
		if err != nil {
			return Network{}, err
		}
	}

	snap := Network{
		Interfaces: []string{},
		Statistics: map[string]NICStats{},
	}
	errs := make(map[string]string)

	if v, ok := await(ctx, "interfaces", ifacesOut, errs); ok {
		snap.Interfaces = v.([]string)
	}
	if v, ok := await(ctx, "wireless", wirelessOut, errs); ok {
		snap.Wireless = v.(Wireless)
	}
	if v, ok := await(ctx, "statistics", statsOut, errs); ok {
		snap.Statistics = v.(map[string]NICStats)
	}
	if averagesOut != nil {
		if v, ok := await(ctx, "averages", averagesOut, errs); ok {
			snap.Averages = v.(map[string]Average)
		}
	}

	if len(errs) > 0 {
		snap.Errors = errs
	}
	return snap, nil
}
