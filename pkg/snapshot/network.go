package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/net"
)

func collectInterfaces() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}
	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		names = append(names, iface.Name)
	}
	return names, nil
}

func collectStatistics() (map[string]NICStats, error) {
	counters, err := net.IOCounters(true)
	if err != nil {
		return nil, fmt.Errorf("io counters: %w", err)
	}
	stats := make(map[string]NICStats, len(counters))
	for _, c := range counters {
		stats[c.Name] = NICStats{
			MBSent:          toMB(c.BytesSent),
			MBReceived:      toMB(c.BytesRecv),
			PacketsSent:     c.PacketsSent,
			PacketsReceived: c.PacketsRecv,
			ErrorIn:         c.Errin,
			ErrorOut:        c.Errout,
			Dropout:         c.Dropout,
		}
	}
	return stats, nil
}

// collectAverages measures per-interface throughput by sampling the
// counters twice, interval apart. It is the one collector that takes real
// time, so it honors ctx between samples.
func collectAverages(ctx context.Context, interval time.Duration) (map[string]Average, error) {
	before, err := perNICCounters()
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(interval):
	}

	after, err := perNICCounters()
	if err != nil {
		return nil, err
	}

	secs := interval.Seconds()
	averages := make(map[string]Average, len(after))
	for name, a := range after {
		b, ok := before[name]
		if !ok {
			continue
		}
		averages[name] = Average{
			Interface: name,
			In:        round3(toMB(a.BytesRecv-b.BytesRecv) / secs),
			Out:       round3(toMB(a.BytesSent-b.BytesSent) / secs),
		}
	}
	return averages, nil
}

func perNICCounters() (map[string]net.IOCountersStat, error) {
	counters, err := net.IOCounters(true)
	if err != nil {
		return nil, fmt.Errorf("io counters: %w", err)
	}
	byName := make(map[string]net.IOCountersStat, len(counters))
	for _, c := range counters {
		byName[c.Name] = c
	}
	return byName, nil
}

func round3(f float64) float64 {
	return float64(int64(f*1000+0.5)) / 1000
}
