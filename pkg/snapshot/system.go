package snapshot

import (
	"fmt"
	"os/user"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/shirou/gopsutil/v4/sensors"
)

const topProcesses = 10

func toGB(b uint64) float64 {
	return round2(float64(b) / (1024 * 1024 * 1024))
}

func toMB(b uint64) float64 {
	return float64(b) / (1024 * 1024)
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func collectCPU() (CPU, error) {
	usage, err := cpu.Percent(0, false)
	if err != nil {
		return CPU{}, fmt.Errorf("cpu usage: %w", err)
	}

	out := CPU{}
	if len(usage) > 0 {
		out.Usage = round2(usage[0])
	}

	if info, err := cpu.Info(); err == nil && len(info) > 0 {
		out.Freq = round2(info[0].Mhz)
	}

	// Temperature is best effort. Prefer the coretemp package sensor,
	// fall back to the first sensor that reports anything.
	if temps, err := sensors.SensorsTemperatures(); err == nil {
		for _, t := range temps {
			if strings.Contains(t.SensorKey, "coretemp") && t.Temperature > 0 {
				out.Temp = round2(t.Temperature)
				return out, nil
			}
		}
		for _, t := range temps {
			if t.Temperature > 0 {
				out.Temp = round2(t.Temperature)
				break
			}
		}
	}
	return out, nil
}

func collectMemory() (Usage, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Usage{}, fmt.Errorf("virtual memory: %w", err)
	}
	return Usage{
		Total:   toGB(vm.Total),
		Used:    toGB(vm.Used),
		Free:    toGB(vm.Free),
		Percent: vm.UsedPercent,
	}, nil
}

func collectDisk() (Usage, error) {
	du, err := disk.Usage("/")
	if err != nil {
		return Usage{}, fmt.Errorf("disk usage: %w", err)
	}
	return Usage{
		Total:   toGB(du.Total),
		Used:    toGB(du.Used),
		Free:    toGB(du.Free),
		Percent: du.UsedPercent,
	}, nil
}

// collectProcesses returns the top processes by resident memory,
// aggregated by process name.
func collectProcesses() ([]Process, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	type group struct {
		pid   int32
		mem   float64
		users map[string]bool
	}
	groups := make(map[string]*group)

	for _, p := range procs {
		// Processes can exit or deny access mid-iteration; skip them.
		mi, err := p.MemoryInfo()
		if err != nil || mi == nil {
			continue
		}
		name, err := p.Name()
		if err != nil || name == "" {
			name = "unknown"
		}

		g, ok := groups[name]
		if !ok {
			g = &group{pid: p.Pid, users: make(map[string]bool)}
			groups[name] = g
		}
		g.mem += toMB(mi.RSS)
		if username, err := p.Username(); err == nil && username != "" {
			g.users[username] = true
		}
	}

	out := make([]Process, 0, len(groups))
	for name, g := range groups {
		users := make([]string, 0, len(g.users))
		for u := range g.users {
			users = append(users, u)
		}
		sort.Strings(users)

		out = append(out, Process{
			PID:      g.pid,
			Name:     name,
			Username: strings.Join(users, ", "),
			Mem:      round2(g.mem),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Mem > out[j].Mem })
	if len(out) > topProcesses {
		out = out[:topProcesses]
	}
	return out, nil
}

func collectPlatform() (Platform, error) {
	info, err := host.Info()
	if err != nil {
		return Platform{}, fmt.Errorf("host info: %w", err)
	}

	distro := info.Platform
	if info.PlatformVersion != "" {
		distro += " " + info.PlatformVersion
	}

	return Platform{
		Distro: distro,
		Kernel: info.KernelVersion,
		Uptime: formatUptime(info.Uptime),
	}, nil
}

// collectUser reports the first logged-in user, falling back to the
// process owner on headless hosts.
func collectUser() (string, error) {
	if sessions, err := host.Users(); err == nil && len(sessions) > 0 {
		return sessions[0].User, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("current user: %w", err)
	}
	return u.Username, nil
}

// formatUptime renders whole seconds as "N days, N hrs, N mins, N secs",
// omitting zero-valued leading units.
func formatUptime(seconds uint64) string {
	days := seconds / 86400
	hours := seconds % 86400 / 3600
	minutes := seconds % 3600 / 60
	secs := seconds % 60

	var parts []string
	add := func(n uint64, singular, plural string) {
		switch {
		case n == 1:
			parts = append(parts, fmt.Sprintf("1 %s", singular))
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %s", n, plural))
		}
	}
	add(days, "day", "days")
	add(hours, "hr", "hrs")
	add(minutes, "min", "mins")
	add(secs, "sec", "secs")

	if len(parts) == 0 {
		return "0 secs"
	}
	return strings.Join(parts, ", ")
}
