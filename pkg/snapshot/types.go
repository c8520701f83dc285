// Package snapshot collects point-in-time system and network metrics in
// the wire shape the HTTP and streaming endpoints serve. Collection runs
// on the offload pool; a failing metric domain degrades to its zero value
// with an entry in the snapshot's Errors map instead of failing the whole
// snapshot.
package snapshot

// CPU is processor usage at the moment of collection.
type CPU struct {
	// Usage is the total CPU utilisation percentage.
	Usage float64 `json:"usage"`

	// Temp is the package temperature in degrees Celsius, zero when no
	// sensor is readable.
	Temp float64 `json:"temp"`

	// Freq is the current frequency in MHz.
	Freq float64 `json:"freq"`
}

// Usage is a capacity gauge for memory or disk, sizes in GB rounded to
// two decimal places.
type Usage struct {
	Total   float64 `json:"total"`
	Used    float64 `json:"used"`
	Free    float64 `json:"free"`
	Percent float64 `json:"percent"`
}

// Platform identifies the host operating system.
type Platform struct {
	Distro string `json:"distro"`
	Kernel string `json:"kernel"`

	// Uptime is human readable, e.g. "3 days, 4 hrs, 12 mins, 9 secs".
	Uptime string `json:"uptime"`
}

// Process is one aggregated process entry. Processes sharing a name are
// combined: Mem is their summed resident size in MB, PID is the first
// member's pid and Username joins the distinct owners.
type Process struct {
	PID      int32   `json:"pid"`
	Name     string  `json:"name"`
	Username string  `json:"username"`
	Mem      float64 `json:"mem"`
}

// System is the full system snapshot.
type System struct {
	CPU       CPU       `json:"cpu"`
	Mem       Usage     `json:"mem"`
	Disk      Usage     `json:"disk"`
	User      string    `json:"user"`
	Platform  Platform  `json:"platform"`
	Processes []Process `json:"processes"`

	// Errors maps each failed metric domain to its failure message. It
	// is absent when every domain collected cleanly.
	Errors map[string]string `json:"errors,omitempty"`
}

// NICStats is cumulative traffic for one interface, byte counts in MB.
type NICStats struct {
	MBSent          float64 `json:"mb_sent"`
	MBReceived      float64 `json:"mb_received"`
	PacketsSent     uint64  `json:"pk_sent"`
	PacketsReceived uint64  `json:"pk_received"`
	ErrorIn         uint64  `json:"error_in"`
	ErrorOut        uint64  `json:"error_out"`
	Dropout         uint64  `json:"dropout"`
}

// Wireless describes the connected wireless network. All fields are the
// raw strings reported by the platform tool.
type Wireless struct {
	Name       string `json:"name"`
	Quality    string `json:"quality"`
	Channel    string `json:"channel"`
	Encryption string `json:"encryption"`
	Address    string `json:"address"`
	Signal     string `json:"signal"`
}

// Average is measured throughput for one interface in MB per second.
type Average struct {
	Interface string  `json:"interface"`
	In        float64 `json:"in"`
	Out       float64 `json:"out"`
}

// Network is the full network snapshot. Averages is present only when the
// caller asked for throughput measurement.
type Network struct {
	Interfaces []string            `json:"interfaces"`
	Wireless   Wireless            `json:"wireless"`
	Statistics map[string]NICStats `json:"statistics"`
	Averages   map[string]Average  `json:"averages,omitempty"`

	Errors map[string]string `json:"errors,omitempty"`
}
