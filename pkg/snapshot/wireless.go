package snapshot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// iwlist scan output, one line per matched field within a cell.
var (
	iwlistESSID   = regexp.MustCompile(`ESSID:"(.*)"`)
	iwlistQuality = regexp.MustCompile(`Quality=(\d+)/(\d+)`)
	iwlistSignal  = regexp.MustCompile(`Signal level=(-?\d+ dBm)`)
	iwlistChannel = regexp.MustCompile(`Channel:(\d+)`)
	iwlistAddress = regexp.MustCompile(`Address: ([0-9A-Fa-f:]+)`)
	iwlistEncKey  = regexp.MustCompile(`Encryption key:(on|off)`)
	iwlistWPA     = regexp.MustCompile(`IE: .*WPA Version (\d+)`)
	iwlistWPA2    = regexp.MustCompile(`IE: IEEE 802\.11i/WPA2`)
)

// parseIwlistScan extracts the first cell of `iwlist <iface> scan` output.
func parseIwlistScan(out string) Wireless {
	// Only the first cell matters: the scan lists the strongest network
	// first, which on a connected host is the associated one.
	if idx := strings.Index(out, "Cell 02"); idx >= 0 {
		out = out[:idx]
	}

	var w Wireless
	if m := iwlistESSID.FindStringSubmatch(out); m != nil {
		w.Name = m[1]
	}
	if m := iwlistQuality.FindStringSubmatch(out); m != nil {
		num, _ := strconv.ParseFloat(m[1], 64)
		den, _ := strconv.ParseFloat(m[2], 64)
		if den > 0 {
			w.Quality = fmt.Sprintf("%d", int(num/den*100+0.5))
		}
	}
	if m := iwlistSignal.FindStringSubmatch(out); m != nil {
		w.Signal = m[1]
	}
	if m := iwlistChannel.FindStringSubmatch(out); m != nil {
		w.Channel = m[1]
	}
	if m := iwlistAddress.FindStringSubmatch(out); m != nil {
		w.Address = m[1]
	}

	switch {
	case iwlistWPA2.MatchString(out):
		w.Encryption = "WPA v.2"
	case iwlistWPA.MatchString(out):
		m := iwlistWPA.FindStringSubmatch(out)
		w.Encryption = "WPA v." + m[1]
	default:
		if m := iwlistEncKey.FindStringSubmatch(out); m != nil && m[1] == "off" {
			w.Encryption = "Open"
		} else if m != nil {
			w.Encryption = "WEP"
		}
	}
	return w
}

// netsh "wlan show interfaces" output, key : value per line.
var netshFields = map[string]*regexp.Regexp{
	"name":       regexp.MustCompile(`(?m)^\s*SSID\s*:\s*(.+)$`),
	"quality":    regexp.MustCompile(`(?m)^\s*Signal\s*:\s*(\d+)%$`),
	"channel":    regexp.MustCompile(`(?m)^\s*Channel\s*:\s*(\d+)$`),
	"encryption": regexp.MustCompile(`(?m)^\s*Authentication\s*:\s*(.+)$`),
	"address":    regexp.MustCompile(`(?m)^\s*BSSID\s*:\s*(.+)$`),
}

// parseNetshInterfaces extracts the connected network from
// `netsh wlan show interfaces` output.
func parseNetshInterfaces(out string) Wireless {
	get := func(key string) string {
		if m := netshFields[key].FindStringSubmatch(out); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}
	quality := get("quality")
	return Wireless{
		Name:       get("name"),
		Quality:    quality,
		Channel:    get("channel"),
		Encryption: get("encryption"),
		Address:    get("address"),
		Signal:     quality,
	}
}

// parseIwDevInterface extracts the wireless interface name from `iw dev`
// output, defaulting to wlan0.
func parseIwDevInterface(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "Interface "); ok {
			return strings.TrimSpace(name)
		}
	}
	return "wlan0"
}
