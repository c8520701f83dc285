//go:build linux

package snapshot

import (
	"fmt"
	"os/exec"
)

// collectWireless shells out to iw and iwlist, the same tools the desktop
// network applets read.
func collectWireless() (Wireless, error) {
	dev, err := exec.Command("iw", "dev").Output()
	if err != nil {
		return Wireless{}, fmt.Errorf("iw dev: %w", err)
	}
	iface := parseIwDevInterface(string(dev))

	scan, err := exec.Command("iwlist", iface, "scan").Output()
	if err != nil {
		return Wireless{}, fmt.Errorf("iwlist %s scan: %w", iface, err)
	}
	return parseIwlistScan(string(scan)), nil
}
