//go:build windows

package snapshot

import (
	"fmt"
	"os/exec"
)

func collectWireless() (Wireless, error) {
	out, err := exec.Command("netsh", "wlan", "show", "interfaces").Output()
	if err != nil {
		return Wireless{}, fmt.Errorf("netsh wlan show interfaces: %w", err)
	}
	return parseNetshInterfaces(string(out)), nil
}
