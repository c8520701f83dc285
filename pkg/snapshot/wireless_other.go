//go:build !linux && !windows

package snapshot

import "errors"

func collectWireless() (Wireless, error) {
	return Wireless{}, errors.New("wireless details not supported on this platform")
}
