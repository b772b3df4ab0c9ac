package syncer

import (
	"os"
	"runtime"
)

var hostname = os.Hostname

// DeviceID identifies this machine as hostname-os-arch. It is informational
// only: identical clones produce the same id.
func DeviceID() string {
	host, err := hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + runtime.GOOS + "-" + runtime.GOARCH
}
