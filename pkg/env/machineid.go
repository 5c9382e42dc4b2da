package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves the unique ID identifying the machine, hashed with
// the reader type so it doesn't leak the raw ID. It falls back to the
// host name.
func MachineID() string {
	id, err := machineid.ProtectedID("wavepass")
	if err == nil {
		return id[:16]
	}
	glog.Warningf("machine id: %v", err)
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}
