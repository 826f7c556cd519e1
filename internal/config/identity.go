package config

import (
	"net"

	"github.com/juju/errors"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

// ResolveID returns the configured device id or, when empty, the host's
// first non-loopback hardware address.
func ResolveID(configured string) (protocol.DeviceID, error) {
	if configured != "" {
		return protocol.ParseDeviceID(configured)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return protocol.DeviceID{}, errors.Annotate(err, "list interfaces")
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) != len(protocol.DeviceID{}) {
			continue
		}
		var id protocol.DeviceID
		copy(id[:], ifc.HardwareAddr)
		return id, nil
	}
	return protocol.DeviceID{}, errors.NotFoundf("hardware address (set id)")
}
