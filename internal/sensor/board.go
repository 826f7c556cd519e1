package sensor

import (
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// SupplyReader reports the node supply voltage.
type SupplyReader interface {
	Millivolts() (uint16, error)
}

// FixedSupply reports a constant voltage, for mains-powered nodes.
type FixedSupply uint16

// Millivolts returns the configured value.
func (f FixedSupply) Millivolts() (uint16, error) { return uint16(f), nil }

// FileSupply reads a raw ADC value from a sysfs attribute, e.g.
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw, and scales it to mV.
type FileSupply struct {
	Path  string
	Scale float64 // mV per raw unit, including any divider ratio
}

// Millivolts reads and scales the ADC value.
func (f FileSupply) Millivolts() (uint16, error) {
	raw, err := readInt(f.Path)
	if err != nil {
		return 0, err
	}
	mv := float64(raw) * f.Scale
	if mv < 0 || mv > 65535 {
		return 0, errors.NotValidf("supply %.0f mV", mv)
	}
	return uint16(mv), nil
}

// ThermalZone is the usual SoC temperature attribute.
const ThermalZone = "/sys/class/thermal/thermal_zone0/temp"

// BoardTemp reads a millidegree thermal attribute and returns whole °C,
// clamped to the int8 range.
func BoardTemp(path string) (int8, error) {
	milli, err := readInt(path)
	if err != nil {
		return 0, err
	}
	c := milli / 1000
	switch {
	case c > 127:
		c = 127
	case c < -128:
		c = -128
	}
	return int8(c), nil
}

func readInt(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Annotatef(err, "read %s", path)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, errors.Annotatef(err, "parse %s", path)
	}
	return v, nil
}

// MemInfo is the kernel memory summary.
const MemInfo = "/proc/meminfo"

// FreeMemKiB returns MemAvailable from a meminfo file.
func FreeMemKiB(path string) (uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Annotatef(err, "read %s", path)
	}
	for _, line := range strings.Split(string(b), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "MemAvailable:" {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return 0, errors.Annotatef(err, "parse %s", path)
		}
		return uint32(v), nil
	}
	return 0, errors.NotFoundf("MemAvailable in %s", path)
}
