package config

import (
	"time"

	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

// Health attachment policies.
const (
	HealthNever     = "never"
	HealthHeartbeat = "heartbeat"
	HealthAlways    = "always"
)

// NodeConfig configures cmd/tank-node.
type NodeConfig struct {
	ID       string `mapstructure:"id"` // empty: first hardware address of the host
	LogLevel string `mapstructure:"log_level"`

	Sensor   SensorConfig   `mapstructure:"sensor"`
	Detector DetectorConfig `mapstructure:"detector"`
	Supply   SupplyConfig   `mapstructure:"supply"`
	Radio    RadioConfig    `mapstructure:"radio"`

	Interval    time.Duration `mapstructure:"sample_interval"`
	Form        string        `mapstructure:"form"`   // binary or text
	Health      string        `mapstructure:"health"` // never, heartbeat or always
	Aggregate   bool          `mapstructure:"aggregate"`
	ThermalZone string        `mapstructure:"thermal_zone"`
}

// SensorConfig is the rangefinder and its filter.
type SensorConfig struct {
	PinTrigger  int           `mapstructure:"pin_trigger"`
	PinEcho     int           `mapstructure:"pin_echo"`
	Samples     int           `mapstructure:"samples"`
	Settle      time.Duration `mapstructure:"settle"`
	EchoTimeout time.Duration `mapstructure:"echo_timeout"`
	MinMM       int32         `mapstructure:"min_mm"`
	MaxMM       int32         `mapstructure:"max_mm"`
	Alpha       float64       `mapstructure:"alpha"`
}

// DetectorConfig is the change detector.
type DetectorConfig struct {
	Deadband       int32         `mapstructure:"deadband_mm"`
	Hysteresis     int32         `mapstructure:"hysteresis_mm"`
	SupplyDeadband int32         `mapstructure:"supply_deadband_mv"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
}

// SupplyConfig is the supply voltage source.
type SupplyConfig struct {
	Path         string  `mapstructure:"path"`  // sysfs value, empty for FixedMV
	Scale        float64 `mapstructure:"scale"` // raw value to mV
	FixedMV      int     `mapstructure:"fixed_mv"`
	LowBatteryMV int     `mapstructure:"low_battery_mv"`
}

func setNodeDefaults(v *viper.Viper) {
	setRadioDefaults(v)
	v.SetDefault("id", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("sensor.pin_trigger", 23)
	v.SetDefault("sensor.pin_echo", 24)
	v.SetDefault("sensor.samples", 11)
	v.SetDefault("sensor.settle", "100ms")
	v.SetDefault("sensor.echo_timeout", "60ms")
	v.SetDefault("sensor.min_mm", 20)
	v.SetDefault("sensor.max_mm", 4500)
	v.SetDefault("sensor.alpha", 0.3)

	v.SetDefault("detector.deadband_mm", 15)
	v.SetDefault("detector.hysteresis_mm", 3)
	v.SetDefault("detector.supply_deadband_mv", 100)
	v.SetDefault("detector.heartbeat", "30s")

	v.SetDefault("supply.path", "")
	v.SetDefault("supply.scale", 1.0)
	v.SetDefault("supply.fixed_mv", 5000)
	v.SetDefault("supply.low_battery_mv", 3300)

	v.SetDefault("radio.upstream", "FF:FF:FF:FF:FF:FF")

	v.SetDefault("sample_interval", "5s")
	v.SetDefault("form", "binary")
	v.SetDefault("health", HealthHeartbeat)
	v.SetDefault("aggregate", true)
	v.SetDefault("thermal_zone", "/sys/class/thermal/thermal_zone0/temp")
}

// LoadNode reads node configuration. path may be empty.
func LoadNode(path string) (*NodeConfig, error) {
	v, err := newViper(path, setNodeDefaults)
	if err != nil {
		return nil, err
	}
	var cfg NodeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Annotate(err, "unmarshal node config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotate(err, "node config")
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *NodeConfig) Validate() error {
	if err := validateID(c.ID); err != nil {
		return err
	}
	s := c.Sensor
	if s.Samples < 1 || s.Samples%2 == 0 {
		return errors.NotValidf("sensor.samples %d (must be odd)", s.Samples)
	}
	if s.MinMM < 0 || s.MaxMM <= s.MinMM {
		return errors.NotValidf("sensor window %d..%d", s.MinMM, s.MaxMM)
	}
	if s.MaxMM > 32767 {
		return errors.NotValidf("sensor.max_mm %d exceeds wire range", s.MaxMM)
	}
	if s.Alpha <= 0 || s.Alpha > 1 {
		return errors.NotValidf("sensor.alpha %v", s.Alpha)
	}
	if s.EchoTimeout <= 0 {
		return errors.NotValidf("sensor.echo_timeout %v", s.EchoTimeout)
	}
	d := c.Detector
	if d.Deadband < 0 || d.Hysteresis < 0 || d.SupplyDeadband < 0 {
		return errors.NotValidf("negative detector threshold")
	}
	if d.Heartbeat < 0 {
		return errors.NotValidf("detector.heartbeat %v", d.Heartbeat)
	}
	if c.Interval <= 0 {
		return errors.NotValidf("sample_interval %v", c.Interval)
	}
	if _, err := protocol.ParseForm(c.Form); err != nil {
		return errors.Annotate(err, "form")
	}
	switch c.Health {
	case HealthNever, HealthHeartbeat, HealthAlways:
	default:
		return errors.NotValidf("health %q", c.Health)
	}
	if c.Supply.Path == "" && (c.Supply.FixedMV < 0 || c.Supply.FixedMV > 65535) {
		return errors.NotValidf("supply.fixed_mv %d", c.Supply.FixedMV)
	}
	return c.Radio.Validate(true)
}
