// Package config loads node and gateway settings from an optional file
// and TANK_ environment variables on top of built-in defaults.
package config

import (
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/viper"

	"github.com/sweeney/tank-sensor/internal/protocol"
)

// EnvPrefix prefixes every environment override, e.g. TANK_RADIO_LISTEN.
const EnvPrefix = "TANK"

// RadioConfig is the link layer shared by nodes and gateways.
type RadioConfig struct {
	Listen     string            `mapstructure:"listen"`   // UDP bind address
	Upstream   string            `mapstructure:"upstream"` // device id frames are sent to
	Peers      map[string]string `mapstructure:"peers"`    // device id -> host:port
	Retries    int               `mapstructure:"retries"`
	RetryDelay time.Duration     `mapstructure:"retry_delay"`
}

// Validate checks the radio settings. upstreamRequired is false for a
// primary gateway, which only receives.
func (r RadioConfig) Validate(upstreamRequired bool) error {
	if r.Listen == "" {
		return errors.NotValidf("radio.listen empty")
	}
	if r.Retries < 1 {
		return errors.NotValidf("radio.retries %d", r.Retries)
	}
	if upstreamRequired || r.Upstream != "" {
		if _, err := protocol.ParseDeviceID(r.Upstream); err != nil {
			return errors.Annotate(err, "radio.upstream")
		}
	}
	for id := range r.Peers {
		if _, err := protocol.ParseDeviceID(id); err != nil {
			return errors.Annotatef(err, "radio.peers %q", id)
		}
	}
	return nil
}

// newViper prepares an instance with env overrides and reads path, if
// given. File format follows the extension (hcl, yaml, json, toml).
func newViper(path string, defaults func(v *viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "read config %s", path)
		}
	}
	return v, nil
}

func setRadioDefaults(v *viper.Viper) {
	v.SetDefault("radio.listen", ":4210")
	v.SetDefault("radio.upstream", "")
	v.SetDefault("radio.retries", 3)
	v.SetDefault("radio.retry_delay", "500ms")
}

func validateID(id string) error {
	if id == "" {
		return nil
	}
	if _, err := protocol.ParseDeviceID(id); err != nil {
		return errors.Annotate(err, "id")
	}
	return nil
}

// DeviceID returns the configured id, or zero when unset.
func DeviceID(s string) protocol.DeviceID {
	id, err := protocol.ParseDeviceID(s)
	if err != nil {
		return protocol.DeviceID{}
	}
	return id
}
