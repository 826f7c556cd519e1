package config

import (
	"time"

	"github.com/juju/errors"
	"github.com/spf13/viper"
)

// Gateway modes.
const (
	ModePrimary  = "primary"
	ModeRepeater = "repeater"
)

// GatewayConfig configures cmd/tank-gateway.
type GatewayConfig struct {
	ID       string `mapstructure:"id"`
	LogLevel string `mapstructure:"log_level"`
	Mode     string `mapstructure:"mode"`
	MaxHops  int    `mapstructure:"max_hops"`
	MaxFrame int    `mapstructure:"max_frame"`

	Radio    RadioConfig    `mapstructure:"radio"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Forward  ForwardConfig  `mapstructure:"forward"`
	Registry RegistryConfig `mapstructure:"registry"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Redis    RedisConfig    `mapstructure:"redis"`

	StatusInterval time.Duration `mapstructure:"status_interval"`
	StatusAddr     string        `mapstructure:"status_addr"` // status web server, empty disables
	Watchdog       time.Duration `mapstructure:"watchdog_timeout"`
}

// QueueConfig sizes the delivery queue.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
	Urgent   int `mapstructure:"urgent"`
	Fallback int `mapstructure:"fallback"`
}

// ForwardConfig is the forwarder retry policy.
type ForwardConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RegistryConfig is the node registry.
type RegistryConfig struct {
	OfflineTimeout time.Duration `mapstructure:"offline_timeout"`
	Sweep          time.Duration `mapstructure:"sweep"`
	MaxNodes       int           `mapstructure:"max_nodes"`
}

// MQTTConfig is the MQTT uplink. Empty Broker disables it.
type MQTTConfig struct {
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Topic       string        `mapstructure:"topic"`
	StatusTopic string        `mapstructure:"status_topic"`
	QoS         int           `mapstructure:"qos"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// HTTPConfig is the HTTP uplink. Empty URL disables it.
type HTTPConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	Recheck time.Duration `mapstructure:"recheck"`
}

// RedisConfig is the Redis stream uplink. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Stream   string        `mapstructure:"stream"`
	MaxLen   int64         `mapstructure:"max_len"`
	Recheck  time.Duration `mapstructure:"recheck"`
}

func setGatewayDefaults(v *viper.Viper) {
	setRadioDefaults(v)

	v.SetDefault("id", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("mode", ModePrimary)
	v.SetDefault("max_hops", 3)
	v.SetDefault("max_frame", 250)

	v.SetDefault("queue.capacity", 50)
	v.SetDefault("queue.urgent", 8)
	v.SetDefault("queue.fallback", 16)

	v.SetDefault("forward.max_attempts", 3)
	v.SetDefault("forward.base_delay", "500ms")
	v.SetDefault("forward.timeout", "10s")

	v.SetDefault("registry.offline_timeout", "300s")
	v.SetDefault("registry.sweep", "10s")
	v.SetDefault("registry.max_nodes", 64)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "aguada/telemetry")
	v.SetDefault("mqtt.status_topic", "aguada/status")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.timeout", "5s")

	v.SetDefault("http.url", "")
	v.SetDefault("http.token", "")
	v.SetDefault("http.timeout", "10s")
	v.SetDefault("http.recheck", "5s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "aguada:telemetry")
	v.SetDefault("redis.max_len", 10000)
	v.SetDefault("redis.recheck", "5s")

	v.SetDefault("status_interval", "60s")
	v.SetDefault("status_addr", ":8080")
	v.SetDefault("watchdog_timeout", "30s")
}

// LoadGateway reads gateway configuration. path may be empty.
func LoadGateway(path string) (*GatewayConfig, error) {
	v, err := newViper(path, setGatewayDefaults)
	if err != nil {
		return nil, err
	}
	var cfg GatewayConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Annotate(err, "unmarshal gateway config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotate(err, "gateway config")
	}
	return &cfg, nil
}

// Validate checks value ranges and mode-specific requirements.
func (c *GatewayConfig) Validate() error {
	if err := validateID(c.ID); err != nil {
		return err
	}
	switch c.Mode {
	case ModePrimary:
		if c.MQTT.Broker == "" && c.HTTP.URL == "" && c.Redis.Addr == "" {
			return errors.NotValidf("primary mode without mqtt.broker, http.url or redis.addr")
		}
	case ModeRepeater:
		if c.MaxHops < 1 || c.MaxHops > 255 {
			return errors.NotValidf("max_hops %d", c.MaxHops)
		}
	default:
		return errors.NotValidf("mode %q", c.Mode)
	}
	if c.MaxFrame < 1 {
		return errors.NotValidf("max_frame %d", c.MaxFrame)
	}
	if c.Queue.Capacity < 1 || c.Queue.Urgent < 0 || c.Queue.Fallback < 0 {
		return errors.NotValidf("queue sizes %+v", c.Queue)
	}
	if c.Forward.MaxAttempts < 1 {
		return errors.NotValidf("forward.max_attempts %d", c.Forward.MaxAttempts)
	}
	if c.Forward.BaseDelay <= 0 {
		return errors.NotValidf("forward.base_delay %v", c.Forward.BaseDelay)
	}
	if c.Registry.OfflineTimeout <= 0 || c.Registry.Sweep <= 0 {
		return errors.NotValidf("registry timings %+v", c.Registry)
	}
	if c.Registry.MaxNodes < 1 {
		return errors.NotValidf("registry.max_nodes %d", c.Registry.MaxNodes)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return errors.NotValidf("mqtt.qos %d", c.MQTT.QoS)
	}
	if c.StatusInterval <= 0 {
		return errors.NotValidf("status_interval %v", c.StatusInterval)
	}
	if c.Watchdog <= 0 {
		return errors.NotValidf("watchdog_timeout %v", c.Watchdog)
	}
	return c.Radio.Validate(c.Mode == ModeRepeater)
}
