package mqtt

import (
	"context"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/sweeney/tank-sensor/internal/protocol"
	"github.com/sweeney/tank-sensor/internal/uplink"
)

// Config configures the broker connection.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicBase      string
	TopicStatus    string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// Client is a paho-backed uplink sink and lifecycle event publisher.
type Client struct {
	client paho.Client
	cfg    Config
	log    *zap.SugaredLogger
}

// NewClient connects to the broker. The broker being unreachable at
// startup is not an error: paho keeps retrying in the background and
// IsUp reports false meanwhile.
func NewClient(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.NotValidf("empty mqtt broker")
	}
	if cfg.TopicBase == "" {
		cfg.TopicBase = DefaultTopicBase
	}
	if cfg.TopicStatus == "" {
		cfg.TopicStatus = DefaultTopicStatus
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	c := &Client{cfg: cfg, log: log}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(cfg.TopicStatus, string(willPayload()), 1, true).
		SetOnConnectHandler(func(paho.Client) {
			log.Infof("mqtt: connected to %s", cfg.Broker)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnf("mqtt: connection lost: %v", err)
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		log.Warnf("mqtt: %s not reachable yet, retrying in background", cfg.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, errors.Annotate(err, "connect to broker")
	}
	return c, nil
}

// Name implements uplink.Uplink.
func (c *Client) Name() string { return "mqtt" }

// IsUp implements uplink.Uplink.
func (c *Client) IsUp() bool { return c.client.IsConnectionOpen() }

// IsConnected implements ConnectionStatus.
func (c *Client) IsConnected() bool { return c.IsUp() }

// Forward publishes the message on the node's telemetry topic.
func (c *Client) Forward(ctx context.Context, m uplink.Message) error {
	if !c.IsUp() {
		return errors.Annotate(uplink.ErrUnavailable, "mqtt not connected")
	}
	payload, err := m.JSON()
	if err != nil {
		return err
	}
	id, err := protocol.ParseDeviceID(m.MAC)
	if err != nil {
		return err
	}
	return c.publish(ctx, TelemetryTopic(c.cfg.TopicBase, id), c.cfg.QoS, false, payload)
}

// PublishSystem sends a system lifecycle event to the status topic.
func (c *Client) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return errors.Annotate(err, "format system payload")
	}
	// QoS 1 (at-least-once) for lifecycle events
	return c.publish(context.Background(), c.cfg.TopicStatus, 1, event.Retained, payload)
}

func (c *Client) publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	timer := time.NewTimer(c.cfg.PublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return errors.Annotatef(ctx.Err(), "publish %s", topic)
	case <-timer.C:
		return errors.Annotatef(uplink.ErrUnavailable, "publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Annotatef(err, "publish %s", topic)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
