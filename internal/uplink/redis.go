package uplink

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string // e.g. tank:telemetry
	MaxLen   int64  // approximate stream cap, 0 for unbounded
	Recheck  time.Duration
}

// RedisStream appends each message to a Redis stream with XADD.
type RedisStream struct {
	cfg    RedisConfig
	client *redis.Client
	br     *breaker
}

// NewRedisStream creates the sink. The connection is established lazily.
func NewRedisStream(cfg RedisConfig) (*RedisStream, error) {
	if cfg.Addr == "" || cfg.Stream == "" {
		return nil, errors.NotValidf("redis uplink needs addr and stream")
	}
	return &RedisStream{
		cfg: cfg,
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		br: newBreaker(cfg.Recheck),
	}, nil
}

// Name implements Uplink.
func (r *RedisStream) Name() string { return "redis" }

// IsUp implements Uplink.
func (r *RedisStream) IsUp() bool { return r.br.up() }

// Forward implements Uplink.
func (r *RedisStream) Forward(ctx context.Context, m Message) error {
	err := r.add(ctx, m)
	r.br.record(err)
	return err
}

func (r *RedisStream) add(ctx context.Context, m Message) error {
	body, err := m.JSON()
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: r.cfg.Stream,
		Values: map[string]interface{}{
			"id":      m.ID,
			"mac":     m.MAC,
			"payload": body,
		},
	}
	if r.cfg.MaxLen > 0 {
		args.MaxLen = r.cfg.MaxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return errors.Annotatef(ErrUnavailable, "xadd %s: %v", r.cfg.Stream, err)
	}
	return nil
}

// Close implements Uplink.
func (r *RedisStream) Close() error {
	return r.client.Close()
}
