package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/branchd-dev/queuemon/internal/config"
)

// ErrUnreachable is returned by Connect once every connection attempt failed.
var ErrUnreachable = errors.New("broker unreachable")

// RedisConnOpt satisfies asynq.RedisConnOpt by handing out one shared
// go-redis client, so the inspector, the dashboard and the health check all
// draw from a single pool capped at PoolSize.
type RedisConnOpt struct {
	client *redis.Client
}

// MakeRedisClient returns the shared client. Closing the returned value is a
// no-op; the pool is closed by Client.Close.
func (o RedisConnOpt) MakeRedisClient() interface{} {
	return sharedClient{Client: o.client}
}

// sharedClient ignores Close so asynq and asynqmon cannot shut the pool
// down underneath each other.
type sharedClient struct {
	*redis.Client
}

func (sharedClient) Close() error {
	return nil
}

// Client is the task-queue client bound to one broker. The same Redis serves
// as job submission channel and result store.
type Client struct {
	url       ConnURL
	connOpt   RedisConnOpt
	rdb       *redis.Client
	inspector *asynq.Inspector
	cfg       config.BrokerConfig
	logger    zerolog.Logger
}

// NewClient configures a client for connURL. It does not touch the network;
// call Connect to verify the broker is reachable.
func NewClient(connURL string, cfg config.BrokerConfig, logger zerolog.Logger) (*Client, error) {
	parsed, err := ParseURL(connURL)
	if err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(parsed.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.SocketTimeout
	opts.WriteTimeout = cfg.SocketTimeout
	opts.ConnMaxIdleTime = cfg.IdleTimeout

	rdb := redis.NewClient(opts)
	connOpt := RedisConnOpt{client: rdb}

	return &Client{
		url:       parsed,
		connOpt:   connOpt,
		rdb:       rdb,
		inspector: asynq.NewInspector(connOpt),
		cfg:       cfg,
		logger:    logger.With().Str("broker", parsed.Redacted()).Logger(),
	}, nil
}

// Connect pings the broker up to MaxRetries times with a linearly growing
// pause between attempts. It returns ErrUnreachable when attempts run out and
// the context error if ctx is done first.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		lastErr = c.Ping(ctx)
		if lastErr == nil {
			c.logger.Info().Int("attempt", attempt).Msg("Connected to broker")
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_retries", c.cfg.MaxRetries).
			Msg("Broker connection attempt failed")

		if attempt == c.cfg.MaxRetries {
			break
		}

		wait := time.Duration(attempt) * c.cfg.RetryInterval
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrUnreachable, c.cfg.MaxRetries, lastErr)
}

// Ping performs a single round trip to the broker.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// URL returns the parsed connection URL.
func (c *Client) URL() ConnURL {
	return c.url
}

// ConnOpt returns the connection options for asynq components.
func (c *Client) ConnOpt() asynq.RedisConnOpt {
	return c.connOpt
}

// Inspector returns the asynq inspector bound to the broker.
func (c *Client) Inspector() *asynq.Inspector {
	return c.inspector
}

// Close releases the shared pool. The inspector only holds a sharedClient,
// so closing it first is harmless.
func (c *Client) Close() error {
	return errors.Join(c.inspector.Close(), c.rdb.Close())
}
