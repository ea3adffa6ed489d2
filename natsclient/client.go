// Package natsclient manages the NATS connection and JetStream KV buckets
// backing the distributed cache store.
package natsclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/sentinel/errors"
	"github.com/c360/sentinel/pkg/retry"
)

// Client manages a NATS connection and provides KV bucket access
type Client struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *nats.Conn
	js   jetstream.JetStream
}

// Option configures the client
type Option func(*Client)

// WithLogger sets the structured logger used by the client and its KV stores
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Connect establishes a NATS connection with retry. Initial connection uses
// fast retries since a briefly unavailable broker at startup is common.
func Connect(ctx context.Context, url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Client", "Connect", "nats url")
	}

	c := &Client{
		url:    url,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := retry.DoWithResult(ctx, retry.Quick(), func() (*nats.Conn, error) {
		return nats.Connect(url,
			nats.MaxReconnects(-1),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				c.logger.Info("nats reconnected", "url", url)
			}),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					c.logger.Warn("nats disconnected", "error", err)
				}
			}),
		)
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Connect", "nats connection")
	}
	c.conn = conn

	js, err := jetstream.New(c.conn)
	if err != nil {
		c.conn.Close()
		return nil, errors.WrapFatal(err, "Client", "Connect", "jetstream context")
	}
	c.js = js

	c.logger.Info("connected to nats", "url", url)
	return c, nil
}

// EnsureBucket creates the KV bucket if it does not exist and returns a
// KVStore bound to it.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) (*KVStore, error) {
	if bucket == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "EnsureBucket", "bucket name")
	}

	kv, err := c.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "sentinel admission layer state",
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "EnsureBucket", fmt.Sprintf("bucket %s", bucket))
	}

	return c.NewKVStore(kv), nil
}

// Close drains the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Drain()
	c.conn = nil
	return err
}
