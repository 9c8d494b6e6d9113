// Package replication forwards committed leader writes to a follower.
//
// Forwarding is best effort: one attempt per write over a fresh connection,
// no retry, no acknowledgement. The follower's response is never read.
package replication

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"replkv/internal/client"
	"replkv/internal/metrics"
	"replkv/internal/protocol"
)

type Config struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// Client forwards writes to a single follower address.
type Client struct {
	addr    string
	cfg     Config
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

type Option func(*Client)

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func New(addr string, cfg Config, opts ...Option) *Client {
	defaults := DefaultConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	c := &Client{
		addr: addr,
		cfg:  cfg,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("follower", addr)
	return c
}

func (c *Client) Addr() string {
	return c.addr
}

// Forward sends the replicate form of a committed Set or Remove. Other
// requests are ignored. Failures are logged and returned; callers are
// expected to ignore them.
func (c *Client) Forward(ctx context.Context, req protocol.Request) error {
	repl, ok := req.Replicated()
	if !ok {
		return nil
	}

	start := time.Now()
	err := c.send(ctx, repl)
	c.metrics.RecordReplication(err, time.Since(start))

	if err != nil {
		c.log.WithError(err).Errorf("failed to replicate %s", repl)
		return err
	}
	c.log.Debugf("replicated %s", repl)
	return nil
}

func (c *Client) send(ctx context.Context, req protocol.Request) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, err := client.Dial(ctx, c.addr, c.cfg.DialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetTimeout(c.cfg.WriteTimeout)
	return conn.Send(req)
}
