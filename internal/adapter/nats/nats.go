// Package nats connects to NATS JetStream and opens the key-value
// buckets AgBlogger layers on top of it: sync-upload idempotency
// (internal/middleware.Idempotency) and the optional L2 render-HTML
// cache (internal/adapter/natskv), mirroring the teacher's
// Connect-then-ensure-resource shape but trading its task/run pub-sub
// stream for a KV-only connection since nothing in AgBlogger publishes
// or subscribes to a message stream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Conn wraps a NATS connection and its JetStream context.
type Conn struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a NATS connection and initializes JetStream.
func Connect(url string) (*Conn, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	slog.Info("nats connected", "url", url)
	return &Conn{nc: nc, js: js}, nil
}

// EnsureKV returns the named KV bucket, creating it with the given
// per-key TTL if it does not already exist.
func (c *Conn) EnsureKV(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := c.js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}
	kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain gracefully drains the connection before closing it.
func (c *Conn) Drain() error {
	if err := c.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection immediately.
func (c *Conn) Close() error {
	c.nc.Close()
	return nil
}
