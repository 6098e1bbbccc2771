// Package broker wraps a NATS JetStream connection and provisions a
// topic-exchange-shaped topology: one durable stream standing in for
// the "sb.events" topic exchange, with a durable pull consumer per
// bound queue (raw/geo/license/session/screen/ui/system/dlq).
package broker

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	Log  *zap.Logger
}

// NewClient connects to NATS and initialises a JetStream context. It
// registers reconnect/disconnect handlers so topology can be
// re-asserted after a connection drop — the publisher re-declares
// topology on every reconnect.
func NewClient(url string, logger *zap.Logger) (*Client, error) {
	c := &Client{Log: logger}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Warn("NATS reconnected")
			if err := c.ProvisionTopology(); err != nil {
				logger.Error("topology re-provision after reconnect failed", zap.Error(err))
			}
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	logger.Info("NATS JetStream connected", zap.String("url", url))
	c.Conn = nc
	c.JS = js
	return c, nil
}

// Close drains and closes the underlying NATS connection. Drain()
// flushes all pending JetStream publish acknowledgments and outstanding
// subscription deliveries before closing — unlike Close() which drops
// in-flight messages immediately.
func (c *Client) Close() {
	if c.Conn != nil {
		if err := c.Conn.Drain(); err != nil {
			c.Conn.Close()
		}
	}
}
