// Package bus wraps the shared NATS connection behind two primitives:
// fire-and-forget Publish and correlated Request with a per-call deadline.
// Correlation is NATS's own inbox mechanism, so concurrent requests on one
// connection never see each other's replies.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/osokin-dev/gatehouse/internal/apperr"
	"github.com/osokin-dev/gatehouse/internal/logging"
)

// queueGroup makes every backend process share one subscription group so a
// request is delivered to exactly one of them.
const queueGroup = "authd"

// Handler processes one request payload and returns the reply envelope.
type Handler func(ctx context.Context, data []byte) *Reply

// Client is the shared bus handle constructed once at startup and passed
// into every component that needs it.
type Client struct {
	conn    *nats.Conn
	timeout time.Duration
	logger  logging.Logger
}

// Connect dials the bus and returns a Client with the given per-request
// timeout.
func Connect(url string, timeout time.Duration, logger logging.Logger) (*Client, error) {
	conn, err := nats.Connect(url,
		nats.Name("gatehouse"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to bus: %w", err)
	}
	return &Client{
		conn:    conn,
		timeout: timeout,
		logger:  logger.With("module", "bus"),
	}, nil
}

// Publish sends payload on subject without awaiting a reply.
func (c *Client) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	return c.conn.Publish(subject, data)
}

// Request sends payload on subject and blocks until the correlated reply
// arrives or the deadline passes. A timeout, missing responder, or a reply
// that does not decode all surface as UpstreamTimeout: in each case the
// backend's side effect may or may not have committed.
func (c *Client) Request(ctx context.Context, subject string, payload any) (*Reply, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrNoResponders) {
			return nil, apperr.New(apperr.KindUpstreamTimeout, "no reply from backend")
		}
		return nil, fmt.Errorf("bus request on %s: %w", subject, err)
	}

	reply := &Reply{}
	if err := json.Unmarshal(msg.Data, reply); err != nil {
		c.logger.Warn(ctx, "undecodable reply", "subject", subject)
		return nil, apperr.New(apperr.KindUpstreamTimeout, "malformed reply from backend")
	}
	return reply, nil
}

// Subscribe registers h on subject within the shared queue group. Handler
// panics are recovered and answered with an internal-error envelope so a
// bad payload cannot take the worker down.
func (c *Client) Subscribe(subject string, h Handler) (*nats.Subscription, error) {
	return c.conn.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
		ctx := context.Background()

		reply := c.safeHandle(ctx, subject, h, msg.Data)
		if msg.Reply == "" {
			return
		}

		data, err := json.Marshal(reply)
		if err != nil {
			c.logger.Error(ctx, "encoding reply", "subject", subject, "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			c.logger.Error(ctx, "sending reply", "subject", subject, "error", err)
		}
	})
}

func (c *Client) safeHandle(ctx context.Context, subject string, h Handler, data []byte) (reply *Reply) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error(ctx, "handler panic", "subject", subject, "panic", p)
			reply = Fail(string(apperr.KindInternal), "internal error")
		}
	}()
	return h(ctx, data)
}

// Drain flushes pending messages and closes the connection.
func (c *Client) Drain() error {
	return c.conn.Drain()
}

// Close terminates the connection immediately.
func (c *Client) Close() {
	c.conn.Close()
}
