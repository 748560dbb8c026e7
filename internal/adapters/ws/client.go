// Package ws is the websocket transport for the fanout layer. A Client
// wraps one upgraded connection behind the fanout.Subscriber interface;
// the Handler upgrades requests on /ws/live and joins clients to either a
// session's broadcast domain or the global live feed.
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Client adapts one websocket connection to fanout.Subscriber.
//
// Send never blocks: envelopes land in a bounded buffer that the write
// pump drains, and a full buffer fails with ErrSlowConsumer so the
// broadcaster evicts the client instead of stalling on it.
type Client struct {
	id   string
	conn *websocket.Conn
	log  logger.Logger
	send chan model.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, log logger.Logger) *Client {
	if log == nil {
		log = logger.Get().Named("ws")
	}
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		log:  log,
		send: make(chan model.Envelope, sendBuffer),
		done: make(chan struct{}),
	}
}

// ID returns the client's subscriber id.
func (c *Client) ID() string { return c.id }

// Send queues one envelope for delivery.
func (c *Client) Send(env model.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSlowConsumer
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// readPump consumes inbound frames to keep control messages flowing.
// Client payloads are not part of the protocol and are discarded. The
// pump returns when the peer goes away.
func (c *Client) readPump(ctx context.Context) {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug(ctx, "set read deadline failed", logger.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug(ctx, "unexpected websocket close",
					logger.String("subscriber_id", c.id),
					logger.Error(err))
			}
			return
		}
	}
}

// writePump drains the send buffer onto the wire and keeps the
// connection alive with periodic pings.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case env := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				c.log.Warn(ctx, "envelope encode failed",
					logger.String("subscriber_id", c.id),
					logger.Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
