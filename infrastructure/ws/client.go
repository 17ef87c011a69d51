// Package ws is the websocket transport: it upgrades authenticated HTTP
// requests and pumps events between the connection and the routing core.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"chat-direct/domain/event"
	"chat-direct/services"
	"chat-direct/sink"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection bound to one authenticated user.
// The read pump feeds inbound frames to the service synchronously, which
// keeps one connection's commands ordered; the write pump drains the
// sink's channel back onto the wire.
type Client struct {
	log     *slog.Logger
	conn    *websocket.Conn
	userID  uuid.UUID
	service services.IChatService
	sink    *sink.ChannelSink
}

func NewClient(log *slog.Logger, conn *websocket.Conn, userID uuid.UUID,
	service services.IChatService, s *sink.ChannelSink) *Client {
	return &Client{log: log, conn: conn, userID: userID, service: service, sink: s}
}

// Run connects the client to the core and blocks until the connection
// dies. Disconnect runs on the way out, so presence and the registry stay
// consistent no matter which pump fails first.
func (c *Client) Run(ctx context.Context) {
	c.service.Connect(ctx, c.userID, c.sink)
	defer func() {
		c.service.Disconnect(ctx, c.userID, c.sink)
		c.sink.Close()
		_ = c.conn.Close()
	}()

	go c.writePump(ctx)
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Unexpected websocket close", "user", c.userID, "error", err)
			}
			return
		}
		c.service.Handle(ctx, c.userID, raw)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sink.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case e := <-c.sink.Events:
			if err := c.write(e); err != nil {
				c.log.Debug("Write failed, closing connection", "user", c.userID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(e event.Outbound) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(event.Envelope{Event: e.EventType(), Data: data})
}
