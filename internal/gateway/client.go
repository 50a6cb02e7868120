package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-rooms/internal/obslog"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done   chan struct{}
	once   sync.Once
	status websocket.StatusCode
	reason string
}

func newClient(id string, conn *websocket.Conn, buffer int) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// enqueue hands a frame to the writer. It is called with the room manager
// locked, so it never waits.
func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		obslog.L().Warn("ws_slow_consumer", zap.String("player_id", c.id), zap.Int("buffer", cap(c.send)))
		c.kill(websocket.StatusPolicyViolation, "send buffer full")
		return false
	}
}

// kill marks the client dead; the writer closes the socket.
func (c *client) kill(status websocket.StatusCode, reason string) {
	c.once.Do(func() {
		c.status, c.reason = status, reason
		close(c.done)
	})
}

func (c *client) writeLoop(pingEvery time.Duration) {
	var tick <-chan time.Time
	if pingEvery > 0 {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-c.done:
			_ = c.conn.Close(c.status, c.reason)
			return
		case b := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				c.kill(websocket.StatusInternalError, "write failed")
				_ = c.conn.Close(c.status, c.reason)
				return
			}
		case <-tick:
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_ping_failed", zap.String("player_id", c.id), zap.Error(err))
				c.kill(websocket.StatusGoingAway, "ping failure")
				_ = c.conn.Close(c.status, c.reason)
				return
			}
		}
	}
}
