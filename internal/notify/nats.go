package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/room"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes results on one subject, suffixed with the end reason
// (rooms.results.checkmate) so consumers can filter with wildcards.
type NATS struct {
	conn    *nats.Conn
	pub     publisher
	subject string
}

func DialNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("cheese-rooms"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			obslog.L().Warn("nats_disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			obslog.L().Info("nats_reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: conn, pub: conn, subject: subject}, nil
}

func (n *NATS) Subject(r room.Result) string {
	if r.Reason == "" {
		return n.subject
	}
	return n.subject + "." + string(r.Reason)
}

func (n *NATS) Deliver(_ context.Context, r room.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return n.pub.Publish(n.Subject(r), data)
}

// Close flushes pending publishes and drops the connection.
func (n *NATS) Close() {
	if n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
