package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/pkg/protocol"
)

const (
	readLimit    = 64 << 10
	writeTimeout = 10 * time.Second
	pingTimeout  = 5 * time.Second
)

// Dispatcher receives decoded client events. room.Manager satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, handle string, ev protocol.Inbound) error
	Disconnect(ctx context.Context, handle string)
}

type Options struct {
	SendBuffer     int
	PingInterval   time.Duration
	AllowedOrigins []string
}

// Hub accepts websocket connections and fans events out to them.
// Emit never blocks: a connection whose buffer is full is dropped.
type Hub struct {
	opts Options

	mu    sync.RWMutex
	conns map[string]*client
	rooms map[string]map[string]struct{}
	d     Dispatcher

	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once

	newID func() string
}

func New(opts Options) *Hub {
	if opts.SendBuffer < 1 {
		opts.SendBuffer = 64
	}
	return &Hub{
		opts:   opts,
		conns:  make(map[string]*client),
		rooms:  make(map[string]map[string]struct{}),
		closed: make(chan struct{}),
		newID:  uuid.NewString,
	}
}

// Bind sets the dispatcher. It must be called before serving.
func (h *Hub) Bind(d Dispatcher) { h.d = d }

// Connections reports open sockets.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) Emit(handle, event string, payload any) {
	b, err := protocol.Encode(event, payload)
	if err != nil {
		obslog.L().Error("ws_encode_error", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	c := h.conns[handle]
	h.mu.RUnlock()
	if c != nil {
		c.enqueue(b)
	}
}

func (h *Hub) EmitRoom(code, event string, payload any) {
	b, err := protocol.Encode(event, payload)
	if err != nil {
		obslog.L().Error("ws_encode_error", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[code]))
	for id := range h.rooms[code] {
		if c := h.conns[id]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(b)
	}
}

func (h *Hub) Join(handle, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[code]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[code] = members
	}
	members[handle] = struct{}{}
}

func (h *Hub) Leave(handle, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(handle, code)
}

func (h *Hub) leaveLocked(handle, code string) {
	members, ok := h.rooms[code]
	if !ok {
		return
	}
	delete(members, handle)
	if len(members) == 0 {
		delete(h.rooms, code)
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.closed:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)

	c := newClient(h.newID(), conn, h.opts.SendBuffer)
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.wg.Add(1)
	defer h.wg.Done()

	obslog.L().Info("ws_connect", zap.String("player_id", c.id), zap.String("remote", r.RemoteAddr))
	h.Emit(c.id, protocol.EventConnected, protocol.Connected{PlayerID: c.id})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(h.opts.PingInterval)
	}()

	h.readLoop(r.Context(), c)

	// Leave the room before the socket goes away so the others are told.
	if h.d != nil {
		h.d.Disconnect(context.Background(), c.id)
	}
	h.unregister(c.id)
	c.kill(websocket.StatusNormalClosure, "")
	<-writerDone
	obslog.L().Info("ws_disconnect", zap.String("player_id", c.id))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("ws_read_error", zap.String("player_id", c.id), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			obslog.L().Debug("ws_frame_invalid", zap.String("player_id", c.id), zap.Error(err))
			continue
		}
		if h.d == nil {
			continue
		}
		if err := h.d.Dispatch(ctx, c.id, ev); err != nil {
			obslog.L().Debug("ws_event_rejected", zap.String("player_id", c.id), zap.String("event", ev.EventName()), zap.Error(err))
		}
	}
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
	for code := range h.rooms {
		h.leaveLocked(id, code)
	}
}

// Close refuses new connections, closes open ones and waits for their handlers.
func (h *Hub) Close(ctx context.Context) error {
	h.once.Do(func() { close(h.closed) })
	h.mu.RLock()
	for _, c := range h.conns {
		c.kill(websocket.StatusGoingAway, "server shutdown")
	}
	h.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (h *Hub) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
	}
	opts.OriginPatterns = h.opts.AllowedOrigins
	return opts
}
