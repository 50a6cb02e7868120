// Package notify delivers finished games to outside systems without holding
// up the room manager.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-rooms/internal/obslog"
	"github.com/park285/cheese-rooms/internal/room"
)

// Handler delivers one result.
type Handler func(ctx context.Context, r room.Result) error

// Queue is a room.ResultSink backed by a bounded channel and one worker.
// Results that do not fit are dropped and logged.
type Queue struct {
	name    string
	h       Handler
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	q      chan room.Result
	done   chan struct{}
}

func NewQueue(name string, size int, timeout time.Duration, h Handler) *Queue {
	if size < 1 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	q := &Queue{
		name:    name,
		h:       h,
		timeout: timeout,
		q:       make(chan room.Result, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Publish(r room.Result) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.q <- r:
	default:
		obslog.L().Warn("result_sink_dropped", zap.String("sink", q.name), zap.String("code", r.Code))
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for r := range q.q {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.h(ctx, r)
		cancel()
		if err != nil {
			obslog.L().Error("result_sink_error", zap.String("sink", q.name), zap.String("code", r.Code), zap.Error(err))
			continue
		}
		obslog.L().Info("result_sink_delivered", zap.String("sink", q.name), zap.String("code", r.Code), zap.String("reason", string(r.Reason)))
	}
}

// Close stops accepting results and waits for queued ones to drain.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.q)
	}
	q.mu.Unlock()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
