package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/cheese-rooms/internal/game"
	"github.com/park285/cheese-rooms/internal/room"
)

func sample(code string) room.Result {
	return room.Result{Code: code, WhiteName: "Ann", BlackName: "Bo", Winner: game.White, Reason: room.ReasonResignation}
}

func TestQueueDeliversInOrderAndDrains(t *testing.T) {
	var mu sync.Mutex
	var got []string
	q := NewQueue("test", 8, time.Second, func(_ context.Context, r room.Result) error {
		mu.Lock()
		got = append(got, r.Code)
		mu.Unlock()
		return nil
	})
	for _, c := range []string{"A", "B", "C"} {
		q.Publish(sample(c))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, []string{"A", "B", "C"}, got)

	q.Publish(sample("late")) // closed: ignored, no panic
	require.NoError(t, q.Close(ctx))
}

func TestQueueDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	var handled atomic.Int32
	q := NewQueue("slow", 1, time.Second, func(context.Context, room.Result) error {
		<-release
		handled.Add(1)
		return nil
	})
	// The worker holds one result; the buffer holds one more.
	q.Publish(sample("1"))
	require.Eventually(t, func() bool { return len(q.q) == 0 }, time.Second, 5*time.Millisecond)
	q.Publish(sample("2"))
	q.Publish(sample("3")) // dropped, must not block

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, int32(2), handled.Load())
}

func TestQueueSurvivesHandlerErrors(t *testing.T) {
	var calls atomic.Int32
	q := NewQueue("flaky", 4, time.Second, func(context.Context, room.Result) error {
		calls.Add(1)
		return errors.New("down")
	})
	q.Publish(sample("A"))
	q.Publish(sample("B"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, int32(2), calls.Load())
}

// webhookServer answers with the given statuses in turn, then 200.
func webhookServer(t *testing.T, statuses ...int) (*fasthttp.Client, *[][]byte) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	var mu sync.Mutex
	var bodies [][]byte
	n := 0
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		mu.Lock()
		defer mu.Unlock()
		bodies = append(bodies, append([]byte(nil), ctx.PostBody()...))
		status := fasthttp.StatusOK
		if n < len(statuses) {
			status = statuses[n]
		}
		n++
		ctx.SetStatusCode(status)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	client := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	return client, &bodies
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	client, bodies := webhookServer(t, fasthttp.StatusBadGateway, fasthttp.StatusServiceUnavailable)
	w := NewWebhook("http://hooks.test/results", WithClient(client), WithRetry(2))
	w.backoff = func(int) time.Duration { return time.Millisecond }

	require.NoError(t, w.Deliver(context.Background(), sample("ABC123")))
	require.Len(t, *bodies, 3)

	var payload map[string]any
	require.NoError(t, json.Unmarshal((*bodies)[2], &payload))
	assert.Equal(t, "ABC123", payload["code"])
	assert.Equal(t, "white", payload["winner"])
	assert.Equal(t, "resignation", payload["reason"])
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	client, bodies := webhookServer(t, fasthttp.StatusBadRequest)
	w := NewWebhook("http://hooks.test/results", WithClient(client), WithRetry(3))
	w.backoff = func(int) time.Duration { return time.Millisecond }

	err := w.Deliver(context.Background(), sample("ABC123"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Len(t, *bodies, 1)
}

func TestWebhookGivesUpAfterRetries(t *testing.T) {
	client, bodies := webhookServer(t, 500, 500, 500, 500)
	w := NewWebhook("http://hooks.test/results", WithClient(client), WithRetry(1), WithTimeout(time.Second))
	w.backoff = func(int) time.Duration { return time.Millisecond }

	require.Error(t, w.Deliver(context.Background(), sample("ABC123")))
	assert.Len(t, *bodies, 2)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoffDuration(0))
	assert.Equal(t, 400*time.Millisecond, backoffDuration(3))
	assert.Equal(t, backoffDuration(6), backoffDuration(12))
}

type fakePublisher struct {
	subjects []string
	data     [][]byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return nil
}

func TestNATSPublishesOnReasonSubject(t *testing.T) {
	fp := &fakePublisher{}
	n := &NATS{pub: fp, subject: "rooms.results"}

	require.NoError(t, n.Deliver(context.Background(), sample("ABC123")))
	require.NoError(t, n.Deliver(context.Background(), room.Result{Code: "X"}))
	assert.Equal(t, []string{"rooms.results.resignation", "rooms.results"}, fp.subjects)

	var payload room.Result
	require.NoError(t, json.Unmarshal(fp.data[0], &payload))
	assert.Equal(t, "Ann", payload.WhiteName)

	n.Close() // no connection: no-op
}
