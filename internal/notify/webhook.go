package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/cheese-rooms/internal/room"
)

// Webhook POSTs results as JSON.
type Webhook struct {
	url      string
	http     *fasthttp.Client
	timeout  time.Duration
	retryMax int
	backoff  func(attempt int) time.Duration
}

type WebhookOption func(*Webhook)

func WithTimeout(d time.Duration) WebhookOption { return func(w *Webhook) { w.timeout = d } }
func WithRetry(n int) WebhookOption            { return func(w *Webhook) { w.retryMax = n } }

// WithClient replaces the HTTP client; tests dial an in-memory listener.
func WithClient(c *fasthttp.Client) WebhookOption { return func(w *Webhook) { w.http = c } }

func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:      url,
		http:     &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		timeout:  5 * time.Second,
		retryMax: 2,
		backoff:  backoffDuration,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Deliver sends r, retrying transport errors and 5xx responses.
func (w *Webhook) Deliver(ctx context.Context, r room.Result) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(w.url)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	attempts := w.retryMax + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := w.http.DoDeadline(req, resp, w.deadline(ctx)); err != nil {
			lastErr = fmt.Errorf("webhook request failed: %w", err)
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			lastErr = fmt.Errorf("webhook status=%d body=%s", status, truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(status) {
				return lastErr
			}
		} else {
			return nil
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, w.backoff(attempt)); err != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("webhook: unknown error")
	}
	return lastErr
}

func (w *Webhook) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(w.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
