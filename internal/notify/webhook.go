// Package notify formats canonical event records into webhook embeds
// and delivers them with rate-limit awareness.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	logx "tennowatch/pkg/logx"
)

// DeliveryKind classifies a delivery failure.
type DeliveryKind uint8

const (
	// DeliveryRateLimited means the retry after a 429 was itself rate
	// limited; the message is dropped, never retried a third time.
	DeliveryRateLimited DeliveryKind = iota + 1
	DeliveryHTTPStatus
	DeliveryTransport
)

func (k DeliveryKind) String() string {
	switch k {
	case DeliveryRateLimited:
		return "rate_limited"
	case DeliveryHTTPStatus:
		return "http_status"
	case DeliveryTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// DeliveryError is the only error type Send returns.
type DeliveryError struct {
	Kind   DeliveryKind
	Status int
	Err    error
}

func (e *DeliveryError) Error() string {
	if e.Kind == DeliveryHTTPStatus {
		return fmt.Sprintf("deliver: http %d", e.Status)
	}
	return fmt.Sprintf("deliver: %s: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

const (
	postTimeout = 10 * time.Second

	// pacingInterval is the self-imposed minimum spacing between
	// delivery attempts, independent of any observed 429. ~1.6 msg/s
	// stays well under the channel's global rate budget.
	pacingInterval = 600 * time.Millisecond

	defaultRetryAfter = 5 * time.Second
)

// Webhook delivers embed messages to a single webhook endpoint.
// Deliveries are strictly sequential; the pacing limiter doubles as the
// synchronization device between bursts within one cycle.
type Webhook struct {
	url   string
	hc    *http.Client
	log   logx.Logger
	pacer *rate.Limiter

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewWebhook(url string, log logx.Logger) *Webhook {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Webhook{
		url:   url,
		hc:    &http.Client{Timeout: postTimeout},
		log:   log,
		pacer: rate.NewLimiter(rate.Every(pacingInterval), 1),
		sleep: sleepCtx,
	}
}

// Configured reports whether a webhook URL is set. An unconfigured
// webhook drops messages silently at the caller's discretion.
func (w *Webhook) Configured() bool { return w.url != "" }

// Send serializes the message into the webhook envelope and posts it.
//
// Response handling:
//   - 2xx/204: success
//   - 429: sleep for the server-suggested retry_after (default 5s),
//     retry exactly once; a second 429 is a hard failure
//   - other non-2xx, or transport failure: hard failure, no retry
//
// Every attempt, success or failure, consumes a pacing token so one
// cycle's burst never exceeds the self-imposed budget.
func (w *Webhook) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(envelope{Embeds: []embed{m.toEmbed()}})
	if err != nil {
		return &DeliveryError{Kind: DeliveryTransport, Err: err}
	}

	status, retryAfter, err := w.post(ctx, body)
	w.pace(ctx)
	if err != nil {
		return &DeliveryError{Kind: DeliveryTransport, Err: err}
	}

	if status == http.StatusTooManyRequests {
		w.log.Warn("webhook rate limited; retrying once", logx.Duration("retry_after", retryAfter))
		if err := w.sleep(ctx, retryAfter); err != nil {
			return &DeliveryError{Kind: DeliveryTransport, Err: err}
		}
		status, _, err = w.post(ctx, body)
		w.pace(ctx)
		if err != nil {
			return &DeliveryError{Kind: DeliveryTransport, Err: err}
		}
		if status == http.StatusTooManyRequests {
			return &DeliveryError{Kind: DeliveryRateLimited, Status: status}
		}
	}

	if status < 200 || status > 299 {
		return &DeliveryError{Kind: DeliveryHTTPStatus, Status: status}
	}
	return nil
}

// post performs one attempt and, on 429, extracts the server-suggested
// wait from the response body.
func (w *Webhook) post(ctx context.Context, body []byte) (status int, retryAfter time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.hc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	retryAfter = defaultRetryAfter
	if resp.StatusCode == http.StatusTooManyRequests {
		var rl struct {
			RetryAfter float64 `json:"retry_after"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(b, &rl) == nil && rl.RetryAfter > 0 {
			retryAfter = time.Duration(rl.RetryAfter * float64(time.Second))
		}
	} else {
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
	}
	return resp.StatusCode, retryAfter, nil
}

func (w *Webhook) pace(ctx context.Context) {
	_ = w.pacer.Wait(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
