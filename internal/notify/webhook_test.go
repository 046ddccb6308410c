package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "tennowatch/pkg/logx"
)

func testMessage() Message {
	return Message{
		Title:       "t",
		Description: "d",
		Color:       0xABCDEF,
		Fields:      []Field{{Name: "n", Value: "v", Inline: true}},
		Footer:      "TennoReporter",
		Timestamp:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestWebhookSendEnvelope(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		b, _ := io.ReadAll(r.Body)
		got = b
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, logx.Nop())
	if err := w.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var env struct {
		Embeds []struct {
			Title  string `json:"title"`
			Color  int    `json:"color"`
			Fields []struct {
				Name   string `json:"name"`
				Inline bool   `json:"inline"`
			} `json:"fields"`
			Footer *struct {
				Text string `json:"text"`
			} `json:"footer"`
			Timestamp string `json:"timestamp"`
		} `json:"embeds"`
	}
	if err := json.Unmarshal(got, &env); err != nil {
		t.Fatalf("bad envelope: %v (%s)", err, got)
	}
	if len(env.Embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(env.Embeds))
	}
	e := env.Embeds[0]
	if e.Title != "t" || e.Color != 0xABCDEF {
		t.Fatalf("unexpected embed: %+v", e)
	}
	if len(e.Fields) != 1 || !e.Fields[0].Inline {
		t.Fatalf("unexpected fields: %+v", e.Fields)
	}
	if e.Footer == nil || e.Footer.Text != "TennoReporter" {
		t.Fatalf("unexpected footer: %+v", e.Footer)
	}
	if e.Timestamp != "2026-03-10T12:00:00Z" {
		t.Fatalf("unexpected timestamp: %q", e.Timestamp)
	}
}

func TestWebhookRetryAfter429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"retry_after": 2}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var slept time.Duration
	w := NewWebhook(srv.URL, logx.Nop())
	w.sleep = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	if err := w.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls.Load())
	}
	if slept != 2*time.Second {
		t.Fatalf("expected server-suggested 2s wait, got %v", slept)
	}
}

func TestWebhookSecond429Drops(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{}`)) // no retry_after: default applies
	}))
	defer srv.Close()

	var slept time.Duration
	w := NewWebhook(srv.URL, logx.Nop())
	w.sleep = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	err := w.Send(context.Background(), testMessage())
	var de *DeliveryError
	if !errors.As(err, &de) || de.Kind != DeliveryRateLimited {
		t.Fatalf("expected rate-limited failure, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly 2 attempts (no third retry), got %d", calls.Load())
	}
	if slept != defaultRetryAfter {
		t.Fatalf("expected default %v wait, got %v", defaultRetryAfter, slept)
	}
}

func TestWebhookHTTPStatusFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, logx.Nop())
	err := w.Send(context.Background(), testMessage())
	var de *DeliveryError
	if !errors.As(err, &de) || de.Kind != DeliveryHTTPStatus || de.Status != http.StatusForbidden {
		t.Fatalf("expected http_status failure, got %v", err)
	}
}

func TestWebhookTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	w := NewWebhook(srv.URL, logx.Nop())
	err := w.Send(context.Background(), testMessage())
	var de *DeliveryError
	if !errors.As(err, &de) || de.Kind != DeliveryTransport {
		t.Fatalf("expected transport failure, got %v", err)
	}
}

func TestWebhookPacesConsecutiveSends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, logx.Nop())
	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := w.Send(context.Background(), testMessage()); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	// The second attempt must wait out the pacing interval.
	if elapsed := time.Since(start); elapsed < pacingInterval {
		t.Fatalf("two sends finished in %v, pacing requires at least %v", elapsed, pacingInterval)
	}
}

func TestWebhookConfigured(t *testing.T) {
	if NewWebhook("", logx.Nop()).Configured() {
		t.Fatalf("empty url must report unconfigured")
	}
	if !NewWebhook("http://example.invalid/hook", logx.Nop()).Configured() {
		t.Fatalf("non-empty url must report configured")
	}
}
