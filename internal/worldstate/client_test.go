package worldstate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "tennowatch/pkg/logx"
)

func TestClientGet(t *testing.T) {
	var gotPath, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLang = r.Header.Get("Accept-Language")
		w.Write([]byte(`[{"id":"x"}]`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Platform: "pc", Language: "en"})
	raw, err := c.Get(context.Background(), "invasions")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(raw) != `[{"id":"x"}]` {
		t.Fatalf("unexpected body: %s", raw)
	}
	if gotPath != "/pc/invasions" {
		t.Fatalf("expected /pc/invasions, got %q", gotPath)
	}
	if gotLang != "en" {
		t.Fatalf("expected Accept-Language en, got %q", gotLang)
	}
}

func TestClientGetRootPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pc" {
			t.Errorf("expected /pc, got %q", r.URL.Path)
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	if _, err := c.Get(context.Background(), ""); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestClientGetHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.Get(context.Background(), "fissures")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Kind != KindHTTPStatus || fe.Status != http.StatusBadGateway {
		t.Fatalf("unexpected classification: %+v", fe)
	}
}

func TestClientGetDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.Get(context.Background(), "voidTraders")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestClientGetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, err := c.Get(context.Background(), "invasions")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindTimeout {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestClientGetConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	_, err := c.Get(context.Background(), "invasions")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindConnection {
		t.Fatalf("expected connection classification, got %v", err)
	}
}

func TestPollerPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pc/invasions":
			http.Error(w, "oops", http.StatusInternalServerError)
		case "/pc/fissures":
			w.Write([]byte(`[{"id":"f1","node":"Mot (Void)","tier":"Axi","missionType":"Survival","isHard":true,"active":true,"expiry":"2099-01-01T00:00:00.000Z","eta":"1h"}]`))
		case "/pc/voidTraders":
			w.Write([]byte(`[]`))
		case "/pc":
			w.Write([]byte(`{"earthCycle":{"isDay":true,"expiry":"2099-01-01T00:00:00.000Z"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewPoller(NewClient(ClientConfig{BaseURL: srv.URL}), logx.Nop())
	snap, issues := p.Poll(context.Background())

	if len(issues) != 1 || issues[0].Path != "invasions" {
		t.Fatalf("expected single invasions issue, got %+v", issues)
	}
	if len(snap.Fissures) != 1 || len(snap.Cycles) != 1 {
		t.Fatalf("other categories must survive: %+v", snap)
	}
	if snap.Invasions != nil {
		t.Fatalf("failed category should stay empty")
	}
}
