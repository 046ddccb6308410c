// Package worldstate fetches upstream world-state documents and
// normalizes them into canonical event records.
//
// The fetch side knows nothing about domain semantics; the normalizers
// know nothing about HTTP. Relevance filtering (rarity, watched nodes,
// expiry) happens here during normalization so the candidate sets that
// reach the ledger stay small.
package worldstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrorKind classifies a fetch failure.
type ErrorKind uint8

const (
	KindTimeout ErrorKind = iota + 1
	KindConnection
	KindHTTPStatus
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindHTTPStatus:
		return "http_status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is the only error type Get returns. Callers branch on Kind;
// there is no retry here, retry policy belongs to the caller.
type FetchError struct {
	Kind   ErrorKind
	Path   string
	Status int // set for KindHTTPStatus
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: http %d", e.Path, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClientConfig points the client at one upstream platform sub-tree.
type ClientConfig struct {
	BaseURL  string
	Platform string
	Language string
	Timeout  time.Duration
}

// Client performs bounded GETs against upstream sub-resources.
type Client struct {
	base string
	lang string
	hc   *http.Client
}

const (
	DefaultBaseURL  = "https://api.warframestat.us"
	DefaultPlatform = "pc"
	defaultTimeout  = 15 * time.Second
)

func NewClient(cfg ClientConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	platform := strings.Trim(cfg.Platform, "/")
	if platform == "" {
		platform = DefaultPlatform
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	return &Client{
		base: base + "/" + platform,
		lang: lang,
		hc:   &http.Client{Timeout: timeout},
	}
}

// Get fetches one sub-resource ("" means the whole world-state) and
// returns the raw JSON document. All failure paths resolve to *FetchError.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	url := c.base
	if p := strings.TrimLeft(path, "/"); p != "" {
		url += "/" + p
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindConnection, Path: path, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", c.lang)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: classifyTransport(err), Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &FetchError{Kind: KindHTTPStatus, Path: path, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: classifyTransport(err), Path: path, Err: err}
	}
	if !json.Valid(body) {
		return nil, &FetchError{Kind: KindDecode, Path: path, Err: errors.New("invalid json body")}
	}
	return json.RawMessage(body), nil
}

func classifyTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindConnection
}
