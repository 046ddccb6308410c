package config

// Config is the full on-disk configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// The file may be YAML or JSON; both are decoded strictly (unknown
// fields are rejected).
type Config struct {
	// WebhookURL is the delivery endpoint. cmd/watcher may override it
	// from the environment; core packages never read env themselves.
	WebhookURL string `json:"webhook_url"`

	// PollInterval is the cycle period. Default "60s".
	PollInterval string `json:"poll_interval,omitempty"`

	API     APIConfig     `json:"api,omitempty"`
	Ledger  LedgerConfig  `json:"ledger,omitempty"`
	Logging LoggingConfig `json:"logging"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`
}

// APIConfig points the fetcher at the upstream world-state API.
type APIConfig struct {
	BaseURL string `json:"base_url,omitempty"` // default: https://api.warframestat.us
	// Platform selects the upstream sub-tree ("pc", "ps4", ...).
	Platform string `json:"platform,omitempty"` // default: "pc"
	// Language is sent as Accept-Language so upstream localizes labels.
	Language string `json:"language,omitempty"` // default: "en"
	// Timeout bounds one sub-resource GET. Default "15s".
	Timeout string `json:"timeout,omitempty"`
}

// LedgerConfig controls the persistent dedup ledger.
//
// Driver values:
//   - "file": flat JSON mapping, rewritten wholesale each cycle
//   - "sqlite": SQLite database file (optional build tag)
type LedgerConfig struct {
	Driver string `json:"driver,omitempty"` // default: "file"
	Path   string `json:"path,omitempty"`   // default: "./state.json"
	// Retention is the age-based purge window. Default "72h".
	Retention string `json:"retention,omitempty"`
	// BusyTimeout applies to the sqlite driver only.
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// MetricsConfig controls the optional Prometheus exposition server.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9464"
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
