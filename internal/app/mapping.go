package app

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"tennowatch/internal/config"
	"tennowatch/internal/ledger"
	"tennowatch/internal/observability/metrics"
	"tennowatch/internal/observability/pprof"
	"tennowatch/internal/watch"
	"tennowatch/internal/worldstate"
	logx "tennowatch/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapClientConfig(cfg *config.Config) (worldstate.ClientConfig, error) {
	timeout, err := config.ParseDurationOrDefault("api.timeout", cfg.API.Timeout, 15*time.Second)
	if err != nil {
		return worldstate.ClientConfig{}, err
	}
	if base := strings.TrimSpace(cfg.API.BaseURL); base != "" {
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return worldstate.ClientConfig{}, fmt.Errorf("api.base_url: invalid URL %q", base)
		}
	}
	return worldstate.ClientConfig{
		BaseURL:  cfg.API.BaseURL,
		Platform: cfg.API.Platform,
		Language: cfg.API.Language,
		Timeout:  timeout,
	}, nil
}

func mapLedgerConfig(cfg *config.Config) (ledger.Config, time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Ledger.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return ledger.Config{}, 0, fmt.Errorf("ledger.driver: unknown driver %q", cfg.Ledger.Driver)
	}
	busy, err := config.ParseDurationField("ledger.busy_timeout", cfg.Ledger.BusyTimeout)
	if err != nil {
		return ledger.Config{}, 0, err
	}
	retention, err := config.ParseDurationOrDefault("ledger.retention", cfg.Ledger.Retention, ledger.Retention)
	if err != nil {
		return ledger.Config{}, 0, err
	}
	path := strings.TrimSpace(cfg.Ledger.Path)
	if path == "" {
		path = "./state.json"
	}
	return ledger.Config{
		Driver:      cfg.Ledger.Driver,
		Path:        path,
		BusyTimeout: busy,
	}, retention, nil
}

func mapPollInterval(cfg *config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("poll_interval", cfg.PollInterval, watch.DefaultInterval)
}

func mapMetricsConfig(cfg *config.Config) metrics.Config {
	return metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
	}
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}
}

func validateWebhookURL(raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil // dry-run mode: poll and log without delivering
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook_url: invalid URL")
	}
	return nil
}
