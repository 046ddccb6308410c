// Package app wires configuration, logging, the ledger, the poller, and
// the notification engine into one runnable unit.
package app

import (
	"context"
	"time"

	"tennowatch/internal/config"
	"tennowatch/internal/eventbus"
	"tennowatch/internal/ledger"
	"tennowatch/internal/notify"
	"tennowatch/internal/observability/metrics"
	"tennowatch/internal/observability/pprof"
	"tennowatch/internal/runtime/supervisor"
	"tennowatch/internal/watch"
	"tennowatch/internal/worldstate"
	logx "tennowatch/pkg/logx"
)

// Options carries overrides the command layer resolved outside the
// config file. Core packages never read the environment; cmd does, and
// hands the result in here.
type Options struct {
	// WebhookURL, when non-empty, wins over the config file value.
	WebhookURL string
}

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store ledger.Store

	engine  *watch.Engine
	sched   *watch.Scheduler
	metrics *metrics.Service
	pprof   *pprof.Service
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	ledgerCfg, retention, err := mapLedgerConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(ledgerCfg, log.With(logx.String("comp", "ledger")))
	if err != nil {
		return nil, err
	}
	log.Info("ledger opened",
		logx.String("driver", orDefault(ledgerCfg.Driver, "file")),
		logx.String("path", ledgerCfg.Path),
		logx.Int("entries", store.Len()))

	clientCfg, err := mapClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	poller := worldstate.NewPoller(worldstate.NewClient(clientCfg), log.With(logx.String("comp", "worldstate")))

	webhookURL := cfg.WebhookURL
	if opts.WebhookURL != "" {
		webhookURL = opts.WebhookURL
	}
	if err := validateWebhookURL(webhookURL); err != nil {
		return nil, err
	}
	webhook := notify.NewWebhook(webhookURL, log.With(logx.String("comp", "notify")))
	if !webhook.Configured() {
		log.Warn("webhook_url not set; events will be detected and recorded but not delivered")
	}

	engine := watch.NewEngine(poller, webhook, store, bus, log.With(logx.String("comp", "watch")))
	engine.SetRetention(retention)

	interval, err := mapPollInterval(cfg)
	if err != nil {
		return nil, err
	}
	sched := watch.NewScheduler(engine, interval, watch.LogSink(log.With(logx.String("comp", "cycle"))), log.With(logx.String("comp", "scheduler")))

	metricsSvc := metrics.New(mapMetricsConfig(cfg), bus, log.With(logx.String("comp", "metrics")))
	pprofSvc := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		engine:  engine,
		sched:   sched,
		metrics: metricsSvc,
		pprof:   pprofSvc,
	}, nil
}

// Done is closed when the supervised context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error a supervised goroutine produced.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.FirstErr()
}

// RunOnce executes a single poll cycle synchronously. Used by the
// command layer's one-shot mode.
func (a *App) RunOnce(ctx context.Context) {
	a.engine.RunOnce(ctx, watch.LogSink(a.log))
}

// ForcePush re-sends the latest snapshot unconditionally, bypassing the
// dedup ledger. Wired to an operator signal in the command layer.
func (a *App) ForcePush(ctx context.Context) int {
	return a.engine.ForcePush(ctx, watch.LogSink(a.log))
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapPollInterval(cfg); err != nil {
			return err
		}
		if _, err := mapClientConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapLedgerConfig(cfg); err != nil {
			return err
		}
		return validateWebhookURL(cfg.WebhookURL)
	})

	if err := a.metrics.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.pprof.Start(a.sup.Context()); err != nil {
		return err
	}

	// Keep the ledger-size gauge current; piggyback on the cycle event.
	events, unsub := a.bus.Subscribe(64)
	a.sup.Go("eventbus.observe", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				if e.Type == eventbus.TopicCycleDone {
					a.metrics.SetLedgerSize(a.store.Len())
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(c, last, newCfg)
				last = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sched.Start(a.sup.Context())

	a.log.Info("started")
	return nil
}

// applyConfig hot-applies what can change live (logging, poll interval)
// and warns about sections that need a restart.
func (a *App) applyConfig(ctx context.Context, old, cfg *config.Config) {
	a.logs.Apply(mapLogConfig(cfg))

	if interval, err := mapPollInterval(cfg); err != nil {
		a.log.Warn("invalid poll_interval; keeping previous", logx.Err(err))
	} else {
		a.sched.SetInterval(ctx, interval)
	}

	if old != nil {
		if old.WebhookURL != cfg.WebhookURL {
			a.log.Warn("webhook_url changed; restart required")
		}
		if old.API != cfg.API {
			a.log.Warn("api config changed; restart required")
		}
		if old.Ledger != cfg.Ledger {
			a.log.Warn("ledger config changed; restart required")
		}
		if old.Metrics != cfg.Metrics {
			a.log.Warn("metrics config changed; restart required")
		}
		if old.Pprof != cfg.Pprof {
			a.log.Warn("pprof config changed; restart required")
		}
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		// Never started (one-shot mode): just release resources.
		err := a.store.Close()
		a.logs.Close()
		return err
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	a.sched.Stop(stopCtx)
	a.pprof.Stop(stopCtx)
	a.metrics.Stop(stopCtx)

	if err := a.store.Close(); err != nil {
		a.log.Warn("ledger close failed", logx.Err(err))
	}

	if err := a.sup.Wait(stopCtx); err != nil {
		a.log.Warn("supervised goroutines did not stop in time", logx.Err(err))
	}

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
