// Package metrics exposes per-cycle operational counters over the
// standard Prometheus exposition endpoint. It observes the engine
// through the event bus so the cycle path never touches a registry.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tennowatch/internal/eventbus"
	logx "tennowatch/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string
}

const defaultAddr = "127.0.0.1:9464"

type Service struct {
	log logx.Logger
	cfg Config
	bus eventbus.Bus

	reg *prometheus.Registry

	cyclesTotal   *prometheus.CounterVec
	notifsTotal   *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	ledgerEntries prometheus.Gauge
	cycleDuration prometheus.Histogram

	mu    sync.Mutex
	srv   *http.Server
	unsub func()
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}

	reg := prometheus.NewRegistry()
	s := &Service{log: log, cfg: cfg, bus: bus, reg: reg}

	s.cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Name:      "cycles_total",
		Help:      "Completed poll cycles, by result.",
	}, []string{"result"})
	s.notifsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Name:      "notifications_total",
		Help:      "Webhook deliveries attempted, by category and result.",
	}, []string{"category", "result"})
	s.fetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watcher",
		Name:      "fetch_errors_total",
		Help:      "Upstream sub-fetch failures, by path and error kind.",
	}, []string{"path", "kind"})
	s.ledgerEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "watcher",
		Name:      "ledger_entries",
		Help:      "Entries currently held in the dedup ledger.",
	})
	s.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "watcher",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one full poll cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	reg.MustRegister(s.cyclesTotal, s.notifsTotal, s.fetchErrors, s.ledgerEntries, s.cycleDuration)
	return s
}

// SetLedgerSize updates the ledger gauge; the app wires this to the
// store after each cycle.
func (s *Service) SetLedgerSize(n int) { s.ledgerEntries.Set(float64(n)) }

// Start subscribes to the bus and, if enabled, serves /metrics.
func (s *Service) Start(ctx context.Context) error {
	if s.bus != nil {
		ch, unsub := s.bus.Subscribe(64)
		s.mu.Lock()
		s.unsub = unsub
		s.mu.Unlock()
		go s.consume(ctx, ch)
	}

	if !s.cfg.Enabled {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("metrics server stopped", logx.Err(err))
		}
	}()
	s.log.Info("metrics server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	unsub := s.unsub
	s.srv = nil
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
}

func (s *Service) consume(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.record(ev)
		}
	}
}

func (s *Service) record(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TopicCycleDone:
		d, ok := ev.Data.(eventbus.CycleDone)
		if !ok {
			return
		}
		result := "ok"
		if d.Err {
			result = "error"
		}
		s.cyclesTotal.WithLabelValues(result).Inc()
		s.cycleDuration.Observe(d.Duration.Seconds())
	case eventbus.TopicNotifySent:
		d, ok := ev.Data.(eventbus.NotifySent)
		if !ok {
			return
		}
		result := "ok"
		if !d.OK {
			result = "error"
		}
		s.notifsTotal.WithLabelValues(d.Category, result).Inc()
	case eventbus.TopicFetchError:
		d, ok := ev.Data.(eventbus.FetchFailed)
		if !ok {
			return
		}
		s.fetchErrors.WithLabelValues(d.Path, d.Kind).Inc()
	}
}
