package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "tennowatch/pkg/logx"
)

// DefaultInterval is the headless poll period.
const DefaultInterval = 60 * time.Second

// Scheduler drives Engine.RunOnce on a fixed interval. A cycle that
// fails in any way is contained at this boundary; the next tick always
// happens.
type Scheduler struct {
	engine *Engine
	sink   Sink
	log    logx.Logger

	mu       sync.Mutex
	interval time.Duration
	c        *cron.Cron
	runCtx   context.Context
	cancel   context.CancelFunc
}

func NewScheduler(engine *Engine, interval time.Duration, sink Sink, log logx.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if sink == nil {
		sink = NopSink
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{engine: engine, sink: sink, log: log, interval: interval}
}

// Start begins the periodic loop. The first cycle runs immediately;
// cron fires subsequent ones. Start is idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	runCtx := s.runCtx

	s.c = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.c.AddFunc(spec, func() { s.runCycle(runCtx) }); err != nil {
		// @every specs only fail on a non-positive duration, which the
		// constructor already rejected.
		s.log.Error("schedule registration failed", logx.String("spec", spec), logx.Err(err))
		return
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Duration("interval", s.interval))

	go s.runCycle(runCtx)
}

// Stop halts the loop and waits for a running cycle to finish, bounded
// by ctx. Stop is idempotent.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	stopped := c.Stop() // waits for running jobs via its context
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("scheduler stopped")
}

// SetInterval applies a new poll period. A running scheduler is
// restarted in place.
func (s *Scheduler) SetInterval(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.mu.Lock()
	changed := interval != s.interval
	running := s.c != nil
	s.interval = interval
	s.mu.Unlock()

	if !changed || !running {
		return
	}
	s.Stop(ctx)
	s.Start(ctx)
	s.log.Info("poll interval updated", logx.Duration("interval", interval))
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// RunOnce contains its own panic recovery; this is the outermost
	// belt so a broken engine still cannot kill the cron thread.
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cycle escaped engine recovery", logx.Any("panic", r))
		}
	}()
	s.engine.RunOnce(ctx, s.sink)
}
