// Package watch ties polling, deduplication, and delivery together into
// the periodic notification cycle.
package watch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"tennowatch/internal/event"
	"tennowatch/internal/eventbus"
	"tennowatch/internal/ledger"
	"tennowatch/internal/notify"
	"tennowatch/internal/worldstate"
	logx "tennowatch/pkg/logx"
)

const preAnnounceWindow = 3 * 24 * time.Hour

// Engine runs one poll→dedup→deliver→persist pass. It owns the dedup
// decisions; the ledger is its single cross-cycle state.
type Engine struct {
	poller  *worldstate.Poller
	webhook *notify.Webhook
	store   ledger.Store
	bus     eventbus.Bus
	log     logx.Logger

	retention time.Duration

	// mu serializes cycles: RunOnce is re-entrant for callers but runs
	// are strictly sequential, so the ledger only ever has one writer.
	mu   sync.Mutex
	last worldstate.Snapshot
}

func NewEngine(poller *worldstate.Poller, webhook *notify.Webhook, store ledger.Store, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		poller:    poller,
		webhook:   webhook,
		store:     store,
		bus:       bus,
		log:       log,
		retention: ledger.Retention,
	}
}

// SetRetention overrides the purge window. Call before Start; it is not
// synchronized against a running cycle.
func (e *Engine) SetRetention(d time.Duration) {
	if d > 0 {
		e.retention = d
	}
}

// RunOnce executes one full cycle and returns the candidate record
// collections. No error ever escapes: every failure is reported through
// the sink and the logger, and the next cycle proceeds normally.
func (e *Engine) RunOnce(ctx context.Context, sink Sink) (snap worldstate.Snapshot) {
	if sink == nil {
		sink = NopSink
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	failed := false
	delivered, purged := 0, 0

	defer func() {
		if r := recover(); r != nil {
			failed = true
			e.log.Error("cycle panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			sink(fmt.Sprintf("cycle aborted: %v", r), SevErr)
		}
		e.publishCycleDone(snap, delivered, purged, time.Since(started), failed)
	}()

	sink("polling upstream...", SevInfo)
	var issues []worldstate.Issue
	snap, issues = e.poller.Poll(ctx)
	for _, is := range issues {
		failed = true
		sink(fmt.Sprintf("fetch failed (%s): %v", is.Path, is.Err), SevErr)
		e.publishFetchError(is)
	}
	sink(fmt.Sprintf("refresh done: traders:%d rare invasions:%d fissures:%d cycles:%d",
		len(snap.Traders), len(snap.Invasions), len(snap.Fissures), len(snap.Cycles)), SevOK)

	e.last = snap

	delivered = e.notifyAll(ctx, snap, sink)

	purged = e.store.Purge(time.Now().Add(-e.retention))
	if purged > 0 {
		e.log.Debug("ledger purged", logx.Int("removed", purged), logx.Int("remaining", e.store.Len()))
	}
	if err := e.store.Flush(); err != nil {
		failed = true
		e.log.Error("ledger flush failed", logx.Err(err))
		sink(fmt.Sprintf("ledger flush failed: %v", err), SevErr)
	}
	return snap
}

// LastSnapshot returns the candidate collections from the most recent
// cycle, for panel rendering by the front-end.
func (e *Engine) LastSnapshot() worldstate.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// notifyAll walks the candidate sets in fixed category order (traders,
// invasions, fissures, weather) and upstream list order within each,
// delivering whatever the ledger has not seen yet.
func (e *Engine) notifyAll(ctx context.Context, snap worldstate.Snapshot, sink Sink) int {
	if !e.webhook.Configured() {
		sink("webhook not configured; skipping notifications", SevWarn)
		return 0
	}

	now := time.Now().UTC()
	sent := 0

	for _, t := range snap.Traders {
		if t.ID == "" {
			continue
		}
		// Pre-announcement: activation strictly in the future, at most 3
		// days out, announced once.
		preKey := event.TraderPreKey(t.ID)
		if !t.Activation.IsZero() && now.Before(t.Activation) &&
			t.Activation.Sub(now) <= preAnnounceWindow && !e.store.Seen(preKey) {
			if e.deliver(ctx, "trader_pre", notify.TraderPreMessage(t, now), sink) {
				sent++
			}
			e.store.Mark(preKey, now)
		}

		// Arrival: first cycle where the activation time has passed.
		arrKey := event.TraderArriveKey(t.ID)
		if !t.Activation.IsZero() && !now.Before(t.Activation) && !e.store.Seen(arrKey) {
			if e.deliver(ctx, "trader_arrive", notify.TraderArriveMessage(t, now), sink) {
				sent++
			}
			e.store.Mark(arrKey, now)
		}
	}

	for _, inv := range snap.Invasions {
		if inv.ID == "" {
			continue
		}
		key := event.InvasionKey(inv.ID)
		if e.store.Seen(key) {
			continue
		}
		if e.deliver(ctx, "invasion", notify.InvasionMessage(inv, now), sink) {
			sent++
		}
		e.store.Mark(key, now)
	}

	sent += e.announceFissureWave(ctx, snap.Fissures, now, sink)

	for _, c := range snap.Cycles {
		if c.Domain != worldstate.EarthDomain {
			continue
		}
		key := event.WeatherKey(c.Domain, c.State, c.ExpiryLabel)
		if e.store.Seen(key) {
			continue
		}
		if e.deliver(ctx, "weather", notify.WeatherMessage(c, now), sink) {
			sent++
		}
		e.store.Mark(key, now)
	}

	return sent
}

// announceFissureWave implements the batch-coupled fissure semantics:
// if any currently-active fissure id is unseen, the whole current wave
// is (re-)announced and every member is marked, including ones already
// marked. No new id, no messages.
func (e *Engine) announceFissureWave(ctx context.Context, fissures []event.Fissure, now time.Time, sink Sink) int {
	hasNew := false
	for _, f := range fissures {
		if f.ID != "" && !e.store.Seen(event.FissureKey(f.ID)) {
			hasNew = true
			break
		}
	}
	if !hasNew {
		return 0
	}

	sent := 0
	for _, f := range fissures {
		if e.deliver(ctx, "fissure", notify.FissureMessage(f, now), sink) {
			sent++
		}
		if f.ID != "" {
			e.store.Mark(event.FissureKey(f.ID), now)
		}
	}
	sink(fmt.Sprintf("fissure wave update pushed, %d items", len(fissures)), SevOK)
	return sent
}

// deliver sends one message and reports the outcome; delivery failures
// are terminal for the message (logged and dropped, never requeued).
func (e *Engine) deliver(ctx context.Context, category string, m notify.Message, sink Sink) bool {
	err := e.webhook.Send(ctx, m)
	ok := err == nil
	if ok {
		sink(fmt.Sprintf("delivered: %s", m.Title), SevOK)
	} else {
		var derr *notify.DeliveryError
		if errors.As(err, &derr) && derr.Kind == notify.DeliveryRateLimited {
			sink(fmt.Sprintf("dropped after repeated rate limit: %s", m.Title), SevErr)
		} else {
			sink(fmt.Sprintf("delivery failed: %s: %v", m.Title, err), SevErr)
		}
		e.log.Error("delivery failed", logx.String("category", category), logx.Err(err))
	}
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{
			Type: eventbus.TopicNotifySent,
			Data: eventbus.NotifySent{Category: category, OK: ok},
		})
	}
	return ok
}

// ForcePush re-delivers the latest snapshot unconditionally, without
// consulting or updating the ledger. It exists for the front-end's
// "push now" action and returns the number of delivered messages.
func (e *Engine) ForcePush(ctx context.Context, sink Sink) int {
	if sink == nil {
		sink = NopSink
	}
	e.mu.Lock()
	snap := e.last
	e.mu.Unlock()

	if !e.webhook.Configured() {
		sink("webhook not configured; nothing pushed", SevWarn)
		return 0
	}

	now := time.Now().UTC()
	sent := 0
	for _, t := range snap.Traders {
		m := notify.TraderPreMessage(t, now)
		if t.Active {
			m = notify.TraderArriveMessage(t, now)
		}
		if e.deliver(ctx, "trader_force", m, sink) {
			sent++
		}
	}
	for _, inv := range snap.Invasions {
		if e.deliver(ctx, "invasion_force", notify.InvasionMessage(inv, now), sink) {
			sent++
		}
	}
	for _, f := range snap.Fissures {
		if e.deliver(ctx, "fissure_force", notify.FissureMessage(f, now), sink) {
			sent++
		}
	}
	if sent > 0 {
		sink(fmt.Sprintf("force push complete, %d messages", sent), SevOK)
	} else {
		sink("nothing to push", SevWarn)
	}
	return sent
}

func (e *Engine) publishCycleDone(snap worldstate.Snapshot, delivered, purged int, took time.Duration, failed bool) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type: eventbus.TopicCycleDone,
		Data: eventbus.CycleDone{
			Traders:   len(snap.Traders),
			Invasions: len(snap.Invasions),
			Fissures:  len(snap.Fissures),
			Cycles:    len(snap.Cycles),
			Delivered: delivered,
			Purged:    purged,
			Duration:  took,
			Err:       failed,
		},
	})
}

func (e *Engine) publishFetchError(is worldstate.Issue) {
	if e.bus == nil {
		return
	}
	kind := "unknown"
	var ferr *worldstate.FetchError
	if errors.As(is.Err, &ferr) {
		kind = ferr.Kind.String()
	}
	e.bus.Publish(eventbus.Event{
		Type: eventbus.TopicFetchError,
		Data: eventbus.FetchFailed{Path: is.Path, Kind: kind},
	})
}
