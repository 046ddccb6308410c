package watch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tennowatch/internal/event"
	"tennowatch/internal/eventbus"
	"tennowatch/internal/ledger"
	"tennowatch/internal/notify"
	"tennowatch/internal/worldstate"
	logx "tennowatch/pkg/logx"
)

// fakeUpstream serves mutable per-path JSON documents.
type fakeUpstream struct {
	mu   sync.Mutex
	docs map[string]string
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{docs: map[string]string{
		"/pc/voidTraders": `[]`,
		"/pc/invasions":   `[]`,
		"/pc/fissures":    `[]`,
		"/pc":             `{}`,
	}}
}

func (u *fakeUpstream) set(path, doc string) {
	u.mu.Lock()
	u.docs[path] = doc
	u.mu.Unlock()
}

func (u *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	doc, ok := u.docs[r.URL.Path]
	u.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte(doc))
}

type testRig struct {
	upstream *fakeUpstream
	engine   *Engine
	store    ledger.Store
	posts    *atomic.Int32
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	up := newFakeUpstream()
	apiSrv := httptest.NewServer(up)
	t.Cleanup(apiSrv.Close)

	posts := &atomic.Int32{}
	whSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(whSrv.Close)

	store, err := ledger.Open(ledger.Config{Path: filepath.Join(t.TempDir(), "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	poller := worldstate.NewPoller(worldstate.NewClient(worldstate.ClientConfig{BaseURL: apiSrv.URL}), logx.Nop())
	webhook := notify.NewWebhook(whSrv.URL, logx.Nop())
	engine := NewEngine(poller, webhook, store, eventbus.New(), logx.Nop())

	return &testRig{upstream: up, engine: engine, store: store, posts: posts}
}

func (r *testRig) run(t *testing.T) {
	t.Helper()
	r.engine.RunOnce(context.Background(), NopSink)
}

func TestEngineInvasionDedup(t *testing.T) {
	rig := newTestRig(t)
	rig.upstream.set("/pc/invasions", `[
		{"id": "inv-rare", "node": "Sover (Earth)",
		 "attacker": {"reward": {"items": [{"uniqueName": "/Lotus/Types/OrokinReactorItem"}]}},
		 "defender": {"reward": {}}},
		{"id": "inv-common", "node": "Ose (Europa)",
		 "attacker": {"reward": {"items": [{"uniqueName": "/Lotus/Types/Items/Fieldron"}]}},
		 "defender": {"reward": {}}}
	]`)

	rig.run(t)
	if got := rig.posts.Load(); got != 1 {
		t.Fatalf("first cycle: expected 1 delivery (rare only), got %d", got)
	}
	if !rig.store.Seen(event.InvasionKey("inv-rare")) {
		t.Fatalf("rare invasion must be marked")
	}
	if rig.store.Seen(event.InvasionKey("inv-common")) {
		t.Fatalf("non-rare invasion must never reach the ledger")
	}

	rig.run(t)
	if got := rig.posts.Load(); got != 1 {
		t.Fatalf("second cycle: expected no new deliveries, got %d total", got)
	}
}

func TestEngineFissureWave(t *testing.T) {
	rig := newTestRig(t)
	fissure := func(id string) string {
		return `{"id": "` + id + `", "node": "Mot (Void)", "tier": "Axi", "missionType": "Survival",
			"isHard": true, "active": true, "expiry": "2099-01-01T00:00:00.000Z", "eta": "1h"}`
	}

	rig.upstream.set("/pc/fissures", `[`+fissure("f1")+`,`+fissure("f2")+`]`)
	rig.run(t)
	if got := rig.posts.Load(); got != 2 {
		t.Fatalf("first wave: expected 2 deliveries, got %d", got)
	}

	// Same wave again: no member is new, so nothing re-announces.
	rig.run(t)
	if got := rig.posts.Load(); got != 2 {
		t.Fatalf("repeat wave: expected 0 new deliveries, got %d total", got)
	}

	// One new member re-announces the whole wave, seen members included.
	rig.upstream.set("/pc/fissures", `[`+fissure("f1")+`,`+fissure("f2")+`,`+fissure("f3")+`]`)
	rig.run(t)
	if got := rig.posts.Load(); got != 5 {
		t.Fatalf("grown wave: expected all 3 members delivered, got %d total", got)
	}
	rig.run(t)
	if got := rig.posts.Load(); got != 5 {
		t.Fatalf("settled wave: expected no new deliveries, got %d total", got)
	}
}

func TestEngineTraderLifecycle(t *testing.T) {
	rig := newTestRig(t)
	future := time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339)
	far := time.Now().UTC().Add(30 * 24 * time.Hour).Format(time.RFC3339)
	expiry := time.Now().UTC().Add(40 * 24 * time.Hour).Format(time.RFC3339)

	rig.upstream.set("/pc/voidTraders", `[
		{"id": "baro1", "activation": "`+future+`", "expiry": "`+expiry+`"},
		{"id": "baro2", "activation": "`+far+`", "expiry": "`+expiry+`"}
	]`)

	rig.run(t)
	if got := rig.posts.Load(); got != 1 {
		t.Fatalf("expected one pre-announcement (baro2 is beyond the window), got %d", got)
	}
	if !rig.store.Seen(event.TraderPreKey("baro1")) || rig.store.Seen(event.TraderPreKey("baro2")) {
		t.Fatalf("unexpected ledger state after pre-announce")
	}

	rig.run(t)
	if got := rig.posts.Load(); got != 1 {
		t.Fatalf("pre-announcement must fire once, got %d total", got)
	}

	// Activation passes: the arrival is a distinct announcement.
	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	rig.upstream.set("/pc/voidTraders", `[{"id": "baro1", "active": true, "activation": "`+past+`", "expiry": "`+expiry+`"}]`)
	rig.run(t)
	if got := rig.posts.Load(); got != 2 {
		t.Fatalf("expected arrival announcement, got %d total", got)
	}
	if !rig.store.Seen(event.TraderArriveKey("baro1")) {
		t.Fatalf("arrival must be marked")
	}
	rig.run(t)
	if got := rig.posts.Load(); got != 2 {
		t.Fatalf("arrival must fire once, got %d total", got)
	}
}

func TestEngineWeatherStateDedup(t *testing.T) {
	rig := newTestRig(t)
	rig.upstream.set("/pc", `{
		"earthCycle": {"isDay": false, "expiry": "2099-01-01T12:00:00.000Z", "timeLeft": "3h"},
		"cetusCycle": {"isDay": true, "expiry": "2099-01-01T12:00:00.000Z"}
	}`)

	rig.run(t)
	if got := rig.posts.Load(); got != 1 {
		t.Fatalf("expected one weather delivery (earth only), got %d", got)
	}

	// Same state, same window: suppressed.
	rig.run(t)
	if got := rig.posts.Load(); got != 1 {
		t.Fatalf("unchanged weather must not re-announce, got %d total", got)
	}

	// State flips within a new window: announces again.
	rig.upstream.set("/pc", `{"earthCycle": {"isDay": true, "expiry": "2099-01-01T16:00:00.000Z", "timeLeft": "4h"}}`)
	rig.run(t)
	if got := rig.posts.Load(); got != 2 {
		t.Fatalf("state change must announce, got %d total", got)
	}
}

func TestEngineMarksOnDeliveryFailure(t *testing.T) {
	up := newFakeUpstream()
	apiSrv := httptest.NewServer(up)
	defer apiSrv.Close()

	var posts atomic.Int32
	whSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer whSrv.Close()

	store, err := ledger.Open(ledger.Config{Path: filepath.Join(t.TempDir(), "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	poller := worldstate.NewPoller(worldstate.NewClient(worldstate.ClientConfig{BaseURL: apiSrv.URL}), logx.Nop())
	engine := NewEngine(poller, notify.NewWebhook(whSrv.URL, logx.Nop()), store, nil, logx.Nop())

	up.set("/pc/invasions", `[{"id": "inv1", "node": "Sover (Earth)",
		"attacker": {"reward": {"items": [{"uniqueName": "/Lotus/FormaBlueprint"}]}},
		"defender": {"reward": {}}}]`)

	engine.RunOnce(context.Background(), NopSink)
	if posts.Load() != 1 {
		t.Fatalf("expected one attempt, got %d", posts.Load())
	}
	if !store.Seen(event.InvasionKey("inv1")) {
		t.Fatalf("failed delivery still consumes the event (at-most-once)")
	}

	engine.RunOnce(context.Background(), NopSink)
	if posts.Load() != 1 {
		t.Fatalf("no second attempt after failure, got %d", posts.Load())
	}
}

func TestEngineUnconfiguredWebhookSkips(t *testing.T) {
	up := newFakeUpstream()
	apiSrv := httptest.NewServer(up)
	defer apiSrv.Close()

	up.set("/pc/invasions", `[{"id": "inv1", "node": "Sover (Earth)",
		"attacker": {"reward": {"items": [{"uniqueName": "/Lotus/FormaBlueprint"}]}},
		"defender": {"reward": {}}}]`)

	store, err := ledger.Open(ledger.Config{Path: filepath.Join(t.TempDir(), "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	poller := worldstate.NewPoller(worldstate.NewClient(worldstate.ClientConfig{BaseURL: apiSrv.URL}), logx.Nop())
	engine := NewEngine(poller, notify.NewWebhook("", logx.Nop()), store, nil, logx.Nop())

	snap := engine.RunOnce(context.Background(), NopSink)
	if len(snap.Invasions) != 1 {
		t.Fatalf("detection still happens without a webhook, got %+v", snap.Invasions)
	}
	if store.Len() != 0 {
		t.Fatalf("nothing may be marked when notifications are skipped")
	}
}

func TestEngineForcePushBypassesLedger(t *testing.T) {
	rig := newTestRig(t)
	rig.upstream.set("/pc/invasions", `[{"id": "inv1", "node": "Sover (Earth)",
		"attacker": {"reward": {"items": [{"uniqueName": "/Lotus/FormaBlueprint"}]}},
		"defender": {"reward": {}}}]`)
	rig.upstream.set("/pc/fissures", `[{"id": "f1", "node": "Ani (Void)", "tier": "Neo",
		"missionType": "Capture", "isHard": true, "active": true,
		"expiry": "2099-01-01T00:00:00.000Z", "eta": "1h"}]`)

	rig.run(t)
	if got := rig.posts.Load(); got != 2 {
		t.Fatalf("expected 2 initial deliveries, got %d", got)
	}
	before := rig.store.Len()

	sent := rig.engine.ForcePush(context.Background(), NopSink)
	if sent != 2 {
		t.Fatalf("force push must resend the full snapshot, sent %d", sent)
	}
	if got := rig.posts.Load(); got != 4 {
		t.Fatalf("expected 4 total posts after force push, got %d", got)
	}
	if rig.store.Len() != before {
		t.Fatalf("force push must not touch the ledger")
	}
}

func TestEngineLastSnapshot(t *testing.T) {
	rig := newTestRig(t)
	rig.upstream.set("/pc", `{"earthCycle": {"isDay": true, "expiry": "2099-01-01T00:00:00.000Z"}}`)

	if snap := rig.engine.LastSnapshot(); len(snap.Cycles) != 0 {
		t.Fatalf("fresh engine must have an empty snapshot")
	}
	rig.run(t)
	if snap := rig.engine.LastSnapshot(); len(snap.Cycles) != 1 {
		t.Fatalf("snapshot must reflect the latest cycle, got %+v", snap)
	}
}

func TestEngineContainsPanic(t *testing.T) {
	// A nil poller makes the poll stage panic; the cycle must absorb it
	// and report a failed cycle instead of crashing the process.
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	engine := NewEngine(nil, notify.NewWebhook("", logx.Nop()), nil, bus, logx.Nop())
	engine.RunOnce(context.Background(), NopSink)

	select {
	case e := <-ch:
		cd, ok := e.Data.(eventbus.CycleDone)
		if !ok || !cd.Err {
			t.Fatalf("expected a failed cycle.done event, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("cycle.done never published after panic")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	rig := newTestRig(t)
	s := NewScheduler(rig.engine, time.Hour, NopSink, logx.Nop())

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // idempotent

	// The first cycle runs immediately, off the cron schedule.
	deadline := time.Now().Add(5 * time.Second)
	for rig.engine.LastSnapshot().Cycles == nil && rig.posts.Load() == 0 {
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	s.Stop(stopCtx) // idempotent
}
