package worldstate

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"tennowatch/internal/event"
	logx "tennowatch/pkg/logx"
)

// Snapshot holds whatever categories one poll produced. Any subset may
// be empty; a failed sub-fetch empties its slot without failing the
// others. The snapshot is owned by one cycle only.
type Snapshot struct {
	Traders   []event.Trader
	Invasions []event.Invasion
	Fissures  []event.Fissure
	Cycles    []event.Cycle
}

// Issue records one sub-fetch failure for the caller's logging sink.
type Issue struct {
	Path string
	Err  error
}

const defaultJoinTimeout = 20 * time.Second

// Poller runs the per-category fetch+normalize pipelines.
type Poller struct {
	client      *Client
	log         logx.Logger
	joinTimeout time.Duration
}

func NewPoller(client *Client, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{client: client, log: log, joinTimeout: defaultJoinTimeout}
}

// Poll fetches and normalizes all categories. The three sub-resource
// pipelines run concurrently under a shared deadline; a pipeline that
// misses the deadline contributes an empty slice, never an error. The
// cycles document is fetched on its own direct call so its failure is
// isolated from the join.
func (p *Poller) Poll(ctx context.Context) (Snapshot, []Issue) {
	now := time.Now().UTC()

	var snap Snapshot
	issues := make([]Issue, 0, 2)

	jctx, cancel := context.WithTimeout(ctx, p.joinTimeout)
	defer cancel()

	var (
		g                                  errgroup.Group
		traderErr, invasionErr, fissureErr error
	)
	g.Go(func() error {
		raw, err := p.client.Get(jctx, "voidTraders")
		if err != nil {
			traderErr = err
			return nil
		}
		snap.Traders = NormalizeTraders(raw, now)
		return nil
	})
	g.Go(func() error {
		raw, err := p.client.Get(jctx, "invasions")
		if err != nil {
			invasionErr = err
			return nil
		}
		snap.Invasions = NormalizeInvasions(raw, now)
		return nil
	})
	g.Go(func() error {
		raw, err := p.client.Get(jctx, "fissures")
		if err != nil {
			fissureErr = err
			return nil
		}
		snap.Fissures = NormalizeFissures(raw, now)
		return nil
	})
	_ = g.Wait()

	for _, it := range []Issue{
		{Path: "voidTraders", Err: traderErr},
		{Path: "invasions", Err: invasionErr},
		{Path: "fissures", Err: fissureErr},
	} {
		if it.Err != nil {
			p.log.Warn("sub-fetch failed", logx.String("path", it.Path), logx.Err(it.Err))
			issues = append(issues, it)
		}
	}

	// Cycles come from the root world-state document, outside the join.
	raw, err := p.fetchCycles(ctx)
	if err != nil {
		p.log.Warn("cycle fetch failed", logx.Err(err))
		issues = append(issues, Issue{Path: "worldstate", Err: err})
	} else {
		snap.Cycles = NormalizeCycles(raw, now)
	}

	return snap, issues
}

func (p *Poller) fetchCycles(ctx context.Context) (json.RawMessage, error) {
	cctx, cancel := context.WithTimeout(ctx, p.joinTimeout)
	defer cancel()
	return p.client.Get(cctx, "")
}
