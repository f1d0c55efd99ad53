// Package pipeline runs the decision chain shared by live trading and
// backtest replay: estimate, map, edge, size, allocate.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/brendanplayford/weatheredge/pkg/forecast"
	"github.com/brendanplayford/weatheredge/pkg/market"
	"github.com/brendanplayford/weatheredge/pkg/strategy"
)

// Config aggregates the per-component configuration records. It is passed
// explicitly into every evaluation; nothing is read ambiently.
type Config struct {
	Estimator forecast.Config
	Caps      strategy.Caps
}

// SnapshotProvider hands already-fetched snapshots to the pipeline. The live
// implementation fetches now; the backtest implementation replays history
// aligned at the entry time. No I/O happens inside the chain itself.
type SnapshotProvider interface {
	ForecastSeries(ctx context.Context, station string, day time.Time) (*forecast.Series, error)
	MarketSnapshot(ctx context.Context, station string, day time.Time) (*market.Snapshot, error)
}

// Result is the full audit trail of one station's cycle evaluation.
type Result struct {
	Station       string
	Day           time.Time
	Estimate      forecast.Estimate
	Probabilities []market.Probability
	Edges         []strategy.EdgeRecord
	Candidates    []strategy.Decision
}

// Evaluate runs the stateless part of the chain for one station: distribution
// estimate, bracket probabilities, edges, and sizing candidates. It reads
// budget snapshots from the aggregator but never mutates them, so evaluations
// for different stations may run in parallel.
func Evaluate(cfg Config, series *forecast.Series, snap *market.Snapshot, agg *strategy.Aggregator) (*Result, error) {
	est, err := cfg.Estimator.Estimate(series, snap.Date)
	if err != nil {
		return nil, fmt.Errorf("estimate %s: %w", snap.Station, err)
	}

	snap.SortQuotes()
	probs, err := market.MapEstimate(est, snap.Set())
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", snap.Station, err)
	}

	res := &Result{
		Station:  snap.Station,
		Day:      snap.Date,
		Estimate: est,
	}

	for i, q := range snap.Quotes {
		p := probs[i]
		p.Market = q.YesPrice
		res.Probabilities = append(res.Probabilities, p)

		rec := strategy.ComputeEdge(p, cfg.Caps.Fee, cfg.Caps.Slippage)
		res.Edges = append(res.Edges, rec)

		remMarket, remDaily := agg.Budget(q.Ticker)
		res.Candidates = append(res.Candidates, cfg.Caps.Size(rec, snap.Station, q.Ticker, q, remMarket, remDaily))
	}

	return res, nil
}

// CycleOutcome is the outcome of one full multi-station cycle.
type CycleOutcome struct {
	Results []*Result
	Final   []strategy.Decision

	// Skipped maps stations that could not be evaluated to the reason.
	Skipped map[string]string
}

// RunCycle evaluates all stations against the provider's snapshots and
// finalizes the combined candidate batch through the aggregator. Station
// evaluations run in parallel; allocation is serialized by the aggregator.
// Data faults skip the affected station and are recorded, never fatal.
func RunCycle(ctx context.Context, cfg Config, provider SnapshotProvider, stations []string, day time.Time, agg *strategy.Aggregator) (*CycleOutcome, error) {
	out := &CycleOutcome{Skipped: make(map[string]string)}

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, station := range stations {
		wg.Add(1)
		go func(station string) {
			defer wg.Done()

			res, err := evaluateStation(ctx, cfg, provider, station, day, agg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Skipped[station] = err.Error()
				return
			}
			out.Results = append(out.Results, res)
		}(station)
	}
	wg.Wait()

	// Canonical ordering: results follow the caller's station order so the
	// allocation batch is identical across replays regardless of scheduling.
	order := make(map[string]int, len(stations))
	for i, s := range stations {
		order[s] = i
	}
	sort.Slice(out.Results, func(i, j int) bool {
		return order[out.Results[i].Station] < order[out.Results[j].Station]
	})

	var batch []strategy.Decision
	for _, res := range out.Results {
		batch = append(batch, res.Candidates...)
	}
	out.Final = agg.Allocate(batch)

	return out, nil
}

func evaluateStation(ctx context.Context, cfg Config, provider SnapshotProvider, station string, day time.Time, agg *strategy.Aggregator) (*Result, error) {
	series, err := provider.ForecastSeries(ctx, station, day)
	if err != nil {
		return nil, fmt.Errorf("forecast snapshot: %w", err)
	}
	snap, err := provider.MarketSnapshot(ctx, station, day)
	if err != nil {
		return nil, fmt.Errorf("market snapshot: %w", err)
	}
	return Evaluate(cfg, series, snap, agg)
}
