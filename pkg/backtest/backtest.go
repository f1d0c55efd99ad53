// Package backtest replays the live decision chain over historical snapshots
// aligned at a fixed entry time, with no look-ahead.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brendanplayford/weatheredge/pkg/forecast"
	"github.com/brendanplayford/weatheredge/pkg/market"
	"github.com/brendanplayford/weatheredge/pkg/pipeline"
	"github.com/brendanplayford/weatheredge/pkg/strategy"
)

// ErrNoSnapshot is returned by alignment when no snapshot falls inside the
// entry window for a feed.
var ErrNoSnapshot = errors.New("backtest: no snapshot within entry window")

// Config holds replay parameters on top of the shared pipeline configuration.
type Config struct {
	Pipeline pipeline.Config

	// EntryOffset is the fixed entry time as an offset from the trading day
	// start. Both feeds are aligned at this instant independently.
	EntryOffset time.Duration

	// Tolerance is how far past the entry time a snapshot may be and still
	// count as the entry snapshot.
	Tolerance time.Duration

	// Parallelism bounds concurrent day replays. Zero means one worker.
	Parallelism int
}

// TimedSeries is a historical forecast snapshot with its capture timestamp.
type TimedSeries struct {
	Time   time.Time
	Series *forecast.Series
}

// DayData is everything recorded for one (station, day): the snapshot history
// of both feeds and the realized ground truth.
type DayData struct {
	Station      string
	Day          time.Time
	Forecasts    []TimedSeries
	Markets      []*market.Snapshot
	RealizedHigh float64
	Settled      bool
}

// HistorySource supplies recorded day data. Implementations must not leak
// information newer than the requested day's snapshots.
type HistorySource interface {
	DayData(ctx context.Context, station string, day time.Time) (*DayData, error)
}

// alignForecast picks the earliest forecast snapshot at or after entry, within
// the tolerance window.
func alignForecast(snaps []TimedSeries, entry time.Time, tol time.Duration) (*forecast.Series, error) {
	sorted := make([]TimedSeries, len(snaps))
	copy(sorted, snaps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	for _, s := range sorted {
		if s.Time.Before(entry) {
			continue
		}
		if s.Time.After(entry.Add(tol)) {
			break
		}
		return s.Series, nil
	}
	return nil, fmt.Errorf("%w: forecast feed at %s", ErrNoSnapshot, entry.Format(time.RFC3339))
}

// alignMarket picks the earliest market snapshot at or after entry, within the
// tolerance window. The two feeds are aligned independently.
func alignMarket(snaps []*market.Snapshot, entry time.Time, tol time.Duration) (*market.Snapshot, error) {
	sorted := make([]*market.Snapshot, len(snaps))
	copy(sorted, snaps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	for _, s := range sorted {
		if s.Time.Before(entry) {
			continue
		}
		if s.Time.After(entry.Add(tol)) {
			break
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: market feed at %s", ErrNoSnapshot, entry.Format(time.RFC3339))
}

// replayProvider serves pre-aligned snapshots to the pipeline. By the time it
// is constructed nothing after the entry time is reachable.
type replayProvider struct {
	series  map[string]*forecast.Series
	markets map[string]*market.Snapshot
}

func (p *replayProvider) ForecastSeries(_ context.Context, station string, _ time.Time) (*forecast.Series, error) {
	s, ok := p.series[station]
	if !ok {
		return nil, fmt.Errorf("backtest: station %s not aligned", station)
	}
	return s, nil
}

func (p *replayProvider) MarketSnapshot(_ context.Context, station string, _ time.Time) (*market.Snapshot, error) {
	m, ok := p.markets[station]
	if !ok {
		return nil, fmt.Errorf("backtest: station %s not aligned", station)
	}
	return m, nil
}

// Engine replays the decision chain over a history source.
type Engine struct {
	cfg    Config
	source HistorySource
}

// NewEngine creates a backtest engine.
func NewEngine(cfg Config, source HistorySource) *Engine {
	return &Engine{cfg: cfg, source: source}
}

// Run replays the pipeline over [from, to] for the given stations and returns
// the accumulated results. Each day gets independent budget state, so days
// replay in parallel; a day with no aligned snapshots is recorded as a gap
// and the run continues.
func (e *Engine) Run(ctx context.Context, stations []string, from, to time.Time) (*Run, error) {
	cfg := e.cfg
	run := &Run{
		ID:       uuid.NewString(),
		From:     from,
		To:       to,
		Stations: stations,
	}

	workers := cfg.Parallelism
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		wg.Add(1)
		sem <- struct{}{}
		go func(day time.Time) {
			defer wg.Done()
			defer func() { <-sem }()

			res, gaps := e.replayDay(ctx, stations, day)
			mu.Lock()
			defer mu.Unlock()
			run.Gaps = append(run.Gaps, gaps...)
			if res != nil {
				run.Days = append(run.Days, *res)
			}
		}(day)
	}
	wg.Wait()

	sort.Slice(run.Days, func(i, j int) bool { return run.Days[i].Day.Before(run.Days[j].Day) })
	sort.Slice(run.Gaps, func(i, j int) bool { return run.Gaps[i].Day.Before(run.Gaps[j].Day) })
	run.Stats = computeStats(run.Days)

	return run, nil
}

// replayDay runs one day's cycle with fresh budget state and settles payoffs.
func (e *Engine) replayDay(ctx context.Context, stations []string, day time.Time) (*DayResult, []Gap) {
	cfg := e.cfg
	entry := day.Add(cfg.EntryOffset)

	provider := &replayProvider{
		series:  make(map[string]*forecast.Series),
		markets: make(map[string]*market.Snapshot),
	}
	realized := make(map[string]float64)
	var gaps []Gap
	var aligned []string

	for _, station := range stations {
		data, err := e.source.DayData(ctx, station, day)
		if err != nil {
			gaps = append(gaps, Gap{Station: station, Day: day, Reason: err.Error()})
			continue
		}
		if !data.Settled {
			gaps = append(gaps, Gap{Station: station, Day: day, Reason: "no realized outcome"})
			continue
		}

		series, err := alignForecast(data.Forecasts, entry, cfg.Tolerance)
		if err != nil {
			gaps = append(gaps, Gap{Station: station, Day: day, Reason: err.Error()})
			continue
		}
		snap, err := alignMarket(data.Markets, entry, cfg.Tolerance)
		if err != nil {
			gaps = append(gaps, Gap{Station: station, Day: day, Reason: err.Error()})
			continue
		}

		provider.series[station] = series
		provider.markets[station] = snap
		realized[station] = data.RealizedHigh
		aligned = append(aligned, station)
	}

	if len(aligned) == 0 {
		return nil, gaps
	}

	// Budget state is per day and never shared across days.
	agg := strategy.NewAggregator(strategy.NewBankrollState(day, cfg.Pipeline.Caps))
	out, err := pipeline.RunCycle(ctx, cfg.Pipeline, provider, aligned, day, agg)
	if err != nil {
		gaps = append(gaps, Gap{Day: day, Reason: err.Error()})
		return nil, gaps
	}
	for station, reason := range out.Skipped {
		gaps = append(gaps, Gap{Station: station, Day: day, Reason: reason})
	}

	res := &DayResult{Day: day, Realized: realized}
	for _, d := range out.Final {
		if !d.Accepted {
			res.Rejected = append(res.Rejected, d)
			continue
		}
		res.Outcomes = append(res.Outcomes, settle(d, realized[d.Station]))
	}
	return res, gaps
}

// settle computes the realized payoff of one accepted decision.
// A YES position wins when the realized high falls in the bracket; a NO
// position wins when it does not. A win pays notional x (1/p - 1), a loss
// costs the notional.
func settle(d strategy.Decision, realizedHigh float64) Outcome {
	inBracket := d.Bracket.Contains(realizedHigh)
	won := inBracket
	if d.Side == strategy.SideNo {
		won = !inBracket
	}

	o := Outcome{
		Decision: d,
		Won:      won,
		Expected: d.EV * d.Notional / d.Price,
	}
	if won {
		o.Payoff = d.Notional * (1/d.Price - 1)
	} else {
		o.Payoff = -d.Notional
	}
	return o
}
