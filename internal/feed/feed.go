// Package feed wires the live forecast and market collaborators into the
// snapshot provider the decision pipeline consumes.
package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/brendanplayford/weatheredge/internal/storage"
	"github.com/brendanplayford/weatheredge/pkg/forecast"
	"github.com/brendanplayford/weatheredge/pkg/kalshi"
	"github.com/brendanplayford/weatheredge/pkg/market"
	"github.com/brendanplayford/weatheredge/pkg/weather"
)

// LiveProvider fetches fresh snapshots from the forecast and market APIs.
type LiveProvider struct {
	Weather *weather.Client
	Markets *kalshi.Client
}

func (p *LiveProvider) ForecastSeries(ctx context.Context, station string, day time.Time) (*forecast.Series, error) {
	return p.Weather.ForecastSeries(ctx, station, day)
}

func (p *LiveProvider) MarketSnapshot(ctx context.Context, station string, day time.Time) (*market.Snapshot, error) {
	return p.Markets.EventSnapshot(ctx, station, day)
}

// Recorder wraps a provider and persists every fetched snapshot, building
// the history that later feeds backtests. Persistence failures are logged
// but never block the cycle.
type Recorder struct {
	Provider interface {
		ForecastSeries(ctx context.Context, station string, day time.Time) (*forecast.Series, error)
		MarketSnapshot(ctx context.Context, station string, day time.Time) (*market.Snapshot, error)
	}
	Store *storage.Store
	Log   zerolog.Logger
}

func (r *Recorder) ForecastSeries(ctx context.Context, station string, day time.Time) (*forecast.Series, error) {
	series, err := r.Provider.ForecastSeries(ctx, station, day)
	if err != nil {
		return nil, err
	}
	if err := r.Store.SaveForecastSnapshot(ctx, day, time.Now().UTC(), series); err != nil {
		r.Log.Warn().Err(err).Str("station", station).Msg("persist forecast snapshot failed")
	}
	return series, nil
}

func (r *Recorder) MarketSnapshot(ctx context.Context, station string, day time.Time) (*market.Snapshot, error) {
	snap, err := r.Provider.MarketSnapshot(ctx, station, day)
	if err != nil {
		return nil, err
	}
	if err := r.Store.SaveMarketSnapshot(ctx, day, snap); err != nil {
		r.Log.Warn().Err(err).Str("station", station).Msg("persist market snapshot failed")
	}
	return snap, nil
}
