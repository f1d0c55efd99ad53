package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brendanplayford/weatheredge/pkg/forecast"
	"github.com/brendanplayford/weatheredge/pkg/market"
	"github.com/brendanplayford/weatheredge/pkg/strategy"
)

type fakeProvider struct {
	series  map[string]*forecast.Series
	markets map[string]*market.Snapshot
}

func (f *fakeProvider) ForecastSeries(_ context.Context, station string, _ time.Time) (*forecast.Series, error) {
	s, ok := f.series[station]
	if !ok {
		return nil, fmt.Errorf("no forecast for %s", station)
	}
	return s, nil
}

func (f *fakeProvider) MarketSnapshot(_ context.Context, station string, _ time.Time) (*market.Snapshot, error) {
	m, ok := f.markets[station]
	if !ok {
		return nil, fmt.Errorf("no market for %s", station)
	}
	return m, nil
}

func testConfig() Config {
	return Config{
		Estimator: forecast.DefaultConfig(),
		Caps: strategy.Caps{
			FMax:         0.10,
			BankrollUnit: 1000,
			PerMarketCap: 500,
			DailyCap:     1000,
			MinEdge:      0.05,
			MinLiquidity: 10,
			Fee:          0.005,
			Slippage:     0.003,
		},
	}
}

func series(station string, peak float64) *forecast.Series {
	start := time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC)
	s := &forecast.Series{Station: station, IssuedAt: start}
	for i := 0; i < 24; i++ {
		temp := peak - 8
		if i == 14 {
			temp = peak
		}
		s.Points = append(s.Points, forecast.Point{Time: start.Add(time.Duration(i) * time.Hour), Temp: temp})
	}
	return s
}

func snapshot(station string) *market.Snapshot {
	day := time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC)
	bounds := []market.Bracket{
		{Lower: -999, Upper: 58},
		{Lower: 58, Upper: 60},
		{Lower: 60, Upper: 62},
		{Lower: 62, Upper: 64},
		{Lower: 64, Upper: 999},
	}
	snap := &market.Snapshot{Station: station, EventTicker: "KXHIGH" + station, Date: day, Time: day.Add(14 * time.Hour)}
	prices := []float64{0.05, 0.15, 0.25, 0.30, 0.25}
	for i, b := range bounds {
		snap.Quotes = append(snap.Quotes, market.Quote{
			Ticker:    fmt.Sprintf("%s-B%d", snap.EventTicker, i),
			Bracket:   b,
			YesPrice:  prices[i],
			NoPrice:   1 - prices[i],
			Liquidity: 5000,
		})
	}
	return snap
}

func TestRunCycle(t *testing.T) {
	cfg := testConfig()
	provider := &fakeProvider{
		series:  map[string]*forecast.Series{"LAX": series("LAX", 61), "DEN": series("DEN", 63)},
		markets: map[string]*market.Snapshot{"LAX": snapshot("LAX"), "DEN": snapshot("DEN")},
	}
	day := time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC)
	agg := strategy.NewAggregator(strategy.NewBankrollState(day, cfg.Caps))

	out, err := RunCycle(context.Background(), cfg, provider, []string{"LAX", "DEN"}, day, agg)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if len(out.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(out.Results))
	}
	for _, res := range out.Results {
		var sum float64
		for _, p := range res.Probabilities {
			sum += p.Model
		}
		if diff := sum - 1; diff > market.ProbSumTol || diff < -market.ProbSumTol {
			t.Errorf("%s probabilities sum to %v", res.Station, sum)
		}
	}

	var total float64
	accepted := 0
	for _, d := range out.Final {
		if d.Accepted {
			accepted++
			total += d.Notional
		}
	}
	if accepted == 0 {
		t.Error("expected at least one accepted decision")
	}
	if total > cfg.Caps.DailyCap {
		t.Errorf("allocated %v over daily cap %v", total, cfg.Caps.DailyCap)
	}
}

func TestRunCycle_SkipsStationWithBadData(t *testing.T) {
	cfg := testConfig()
	short := series("LAX", 61)
	short.Points = short.Points[:6]

	provider := &fakeProvider{
		series:  map[string]*forecast.Series{"LAX": short, "DEN": series("DEN", 63)},
		markets: map[string]*market.Snapshot{"LAX": snapshot("LAX"), "DEN": snapshot("DEN")},
	}
	day := time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC)
	agg := strategy.NewAggregator(strategy.NewBankrollState(day, cfg.Caps))

	out, err := RunCycle(context.Background(), cfg, provider, []string{"LAX", "DEN"}, day, agg)
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if len(out.Results) != 1 || out.Results[0].Station != "DEN" {
		t.Errorf("expected only DEN evaluated, got %d results", len(out.Results))
	}
	if _, ok := out.Skipped["LAX"]; !ok {
		t.Error("LAX skip not recorded")
	}
}

func TestRunCycle_Deterministic(t *testing.T) {
	cfg := testConfig()
	day := time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC)

	run := func() []strategy.Decision {
		provider := &fakeProvider{
			series:  map[string]*forecast.Series{"LAX": series("LAX", 61)},
			markets: map[string]*market.Snapshot{"LAX": snapshot("LAX")},
		}
		agg := strategy.NewAggregator(strategy.NewBankrollState(day, cfg.Caps))
		out, err := RunCycle(context.Background(), cfg, provider, []string{"LAX"}, day, agg)
		if err != nil {
			t.Fatal(err)
		}
		return out.Final
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("decision counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("decision %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
