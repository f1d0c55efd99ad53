package backtest

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/brendanplayford/weatheredge/pkg/forecast"
	"github.com/brendanplayford/weatheredge/pkg/market"
	"github.com/brendanplayford/weatheredge/pkg/pipeline"
	"github.com/brendanplayford/weatheredge/pkg/strategy"
)

type mapSource struct {
	data map[string]*DayData // "station|date" -> data
}

func key(station string, day time.Time) string {
	return station + "|" + day.Format("2006-01-02")
}

func (m *mapSource) DayData(_ context.Context, station string, day time.Time) (*DayData, error) {
	d, ok := m.data[key(station, day)]
	if !ok {
		return nil, fmt.Errorf("no data for %s %s", station, day.Format("2006-01-02"))
	}
	return d, nil
}

func testConfig() Config {
	return Config{
		Pipeline: pipeline.Config{
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
		},
		EntryOffset: 14 * time.Hour,
		Tolerance:   time.Hour,
		Parallelism: 4,
	}
}

func seriesAt(station string, ts time.Time, peak float64) TimedSeries {
	s := &forecast.Series{Station: station, IssuedAt: ts}
	start := ts.Add(-24 * time.Hour)
	for i := 0; i < 24; i++ {
		temp := peak - 8
		if i == 14 {
			temp = peak
		}
		s.Points = append(s.Points, forecast.Point{Time: start.Add(time.Duration(i) * time.Hour), Temp: temp})
	}
	return TimedSeries{Time: ts, Series: s}
}

func snapshotAt(station string, day, ts time.Time, prices []float64) *market.Snapshot {
	bounds := []market.Bracket{
		{Lower: -999, Upper: 58},
		{Lower: 58, Upper: 60},
		{Lower: 60, Upper: 62},
		{Lower: 62, Upper: 64},
		{Lower: 64, Upper: 999},
	}
	snap := &market.Snapshot{Station: station, EventTicker: "KXHIGH" + station, Date: day, Time: ts}
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

// dayData builds a day with snapshots before, at, and after the entry time.
// The pre- and post-entry snapshots carry deliberately different values so a
// look-ahead (or look-behind) bug changes the decisions.
func dayData(station string, day time.Time, includeLate bool) *DayData {
	entry := day.Add(14 * time.Hour)
	d := &DayData{
		Station:      station,
		Day:          day,
		RealizedHigh: 61,
		Settled:      true,
		Forecasts: []TimedSeries{
			seriesAt(station, entry.Add(-3*time.Hour), 75),
			seriesAt(station, entry.Add(10*time.Minute), 61),
		},
		Markets: []*market.Snapshot{
			snapshotAt(station, day, entry.Add(-2*time.Hour), []float64{0.40, 0.30, 0.15, 0.10, 0.05}),
			snapshotAt(station, day, entry.Add(5*time.Minute), []float64{0.05, 0.15, 0.25, 0.30, 0.25}),
		},
	}
	if includeLate {
		d.Forecasts = append(d.Forecasts, seriesAt(station, entry.Add(4*time.Hour), 40))
		d.Markets = append(d.Markets, snapshotAt(station, day, entry.Add(5*time.Hour), []float64{0.99, 0.002, 0.002, 0.002, 0.004}))
	}
	return d
}

func TestRun_AlignsAtEntryTime(t *testing.T) {
	day := time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC)
	src := &mapSource{data: map[string]*DayData{
		key("LAX", day): dayData("LAX", day, true),
	}}

	run, err := NewEngine(testConfig(), src).Run(context.Background(), []string{"LAX"}, day, day)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(run.Days) != 1 {
		t.Fatalf("got %d day results, want 1", len(run.Days))
	}
	if len(run.Days[0].Outcomes) == 0 {
		t.Fatal("expected accepted decisions from the entry snapshot")
	}
	// The entry forecast peaks at 61; a decision driven by the stale 75 or the
	// late 40 forecast would target different brackets.
	for _, o := range run.Days[0].Outcomes {
		if o.Decision.Side == strategy.SideYes && o.Decision.Bracket.Lower >= 64 {
			t.Errorf("decision %+v reflects the pre-entry forecast", o.Decision)
		}
	}
}

func TestRun_NoLookAhead(t *testing.T) {
	day := time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC)

	withLate := &mapSource{data: map[string]*DayData{key("LAX", day): dayData("LAX", day, true)}}
	withoutLate := &mapSource{data: map[string]*DayData{key("LAX", day): dayData("LAX", day, false)}}

	runA, err := NewEngine(testConfig(), withLate).Run(context.Background(), []string{"LAX"}, day, day)
	if err != nil {
		t.Fatal(err)
	}
	runB, err := NewEngine(testConfig(), withoutLate).Run(context.Background(), []string{"LAX"}, day, day)
	if err != nil {
		t.Fatal(err)
	}

	a, b := runA.Days[0].Outcomes, runB.Days[0].Outcomes
	if len(a) != len(b) {
		t.Fatalf("decision counts differ with post-entry data removed: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("outcome %d differs with post-entry data removed:\n  %+v\n  %+v", i, a[i], b[i])
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	from := time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 4)

	build := func() HistorySource {
		src := &mapSource{data: make(map[string]*DayData)}
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			src.data[key("LAX", day)] = dayData("LAX", day, true)
			src.data[key("DEN", day)] = dayData("DEN", day, true)
		}
		return src
	}

	runA, err := NewEngine(testConfig(), build()).Run(context.Background(), []string{"LAX", "DEN"}, from, to)
	if err != nil {
		t.Fatal(err)
	}
	runB, err := NewEngine(testConfig(), build()).Run(context.Background(), []string{"LAX", "DEN"}, from, to)
	if err != nil {
		t.Fatal(err)
	}

	if runA.Stats.Decisions != runB.Stats.Decisions ||
		runA.Stats.PnL != runB.Stats.PnL ||
		runA.Stats.Staked != runB.Stats.Staked {
		t.Errorf("replays differ: %+v vs %+v", runA.Stats, runB.Stats)
	}
}

func TestRun_RecordsGapsAndContinues(t *testing.T) {
	from := time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 2)

	src := &mapSource{data: make(map[string]*DayData)}
	src.data[key("LAX", from)] = dayData("LAX", from, false)
	// Day 2: snapshots exist but all fall outside the entry window.
	stale := dayData("LAX", from.AddDate(0, 0, 1), false)
	stale.Forecasts = stale.Forecasts[:1]
	src.data[key("LAX", from.AddDate(0, 0, 1))] = stale
	// Day 3: missing entirely.

	run, err := NewEngine(testConfig(), src).Run(context.Background(), []string{"LAX"}, from, to)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(run.Days) != 1 {
		t.Errorf("got %d replayed days, want 1", len(run.Days))
	}
	if len(run.Gaps) != 2 {
		t.Errorf("got %d gaps, want 2: %+v", len(run.Gaps), run.Gaps)
	}
}

func TestSettle(t *testing.T) {
	bracket := market.Bracket{Lower: 60, Upper: 62}
	base := strategy.Decision{
		Bracket:  bracket,
		Price:    0.25,
		Notional: 100,
		Accepted: true,
	}

	tests := []struct {
		name     string
		side     strategy.Side
		realized float64
		wantWon  bool
		wantPay  float64
	}{
		{"yes wins inside", strategy.SideYes, 61, true, 300},  // 100 * (1/0.25 - 1)
		{"yes loses outside", strategy.SideYes, 64, false, -100},
		{"yes loses at upper bound", strategy.SideYes, 62, false, -100},
		{"no wins outside", strategy.SideNo, 64, true, 300},
		{"no loses inside", strategy.SideNo, 61, false, -100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			d.Side = tt.side
			o := settle(d, tt.realized)
			if o.Won != tt.wantWon {
				t.Errorf("Won = %v, want %v", o.Won, tt.wantWon)
			}
			if math.Abs(o.Payoff-tt.wantPay) > 1e-9 {
				t.Errorf("Payoff = %v, want %v", o.Payoff, tt.wantPay)
			}
		})
	}
}

func TestComputeStats(t *testing.T) {
	day := time.Date(2025, time.July, 14, 0, 0, 0, 0, time.UTC)
	days := []DayResult{{
		Day: day,
		Outcomes: []Outcome{
			{Decision: strategy.Decision{Bracket: market.Bracket{Lower: 60, Upper: 62}, Notional: 100}, Won: true, Payoff: 300, Expected: 40},
			{Decision: strategy.Decision{Bracket: market.Bracket{Lower: 62, Upper: 64}, Notional: 50}, Won: false, Payoff: -50, Expected: 10},
		},
	}}

	st := computeStats(days)
	if st.Decisions != 2 || st.Wins != 1 {
		t.Errorf("Decisions=%d Wins=%d, want 2, 1", st.Decisions, st.Wins)
	}
	if st.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", st.HitRate)
	}
	if st.Staked != 150 || st.PnL != 250 {
		t.Errorf("Staked=%v PnL=%v, want 150, 250", st.Staked, st.PnL)
	}
	if math.Abs(st.ROI-250.0/150.0) > 1e-12 {
		t.Errorf("ROI = %v", st.ROI)
	}
	if st.ExpectedEV != 50 || st.RealizedEV != 250 {
		t.Errorf("ExpectedEV=%v RealizedEV=%v", st.ExpectedEV, st.RealizedEV)
	}
	if len(st.PerBracket) != 2 {
		t.Errorf("PerBracket has %d entries, want 2", len(st.PerBracket))
	}
}
