// Command trader runs the paper trading loop: periodic decision cycles
// inside the trading window, live quote refresh over WebSocket, and
// settlement of past days against observed highs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/brendanplayford/weatheredge/internal/config"
	"github.com/brendanplayford/weatheredge/internal/feed"
	"github.com/brendanplayford/weatheredge/internal/logging"
	"github.com/brendanplayford/weatheredge/internal/metrics"
	"github.com/brendanplayford/weatheredge/internal/storage"
	"github.com/brendanplayford/weatheredge/pkg/kalshi"
	"github.com/brendanplayford/weatheredge/pkg/market"
	"github.com/brendanplayford/weatheredge/pkg/pipeline"
	"github.com/brendanplayford/weatheredge/pkg/strategy"
	"github.com/brendanplayford/weatheredge/pkg/weather"
)

var configPath = flag.String("config", "config.yaml", "Path to config file")

type trader struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *storage.Store
	weather  *weather.Client
	markets  *kalshi.Client
	provider pipeline.SnapshotProvider
	rec      *metrics.Recorder

	day time.Time
	agg *strategy.Aggregator
}

func main() {
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create data directory")
	}
	store, err := storage.NewStore(cfg.Storage.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New()
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	wc := weather.NewClient(nil, log)
	kc := kalshi.New(kalshi.WithLogger(log))

	t := &trader{
		cfg:     cfg,
		log:     log,
		store:   store,
		weather: wc,
		markets: kc,
		provider: &feed.Recorder{
			Provider: &feed.LiveProvider{Weather: wc, Markets: kc},
			Store:    store,
			Log:      log,
		},
		rec: rec,
	}

	log.Info().
		Strs("stations", cfg.Stations).
		Dur("poll", cfg.Trading.PollInterval).
		Msg("trader starting")

	t.run(ctx)
	log.Info().Msg("trader stopped")
}

func (t *trader) run(ctx context.Context) {
	// Settle anything left over from previous sessions before trading.
	t.settleOpen(ctx)

	stream := kalshi.NewStream(t.markets, t.log)
	if err := stream.Connect(ctx); err != nil {
		t.log.Warn().Err(err).Msg("quote stream unavailable, polling only")
		stream = nil
	} else {
		defer stream.Close()
	}

	var updates <-chan kalshi.TickerUpdate
	if stream != nil {
		updates = stream.Updates()
	}

	ticker := time.NewTicker(t.cfg.Trading.PollInterval)
	defer ticker.Stop()

	// Re-run at most this often when quote updates arrive between polls.
	const refreshDebounce = 30 * time.Second
	var lastCycle time.Time

	t.cycle(ctx, stream)
	lastCycle = time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cycle(ctx, stream)
			lastCycle = time.Now()
		case upd, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			t.log.Debug().Str("ticker", upd.Ticker).Int("yes_ask", upd.YesAsk).Msg("quote update")
			if time.Since(lastCycle) >= refreshDebounce {
				t.cycle(ctx, stream)
				lastCycle = time.Now()
			}
		}
	}
}

// cycle evaluates all stations once if inside the trading window.
func (t *trader) cycle(ctx context.Context, stream *kalshi.Stream) {
	now := time.Now()
	hour := now.Hour()
	if hour < t.cfg.Trading.StartHour || hour >= t.cfg.Trading.EndHour {
		t.log.Debug().Int("hour", hour).Msg("outside trading window")
		return
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if t.agg == nil || !day.Equal(t.day) {
		if t.agg != nil {
			t.settleOpen(ctx)
		}
		t.day = day
		t.agg = strategy.NewAggregator(strategy.NewBankrollState(day, t.cfg.StrategyCaps()))
		t.log.Info().Time("day", day).Msg("new trading day")
	}

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, t.cfg.Trading.PollInterval)
	defer cancel()

	out, err := pipeline.RunCycle(cctx, t.cfg.PipelineConfig(), t.provider, t.cfg.Stations, day, t.agg)
	if err != nil {
		t.log.Error().Err(err).Msg("cycle failed")
		if t.rec != nil {
			t.rec.CycleEvaluated("error", time.Since(start))
		}
		return
	}

	for station, reason := range out.Skipped {
		t.log.Warn().Str("station", station).Str("reason", reason).Msg("station skipped")
	}

	var tickers []string
	for _, res := range out.Results {
		for _, d := range res.Candidates {
			tickers = append(tickers, d.Ticker)
			if t.rec != nil {
				t.rec.ModelProbability(d.Ticker, d.Price+d.Edge)
			}
		}
	}
	if stream != nil && len(tickers) > 0 {
		if err := stream.Subscribe(tickers...); err != nil {
			t.log.Debug().Err(err).Msg("stream subscribe failed")
		}
	}

	for _, d := range out.Final {
		if t.rec != nil {
			t.rec.Decision(d.Station, d.Reason, d.Accepted, d.Notional)
		}
		if !d.Accepted {
			continue
		}

		recRow := &storage.DecisionRecord{
			Day:          day,
			Station:      d.Station,
			EventTicker:  eventTickerFor(d.Station, day),
			Ticker:       d.Ticker,
			Bracket:      d.Bracket.Label(d.Bracket.Lower <= market.TailLower, d.Bracket.Upper >= market.TailUpper),
			BracketLower: d.Bracket.Lower,
			BracketUpper: d.Bracket.Upper,
			Side:         string(d.Side),
			Price:        d.Price,
			Edge:         d.Edge,
			EV:           d.EV,
			Fraction:     d.Fraction,
			Notional:     d.Notional,
			Accepted:     true,
			Reduced:      d.Reduced,
			Reason:       d.Reason,
			CreatedAt:    time.Now().UTC(),
		}
		if err := t.store.SaveDecision(ctx, recRow); err != nil {
			t.log.Error().Err(err).Str("ticker", d.Ticker).Msg("persist decision failed")
			continue
		}
		t.log.Info().
			Str("station", d.Station).
			Str("ticker", d.Ticker).
			Str("side", string(d.Side)).
			Float64("price", d.Price).
			Float64("edge", d.Edge).
			Float64("notional", d.Notional).
			Bool("reduced", d.Reduced).
			Msg("paper position opened")
	}

	if t.rec != nil {
		t.rec.CycleEvaluated("ok", time.Since(start))
		_, daily := t.agg.Budget("")
		t.rec.DailyRemaining(day.Format("2006-01-02"), daily)
	}
}

// settleOpen resolves unsettled decisions whose trading day has passed using
// observed daily highs.
func (t *trader) settleOpen(ctx context.Context) {
	open, err := t.store.UnsettledDecisions(ctx)
	if err != nil {
		t.log.Error().Err(err).Msg("load unsettled decisions")
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	highs := make(map[string]float64)

	for _, d := range open {
		if !d.Day.Before(today) {
			continue
		}

		key := d.Station + d.Day.Format("2006-01-02")
		high, ok := highs[key]
		if !ok {
			high, err = t.weather.RealizedHigh(ctx, d.Station, d.Day)
			if err != nil {
				t.log.Warn().Err(err).Str("station", d.Station).Msg("realized high unavailable")
				continue
			}
			highs[key] = high
			if err := t.store.SaveRealizedHigh(ctx, d.Station, d.Day, high); err != nil {
				t.log.Warn().Err(err).Msg("persist realized high failed")
			}
		}

		won, payoff := settleRecord(d, high)
		if err := t.store.SettleDecision(ctx, d.ID, won, payoff); err != nil {
			t.log.Error().Err(err).Int64("id", d.ID).Msg("settle decision failed")
			continue
		}
		t.log.Info().
			Str("ticker", d.Ticker).
			Float64("high", high).
			Bool("won", won).
			Float64("payoff", payoff).
			Msg("position settled")
	}
}

// settleRecord resolves one persisted decision against the realized high.
// Brackets are half-open on the upper bound; tails carry sentinel bounds.
func settleRecord(d storage.DecisionRecord, high float64) (won bool, payoff float64) {
	inBracket := market.Bracket{Lower: d.BracketLower, Upper: d.BracketUpper}.Contains(high)
	won = inBracket
	if d.Side == "no" {
		won = !inBracket
	}
	if won {
		return true, d.Notional * (1/d.Price - 1)
	}
	return false, -d.Notional
}

func eventTickerFor(station string, day time.Time) string {
	if st := weather.GetStation(station); st != nil {
		return st.EventTicker(day)
	}
	return ""
}
