// Command recommend runs one live decision cycle and prints the sized
// positions without placing anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brendanplayford/weatheredge/internal/config"
	"github.com/brendanplayford/weatheredge/internal/feed"
	"github.com/brendanplayford/weatheredge/internal/logging"
	"github.com/brendanplayford/weatheredge/internal/storage"
	"github.com/brendanplayford/weatheredge/pkg/kalshi"
	"github.com/brendanplayford/weatheredge/pkg/market"
	"github.com/brendanplayford/weatheredge/pkg/pipeline"
	"github.com/brendanplayford/weatheredge/pkg/strategy"
	"github.com/brendanplayford/weatheredge/pkg/weather"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to config file")
	dateFlag   = flag.String("date", "", "Trading day (YYYY-MM-DD), default today")
	record     = flag.Bool("record", true, "Persist fetched snapshots to the store")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	day := time.Now().UTC().Truncate(24 * time.Hour)
	if *dateFlag != "" {
		day, err = time.ParseInLocation("2006-01-02", *dateFlag, time.UTC)
		if err != nil {
			log.Fatal().Err(err).Msg("bad -date")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var provider pipeline.SnapshotProvider = &feed.LiveProvider{
		Weather: weather.NewClient(nil, log),
		Markets: kalshi.New(kalshi.WithLogger(log)),
	}

	if *record {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("create data directory")
		}
		store, err := storage.NewStore(cfg.Storage.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("open store")
		}
		defer store.Close()
		provider = &feed.Recorder{Provider: provider, Store: store, Log: log}
	}

	caps := cfg.StrategyCaps()
	agg := strategy.NewAggregator(strategy.NewBankrollState(day, caps))

	out, err := pipeline.RunCycle(ctx, cfg.PipelineConfig(), provider, cfg.Stations, day, agg)
	if err != nil {
		log.Fatal().Err(err).Msg("cycle failed")
	}

	for station, reason := range out.Skipped {
		log.Warn().Str("station", station).Str("reason", reason).Msg("station skipped")
	}

	printDecisions(out.Final)
}

func printDecisions(decisions []strategy.Decision) {
	fmt.Printf("%-8s %-26s %-12s %-4s %7s %7s %7s %9s  %s\n",
		"STATION", "TICKER", "BRACKET", "SIDE", "PRICE", "EDGE", "EV", "NOTIONAL", "STATUS")
	fmt.Println(strings.Repeat("-", 100))

	for _, d := range decisions {
		status := "SKIP: " + d.Reason
		if d.Accepted {
			status = "TRADE"
			if d.Reduced {
				status = "TRADE (reduced)"
			}
		}
		fmt.Printf("%-8s %-26s %-12s %-4s %7.2f %+7.3f %+7.3f %9.2f  %s\n",
			d.Station, d.Ticker, bracketLabel(d), d.Side, d.Price, d.Edge, d.EV, d.Notional, status)
	}
}

func bracketLabel(d strategy.Decision) string {
	return d.Bracket.Label(d.Bracket.Lower <= market.TailLower, d.Bracket.Upper >= market.TailUpper)
}
