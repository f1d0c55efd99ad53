// Command backtest replays recorded snapshot history over a date range and
// reports the strategy's realized performance.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/brendanplayford/weatheredge/internal/config"
	"github.com/brendanplayford/weatheredge/internal/logging"
	"github.com/brendanplayford/weatheredge/internal/storage"
	"github.com/brendanplayford/weatheredge/pkg/backtest"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to config file")
	fromFlag   = flag.String("from", "", "First day (YYYY-MM-DD)")
	toFlag     = flag.String("to", "", "Last day (YYYY-MM-DD)")
	verbose    = flag.Bool("v", false, "Print per-day outcomes")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	from, err := time.ParseInLocation("2006-01-02", *fromFlag, time.UTC)
	if err != nil {
		log.Fatal().Err(err).Msg("bad -from")
	}
	to, err := time.ParseInLocation("2006-01-02", *toFlag, time.UTC)
	if err != nil {
		log.Fatal().Err(err).Msg("bad -to")
	}

	store, err := storage.NewStore(cfg.Storage.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	engine := backtest.NewEngine(backtest.Config{
		Pipeline:    cfg.PipelineConfig(),
		EntryOffset: cfg.Entry.Offset,
		Tolerance:   cfg.Entry.Tolerance,
		Parallelism: cfg.Backtest.Parallelism,
	}, store)

	ctx := context.Background()
	run, err := engine.Run(ctx, cfg.Stations, from, to)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}

	if err := store.SaveRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("persist run summary failed")
	}

	printRun(run, *verbose)
}

func printRun(run *backtest.Run, verbose bool) {
	fmt.Printf("Backtest %s  %s .. %s\n\n",
		run.ID, run.From.Format("2006-01-02"), run.To.Format("2006-01-02"))

	if verbose {
		for _, day := range run.Days {
			fmt.Printf("%s\n", day.Day.Format("2006-01-02"))
			for _, o := range day.Outcomes {
				result := "LOSS"
				if o.Won {
					result = "WIN"
				}
				fmt.Printf("  %-26s %-4s $%8.2f  exp %+8.2f  got %+8.2f  %s\n",
					o.Decision.Ticker, o.Decision.Side, o.Decision.Notional,
					o.Expected, o.Payoff, result)
			}
		}
		fmt.Println()
	}

	for _, g := range run.Gaps {
		fmt.Printf("gap: %s %s (%s)\n", g.Station, g.Day.Format("2006-01-02"), g.Reason)
	}
	if len(run.Gaps) > 0 {
		fmt.Println()
	}

	st := run.Stats
	fmt.Printf("Days replayed:   %d\n", st.Days)
	fmt.Printf("Decisions:       %d (%d wins, hit rate %.1f%%)\n", st.Decisions, st.Wins, st.HitRate*100)
	fmt.Printf("Staked:          $%.2f\n", st.Staked)
	fmt.Printf("PnL:             $%+.2f (ROI %+.1f%%)\n", st.PnL, st.ROI*100)
	fmt.Printf("Expected EV:     $%+.2f\n", st.ExpectedEV)
	fmt.Printf("Realized EV:     $%+.2f\n", st.RealizedEV)

	if len(st.PerBracket) > 0 {
		fmt.Println("\nPer bracket:")
		keys := make([]string, 0, len(st.PerBracket))
		for k := range st.PerBracket {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			bs := st.PerBracket[k]
			fmt.Printf("  %-12s %3d decisions, %3d wins, staked $%9.2f, pnl $%+9.2f\n",
				k, bs.Decisions, bs.Wins, bs.Staked, bs.PnL)
		}
	}
}
