package backtest

import (
	"time"

	"github.com/brendanplayford/weatheredge/pkg/market"
	"github.com/brendanplayford/weatheredge/pkg/strategy"
)

// Gap records a (station, day) that could not be replayed and why. Gaps never
// abort a run.
type Gap struct {
	Station string
	Day     time.Time
	Reason  string
}

// Outcome is one accepted decision with its realized payoff.
type Outcome struct {
	Decision strategy.Decision
	Won      bool
	Expected float64 // expected profit in USD at decision time
	Payoff   float64 // realized profit in USD
}

// DayResult holds everything settled for one replayed day.
type DayResult struct {
	Day      time.Time
	Realized map[string]float64 // station -> realized daily high
	Outcomes []Outcome
	Rejected []strategy.Decision
}

// Run accumulates a whole backtest: per-day results, gaps, and aggregate
// statistics. It never touches live bankroll state.
type Run struct {
	ID       string
	From, To time.Time
	Stations []string
	Days     []DayResult
	Gaps     []Gap
	Stats    Stats
}

// BracketStats is the per-bracket performance breakdown.
type BracketStats struct {
	Decisions int
	Wins      int
	Staked    float64
	PnL       float64
}

// Stats are the aggregate statistics of a run.
type Stats struct {
	Days       int
	Decisions  int
	Wins       int
	HitRate    float64
	Staked     float64
	PnL        float64
	ROI        float64
	ExpectedEV float64 // sum of expected profits at decision time
	RealizedEV float64 // sum of realized profits
	PerBracket map[string]BracketStats
}

func computeStats(days []DayResult) Stats {
	st := Stats{PerBracket: make(map[string]BracketStats)}
	st.Days = len(days)

	for _, d := range days {
		for _, o := range d.Outcomes {
			st.Decisions++
			st.Staked += o.Decision.Notional
			st.PnL += o.Payoff
			st.ExpectedEV += o.Expected
			st.RealizedEV += o.Payoff
			if o.Won {
				st.Wins++
			}

			key := o.Decision.Bracket.Label(o.Decision.Bracket.Lower <= market.TailLower, o.Decision.Bracket.Upper >= market.TailUpper)
			bs := st.PerBracket[key]
			bs.Decisions++
			bs.Staked += o.Decision.Notional
			bs.PnL += o.Payoff
			if o.Won {
				bs.Wins++
			}
			st.PerBracket[key] = bs
		}
	}

	if st.Decisions > 0 {
		st.HitRate = float64(st.Wins) / float64(st.Decisions)
	}
	if st.Staked > 0 {
		st.ROI = st.PnL / st.Staked
	}
	return st
}
