package strategy

import (
	"sort"
	"sync"
	"time"
)

// BankrollState tracks the remaining daily and per-market budgets for a
// single trading day. It is created at day start, mutated only through the
// Aggregator, and never shared across days.
type BankrollState struct {
	Day            time.Time
	DailyRemaining float64
	perMarket      map[string]float64 // ticker -> remaining USD
	perMarketCap   float64
}

// NewBankrollState creates fresh budget state for one trading day.
func NewBankrollState(day time.Time, caps Caps) *BankrollState {
	return &BankrollState{
		Day:            day,
		DailyRemaining: caps.DailyCap,
		perMarket:      make(map[string]float64),
		perMarketCap:   caps.PerMarketCap,
	}
}

// MarketRemaining returns the remaining budget for one bracket market.
func (s *BankrollState) MarketRemaining(ticker string) float64 {
	if rem, ok := s.perMarket[ticker]; ok {
		return rem
	}
	return s.perMarketCap
}

func (s *BankrollState) spend(ticker string, amount float64) {
	s.perMarket[ticker] = s.MarketRemaining(ticker) - amount
	s.DailyRemaining -= amount
}

// Aggregator finalizes a batch of sizing candidates under the shared budgets.
// It is the single authorized mutator of a day's BankrollState; all cycles
// touching the same day must go through one Aggregator.
type Aggregator struct {
	mu    sync.Mutex
	state *BankrollState
}

// NewAggregator wraps a day's bankroll state.
func NewAggregator(state *BankrollState) *Aggregator {
	return &Aggregator{state: state}
}

// State returns the owned bankroll state for persistence between cycles.
// Callers must not mutate it.
func (a *Aggregator) State() *BankrollState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Budget returns the remaining per-market and daily budgets as a consistent
// snapshot for the sizer. Allocation may still reduce further.
func (a *Aggregator) Budget(ticker string) (perMarket, daily float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.MarketRemaining(ticker), a.state.DailyRemaining
}

// Allocate processes candidates greedily by descending edge, accepting each up
// to the minimum of its requested notional and the remaining per-market and
// daily budgets, and decrementing the budgets as it goes. Once the daily
// budget is exhausted the remaining candidates are rejected. Greedy by edge
// maximizes captured expected value under the linear budget constraint; it is
// not optimal for combinatorial cases but it is simple and auditable.
//
// Total notional accepted for the day never exceeds the daily cap, for any
// candidate ordering or batch size.
func (a *Aggregator) Allocate(candidates []Decision) []Decision {
	a.mu.Lock()
	defer a.mu.Unlock()

	final := make([]Decision, len(candidates))
	copy(final, candidates)
	// Descending edge, with ticker as a deterministic tie-break.
	sort.SliceStable(final, func(i, j int) bool {
		if final[i].Edge != final[j].Edge {
			return final[i].Edge > final[j].Edge
		}
		return final[i].Ticker < final[j].Ticker
	})

	for i := range final {
		d := &final[i]
		if !d.Accepted {
			continue // already rejected by the sizer, pass through
		}

		avail := a.state.DailyRemaining
		if rem := a.state.MarketRemaining(d.Ticker); rem < avail {
			avail = rem
		}
		if avail <= 0 {
			*d = reject(*d, ReasonBudgetExhausted)
			continue
		}

		if d.Notional > avail {
			d.Notional = avail
			d.Reduced = true
			d.Reason = ReasonReducedToBudget
		}
		a.state.spend(d.Ticker, d.Notional)
	}

	return final
}
