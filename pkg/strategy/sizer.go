package strategy

import (
	"math"

	"github.com/brendanplayford/weatheredge/pkg/market"
)

// Side is the side of a binary contract a decision buys.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Machine-readable rejection reasons carried on no-trade decisions.
const (
	ReasonDegeneratePrice   = "degenerate price"
	ReasonEdgeBelowMinimum  = "edge below minimum"
	ReasonLiquidityTooLow   = "liquidity below minimum"
	ReasonNonPositiveKelly  = "non-positive kelly"
	ReasonBudgetExhausted   = "budget exhausted"
	ReasonReducedToBudget   = "reduced to remaining budget"
	ReasonInsufficientData  = "insufficient data"
	ReasonInvalidBracketSet = "invalid bracket set"
)

// Caps holds the global sizing limits. All values are configuration supplied
// by the caller; numeric code never reads them ambiently.
type Caps struct {
	FMax         float64 // Kelly fraction cap
	BankrollUnit float64 // USD notional corresponding to fraction 1.0
	PerMarketCap float64 // USD per bracket market per day
	DailyCap     float64 // USD across all markets per day
	MinEdge      float64 // minimum absolute edge to trade
	MinLiquidity float64 // minimum USD depth to trade
	Fee          float64 // probability-equivalent fee
	Slippage     float64 // probability-equivalent slippage
}

// Decision is a sized position for one bracket, or an explicit no-trade with
// a reason. Aggregation may later reduce Notional under shared budgets.
type Decision struct {
	Station  string
	Ticker   string
	Bracket  market.Bracket
	Side     Side
	Price    float64 // price of the bought side, (0,1)
	Edge     float64 // directional edge for the bought side, >= 0 when accepted
	EV       float64 // edge net of fee and slippage
	Fraction float64 // Kelly fraction after capping, in [0, FMax]
	Notional float64 // USD, after liquidity and budget clipping
	Accepted bool
	Reduced  bool   // notional cut down by the aggregator
	Reason   string // empty when accepted without reduction
}

// reject returns a zeroed no-trade decision carrying the reason.
func reject(d Decision, reason string) Decision {
	d.Fraction = 0
	d.Notional = 0
	d.Accepted = false
	d.Reason = reason
	return d
}

// Size produces a sizing decision for one bracket from a pure snapshot of
// inputs: the edge record, the price and liquidity of the side implied by the
// edge sign, and the remaining per-market and daily budgets. It never mutates
// shared state.
func (c Caps) Size(rec EdgeRecord, station, ticker string, q market.Quote, remPerMarket, remDaily float64) Decision {
	side := SideYes
	price := q.YesPrice
	pWin := rec.Edge + q.YesPrice // model probability of YES
	if rec.Edge < 0 {
		side = SideNo
		price = q.NoPrice
		pWin = 1 - (rec.Edge + q.YesPrice)
	}

	dirEdge := math.Abs(rec.Edge)
	d := Decision{
		Station: station,
		Ticker:  ticker,
		Bracket: rec.Bracket,
		Side:    side,
		Price:   price,
		Edge:    dirEdge,
		EV:      dirEdge - c.Fee - c.Slippage,
	}

	if price <= 0 || price >= 1 {
		return reject(d, ReasonDegeneratePrice)
	}
	if dirEdge < c.MinEdge {
		return reject(d, ReasonEdgeBelowMinimum)
	}
	if q.Liquidity < c.MinLiquidity {
		return reject(d, ReasonLiquidityTooLow)
	}

	// Binary-outcome Kelly: b = 1/p - 1, f = (b*pWin - (1-pWin)) / b.
	b := 1/price - 1
	f := (b*pWin - (1 - pWin)) / b
	if f <= 0 {
		return reject(d, ReasonNonPositiveKelly)
	}
	if f > c.FMax {
		f = c.FMax
	}

	notional := f * c.BankrollUnit
	for _, lim := range []float64{q.Liquidity, c.PerMarketCap, remPerMarket, remDaily} {
		if notional > lim {
			notional = lim
		}
	}
	if notional <= 0 {
		return reject(d, ReasonBudgetExhausted)
	}

	d.Fraction = f
	d.Notional = notional
	d.Accepted = true
	return d
}
