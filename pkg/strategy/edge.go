// Package strategy computes edges, sizes positions with a capped Kelly
// criterion, and allocates them under shared daily budgets.
package strategy

import "github.com/brendanplayford/weatheredge/pkg/market"

// EdgeRecord is the edge of the model against the market for one bracket,
// with the expected value net of probability-equivalent costs.
type EdgeRecord struct {
	Bracket market.Bracket
	Edge    float64 // model probability minus market probability
	EV      float64 // edge net of fee and slippage
}

// ComputeEdge compares model and market probabilities for one bracket.
// Fee and slippage are probability-equivalent costs. Both signs of edge are
// meaningful: positive favors BUY YES, negative favors BUY NO. Threshold
// filtering belongs to the caller.
func ComputeEdge(p market.Probability, fee, slippage float64) EdgeRecord {
	edge := p.Model - p.Market
	return EdgeRecord{
		Bracket: p.Bracket,
		Edge:    edge,
		EV:      edge - fee - slippage,
	}
}
