package market

import (
	"sort"
	"time"
)

// Quote is one bracket's market state: the implied probability from the YES
// side and a liquidity proxy in USD depth at an acceptable price.
type Quote struct {
	Ticker    string
	Bracket   Bracket
	YesPrice  float64 // implied probability, (0,1)
	NoPrice   float64 // implied probability of NO, (0,1)
	Liquidity float64 // USD depth
	Volume    int
}

// Snapshot is the market state for one station's bracket event at a point in
// time, as handed over by the market-data collaborator.
type Snapshot struct {
	Station     string
	EventTicker string
	Date        time.Time // trading day, station-local midnight
	Time        time.Time // snapshot timestamp, UTC
	Quotes      []Quote
}

// Set extracts the bracket set from the snapshot quotes, ordered by lower bound.
func (s *Snapshot) Set() Set {
	set := make(Set, len(s.Quotes))
	for i, q := range s.Quotes {
		set[i] = q.Bracket
	}
	sort.Slice(set, func(i, j int) bool { return set[i].Lower < set[j].Lower })
	return set
}

// SortQuotes orders the snapshot quotes by bracket lower bound.
func (s *Snapshot) SortQuotes() {
	sort.Slice(s.Quotes, func(i, j int) bool {
		return s.Quotes[i].Bracket.Lower < s.Quotes[j].Bracket.Lower
	})
}
