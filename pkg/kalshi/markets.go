package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brendanplayford/weatheredge/pkg/market"
	"github.com/brendanplayford/weatheredge/pkg/weather"
)

// ErrNoMarkets is returned when an event has no usable bracket markets.
var ErrNoMarkets = errors.New("no bracket markets")

// Market is the subset of the exchange market object needed for pricing.
type Market struct {
	Ticker      string  `json:"ticker"`
	EventTicker string  `json:"event_ticker"`
	Status      string  `json:"status"`
	YesBid      int     `json:"yes_bid"`
	YesAsk      int     `json:"yes_ask"`
	NoBid       int     `json:"no_bid"`
	NoAsk       int     `json:"no_ask"`
	Volume      int     `json:"volume"`
	Liquidity   int     `json:"liquidity"`
	Result      string  `json:"result"`
	FloorStrike float64 `json:"floor_strike"`
	CapStrike   float64 `json:"cap_strike"`
}

// GetEventMarkets retrieves all markets for an event ticker.
func (c *Client) GetEventMarkets(ctx context.Context, eventTicker string) ([]Market, error) {
	data, err := c.get(ctx, "/markets?event_ticker="+eventTicker)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Markets []Market `json:"markets"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal markets: %w", err)
	}
	return resp.Markets, nil
}

// EventSnapshot fetches the station's bracket event for a date and converts
// it into a market snapshot, quotes ordered by bracket.
func (c *Client) EventSnapshot(ctx context.Context, station string, date time.Time) (*market.Snapshot, error) {
	st := weather.GetStation(station)
	if st == nil {
		return nil, fmt.Errorf("%w: %s", weather.ErrUnknownStation, station)
	}
	eventTicker := st.EventTicker(date)

	markets, err := c.GetEventMarkets(ctx, eventTicker)
	if err != nil {
		return nil, err
	}

	snap := &market.Snapshot{
		Station:     station,
		EventTicker: eventTicker,
		Date:        date,
		Time:        time.Now().UTC(),
	}

	for _, m := range markets {
		if m.Status != "active" || m.YesAsk <= 0 || m.YesAsk >= 100 {
			continue
		}
		snap.Quotes = append(snap.Quotes, market.Quote{
			Ticker:    m.Ticker,
			Bracket:   bracketFromStrikes(m.FloorStrike, m.CapStrike),
			YesPrice:  float64(m.YesAsk) / 100,
			NoPrice:   float64(m.NoAsk) / 100,
			Liquidity: float64(m.Liquidity) / 100,
			Volume:    m.Volume,
		})
	}
	if len(snap.Quotes) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoMarkets, eventTicker)
	}

	snap.SortQuotes()
	return snap, nil
}

// bracketFromStrikes maps exchange strikes onto a half-open temperature
// interval. Interior markets settle on floor <= T <= cap with integer highs,
// which is [floor, cap+1) half-open. Tail markets carry only one strike.
func bracketFromStrikes(floor, cap float64) market.Bracket {
	switch {
	case floor > 0 && cap > 0:
		return market.Bracket{Lower: floor, Upper: cap + 1}
	case cap > 0:
		return market.Bracket{Lower: market.TailLower, Upper: cap + 1}
	default:
		return market.Bracket{Lower: floor, Upper: market.TailUpper}
	}
}
