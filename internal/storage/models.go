package storage

import "time"

// DecisionRecord is one persisted sizing decision, settled or not.
type DecisionRecord struct {
	ID           int64      `json:"id"`
	Day          time.Time  `json:"day"`
	Station      string     `json:"station"`
	EventTicker  string     `json:"event_ticker"`
	Ticker       string     `json:"ticker"`
	Bracket      string     `json:"bracket"`
	BracketLower float64    `json:"bracket_lower"`
	BracketUpper float64    `json:"bracket_upper"`
	Side         string     `json:"side"` // "yes" or "no"
	Price        float64    `json:"price"`
	Edge         float64    `json:"edge"`
	EV           float64    `json:"ev"`
	Fraction     float64    `json:"fraction"`
	Notional     float64    `json:"notional"`
	Accepted     bool       `json:"accepted"`
	Reduced      bool       `json:"reduced"`
	Reason       string     `json:"reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Settled      bool       `json:"settled"`
	Won          bool       `json:"won"`
	Payoff       float64    `json:"payoff"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
}

// RunSummary is the persisted aggregate of one backtest run.
type RunSummary struct {
	ID        string    `json:"id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Stations  string    `json:"stations"` // comma-separated
	Days      int       `json:"days"`
	Decisions int       `json:"decisions"`
	Wins      int       `json:"wins"`
	HitRate   float64   `json:"hit_rate"`
	Staked    float64   `json:"staked"`
	PnL       float64   `json:"pnl"`
	ROI       float64   `json:"roi"`
	CreatedAt time.Time `json:"created_at"`
}
