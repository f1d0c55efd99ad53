// Package storage provides SQLite persistence for decisions, snapshot
// history, and backtest runs. The snapshot history doubles as the replay
// source for backtests.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brendanplayford/weatheredge/pkg/backtest"
	"github.com/brendanplayford/weatheredge/pkg/forecast"
	"github.com/brendanplayford/weatheredge/pkg/market"
)

const dayFormat = "2006-01-02"

// Store provides SQLite-based persistence. It implements
// backtest.HistorySource over the recorded snapshot tables.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database under dataDir and migrates the
// schema.
func NewStore(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "weatheredge.db")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL lets the recorder and a concurrent backtest read/write safely.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		day TEXT NOT NULL,
		station TEXT NOT NULL,
		event_ticker TEXT NOT NULL,
		ticker TEXT NOT NULL,
		bracket TEXT NOT NULL,
		bracket_lower REAL NOT NULL,
		bracket_upper REAL NOT NULL,
		side TEXT NOT NULL,
		price REAL NOT NULL,
		edge REAL NOT NULL,
		ev REAL NOT NULL,
		fraction REAL NOT NULL,
		notional REAL NOT NULL,
		accepted INTEGER NOT NULL,
		reduced INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		settled INTEGER DEFAULT 0,
		won INTEGER DEFAULT 0,
		payoff REAL DEFAULT 0,
		settled_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_day ON decisions(day);
	CREATE INDEX IF NOT EXISTS idx_decisions_settled ON decisions(settled);

	CREATE TABLE IF NOT EXISTS forecast_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station TEXT NOT NULL,
		day TEXT NOT NULL,
		captured_at DATETIME NOT NULL,
		issued_at DATETIME NOT NULL,
		points TEXT NOT NULL,
		band_lower REAL,
		band_upper REAL
	);

	CREATE INDEX IF NOT EXISTS idx_forecasts_station_day ON forecast_snapshots(station, day);

	CREATE TABLE IF NOT EXISTS market_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station TEXT NOT NULL,
		day TEXT NOT NULL,
		captured_at DATETIME NOT NULL,
		event_ticker TEXT NOT NULL,
		quotes TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_markets_station_day ON market_snapshots(station, day);

	CREATE TABLE IF NOT EXISTS realized_highs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		station TEXT NOT NULL,
		day TEXT NOT NULL,
		high REAL NOT NULL,
		UNIQUE(station, day)
	);

	CREATE TABLE IF NOT EXISTS backtest_runs (
		id TEXT PRIMARY KEY,
		from_day TEXT NOT NULL,
		to_day TEXT NOT NULL,
		stations TEXT NOT NULL,
		days INTEGER NOT NULL,
		decisions INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		hit_rate REAL NOT NULL,
		staked REAL NOT NULL,
		pnl REAL NOT NULL,
		roi REAL NOT NULL,
		created_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveDecision persists a decision record and fills in its ID.
func (s *Store) SaveDecision(ctx context.Context, r *DecisionRecord) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (day, station, event_ticker, ticker, bracket, bracket_lower, bracket_upper, side, price, edge, ev, fraction, notional, accepted, reduced, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Day.UTC().Format(dayFormat), r.Station, r.EventTicker, r.Ticker, r.Bracket,
		r.BracketLower, r.BracketUpper, r.Side,
		r.Price, r.Edge, r.EV, r.Fraction, r.Notional, r.Accepted, r.Reduced, r.Reason, r.CreatedAt,
	)
	if err != nil {
		return err
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

// SettleDecision marks a decision as settled with its realized payoff.
func (s *Store) SettleDecision(ctx context.Context, id int64, won bool, payoff float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE decisions SET settled = 1, won = ?, payoff = ?, settled_at = ? WHERE id = ?`,
		won, payoff, time.Now().UTC(), id)
	return err
}

// UnsettledDecisions returns accepted decisions that have not settled yet.
func (s *Store) UnsettledDecisions(ctx context.Context) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day, station, event_ticker, ticker, bracket, bracket_lower, bracket_upper, side, price, edge, ev, fraction, notional, accepted, reduced, reason, created_at
		FROM decisions WHERE settled = 0 AND accepted = 1 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		var day string
		if err := rows.Scan(&r.ID, &day, &r.Station, &r.EventTicker, &r.Ticker, &r.Bracket,
			&r.BracketLower, &r.BracketUpper, &r.Side,
			&r.Price, &r.Edge, &r.EV, &r.Fraction, &r.Notional, &r.Accepted, &r.Reduced,
			&r.Reason, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.Day, err = time.ParseInLocation(dayFormat, day, time.UTC); err != nil {
			return nil, fmt.Errorf("decision %d: bad day %q: %w", r.ID, day, err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// SaveForecastSnapshot records one captured forecast series for a trading day.
func (s *Store) SaveForecastSnapshot(ctx context.Context, day, capturedAt time.Time, series *forecast.Series) error {
	points, err := json.Marshal(series.Points)
	if err != nil {
		return fmt.Errorf("encode points: %w", err)
	}

	var bandLower, bandUpper sql.NullFloat64
	if series.Band != nil {
		bandLower = sql.NullFloat64{Float64: series.Band.Lower, Valid: true}
		bandUpper = sql.NullFloat64{Float64: series.Band.Upper, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forecast_snapshots (station, day, captured_at, issued_at, points, band_lower, band_upper)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		series.Station, day.UTC().Format(dayFormat), capturedAt.UTC(), series.IssuedAt.UTC(),
		string(points), bandLower, bandUpper,
	)
	return err
}

// SaveMarketSnapshot records one captured market snapshot for a trading day.
func (s *Store) SaveMarketSnapshot(ctx context.Context, day time.Time, snap *market.Snapshot) error {
	quotes, err := json.Marshal(snap.Quotes)
	if err != nil {
		return fmt.Errorf("encode quotes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market_snapshots (station, day, captured_at, event_ticker, quotes)
		VALUES (?, ?, ?, ?, ?)`,
		snap.Station, day.UTC().Format(dayFormat), snap.Time.UTC(), snap.EventTicker, string(quotes),
	)
	return err
}

// SaveRealizedHigh records the settled daily high for a station and day.
func (s *Store) SaveRealizedHigh(ctx context.Context, station string, day time.Time, high float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO realized_highs (station, day, high) VALUES (?, ?, ?)
		ON CONFLICT(station, day) DO UPDATE SET high = ?`,
		station, day.UTC().Format(dayFormat), high, high,
	)
	return err
}

// DayData loads the recorded snapshot history and ground truth for one
// (station, day). It satisfies backtest.HistorySource.
func (s *Store) DayData(ctx context.Context, station string, day time.Time) (*backtest.DayData, error) {
	dayKey := day.UTC().Format(dayFormat)

	data := &backtest.DayData{Station: station, Day: day}

	rows, err := s.db.QueryContext(ctx, `
		SELECT captured_at, issued_at, points, band_lower, band_upper
		FROM forecast_snapshots WHERE station = ? AND day = ? ORDER BY captured_at`,
		station, dayKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var capturedAt, issuedAt time.Time
		var points string
		var bandLower, bandUpper sql.NullFloat64
		if err := rows.Scan(&capturedAt, &issuedAt, &points, &bandLower, &bandUpper); err != nil {
			return nil, err
		}
		series := &forecast.Series{Station: station, IssuedAt: issuedAt}
		if err := json.Unmarshal([]byte(points), &series.Points); err != nil {
			return nil, fmt.Errorf("decode points: %w", err)
		}
		if bandLower.Valid && bandUpper.Valid {
			series.Band = &forecast.Band{Lower: bandLower.Float64, Upper: bandUpper.Float64}
		}
		data.Forecasts = append(data.Forecasts, backtest.TimedSeries{Time: capturedAt, Series: series})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mrows, err := s.db.QueryContext(ctx, `
		SELECT captured_at, event_ticker, quotes
		FROM market_snapshots WHERE station = ? AND day = ? ORDER BY captured_at`,
		station, dayKey)
	if err != nil {
		return nil, err
	}
	defer mrows.Close()

	for mrows.Next() {
		var capturedAt time.Time
		var eventTicker, quotes string
		if err := mrows.Scan(&capturedAt, &eventTicker, &quotes); err != nil {
			return nil, err
		}
		snap := &market.Snapshot{Station: station, EventTicker: eventTicker, Date: day, Time: capturedAt}
		if err := json.Unmarshal([]byte(quotes), &snap.Quotes); err != nil {
			return nil, fmt.Errorf("decode quotes: %w", err)
		}
		data.Markets = append(data.Markets, snap)
	}
	if err := mrows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT high FROM realized_highs WHERE station = ? AND day = ?`,
		station, dayKey).Scan(&data.RealizedHigh)
	switch err {
	case nil:
		data.Settled = true
	case sql.ErrNoRows:
		data.Settled = false
	default:
		return nil, err
	}

	return data, nil
}

// SaveRun persists the aggregate summary of a completed backtest run.
func (s *Store) SaveRun(ctx context.Context, run *backtest.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs (id, from_day, to_day, stations, days, decisions, wins, hit_rate, staked, pnl, roi, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.From.UTC().Format(dayFormat), run.To.UTC().Format(dayFormat),
		strings.Join(run.Stations, ","), run.Stats.Days, run.Stats.Decisions, run.Stats.Wins,
		run.Stats.HitRate, run.Stats.Staked, run.Stats.PnL, run.Stats.ROI, time.Now().UTC(),
	)
	return err
}

// Runs returns stored backtest summaries, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_day, to_day, stations, days, decisions, wins, hit_rate, staked, pnl, roi, created_at
		FROM backtest_runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var from, to string
		if err := rows.Scan(&r.ID, &from, &to, &r.Stations, &r.Days, &r.Decisions, &r.Wins,
			&r.HitRate, &r.Staked, &r.PnL, &r.ROI, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.From, err = time.ParseInLocation(dayFormat, from, time.UTC); err != nil {
			return nil, err
		}
		if r.To, err = time.ParseInLocation(dayFormat, to, time.UTC); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
