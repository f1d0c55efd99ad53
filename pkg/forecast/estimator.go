package forecast

import (
	"errors"
	"fmt"
	"time"
)

// Source identifies how the spread of an estimate was derived.
type Source string

const (
	// SourceBands means the spread was inverted from provider confidence bands.
	SourceBands Source = "bands"

	// SourceTable means the spread came from the default per-station table.
	SourceTable Source = "table"
)

// ErrInsufficientData is returned when a series has too few hourly points.
var ErrInsufficientData = errors.New("forecast: insufficient hourly points")

// Estimate is the daily-high distribution derived from one forecast series.
type Estimate struct {
	Station string
	Mean    float64
	Spread  float64
	Source  Source

	// Degraded is set when the provider band was unusable and the estimate
	// fell back to the default table.
	Degraded bool
}

// Config holds estimator parameters. Confidence levels are the quantiles the
// provider band bounds correspond to; they are configuration, never assumed.
type Config struct {
	MinPoints       int     // minimum hourly points required
	MinSpread       float64 // spread floor, °F
	LowerConfidence float64 // quantile of Band.Lower, e.g. 0.10
	UpperConfidence float64 // quantile of Band.Upper, e.g. 0.90

	// SpreadTable maps station -> season -> default spread in °F, used when
	// no usable band is present.
	SpreadTable map[string]map[Season]float64

	// FallbackSpread is used when the table has no entry for a station/season.
	FallbackSpread float64
}

// DefaultConfig returns estimator defaults.
func DefaultConfig() Config {
	return Config{
		MinPoints:       24,
		MinSpread:       0.5,
		LowerConfidence: 0.10,
		UpperConfidence: 0.90,
		FallbackSpread:  2.5,
	}
}

// Estimate derives a daily-high distribution estimate from an hourly series.
// The mean is the maximum of the hourly temperatures (daily-high proxy). The
// spread comes from the provider band when present and sane, else from the
// default table for the station and season of the series date.
func (c Config) Estimate(s *Series, date time.Time) (Estimate, error) {
	if len(s.Points) < c.MinPoints {
		return Estimate{}, fmt.Errorf("%w: got %d points, need %d", ErrInsufficientData, len(s.Points), c.MinPoints)
	}

	est := Estimate{
		Station: s.Station,
		Mean:    s.MaxTemp(),
	}

	if s.Band != nil {
		if sp := c.spreadFromBand(est.Mean, s.Band); s.Band.Upper >= s.Band.Lower && sp > 0 {
			est.Spread = sp
			est.Source = SourceBands
		} else {
			// Inverted band, or one lying below the mean so the implied
			// sigma is non-positive: degrade to the table rather than fail.
			est.Spread = c.tableSpread(s.Station, date)
			est.Source = SourceTable
			est.Degraded = true
		}
	} else {
		est.Spread = c.tableSpread(s.Station, date)
		est.Source = SourceTable
	}

	if est.Spread < c.MinSpread {
		est.Spread = c.MinSpread
	}

	return est, nil
}

// spreadFromBand inverts the standard normal quantile at the configured
// confidence levels, assuming the band shares the estimate mean. Each bound
// gives sigma = (value - mean) / z(q); the two solutions are averaged.
func (c Config) spreadFromBand(mean float64, b *Band) float64 {
	zLow := invNorm(c.LowerConfidence)
	zHigh := invNorm(c.UpperConfidence)

	var sum float64
	var n int
	if zLow != 0 {
		sum += (b.Lower - mean) / zLow
		n++
	}
	if zHigh != 0 {
		sum += (b.Upper - mean) / zHigh
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (c Config) tableSpread(station string, date time.Time) float64 {
	if seasons, ok := c.SpreadTable[station]; ok {
		if sp, ok := seasons[SeasonOf(date.Month())]; ok {
			return sp
		}
	}
	return c.FallbackSpread
}
