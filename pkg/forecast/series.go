// Package forecast turns hourly forecast series into daily-high distribution estimates.
package forecast

import "time"

// Point is a single hourly forecast value.
type Point struct {
	Time time.Time // UTC
	Temp float64   // °F
}

// Band holds forecast-provided quantile bounds for the daily high.
// Lower and Upper are temperature values at the configured confidence levels.
type Band struct {
	Lower float64
	Upper float64
}

// Series is an hourly forecast series for one station covering a 24h window.
// It is produced by a forecast collaborator and immutable once handed to the
// estimator.
type Series struct {
	Station  string
	IssuedAt time.Time
	Points   []Point
	Band     *Band // nil when the provider gives no confidence band
}

// MaxTemp returns the maximum temperature across the series points.
func (s *Series) MaxTemp() float64 {
	max := s.Points[0].Temp
	for _, p := range s.Points[1:] {
		if p.Temp > max {
			max = p.Temp
		}
	}
	return max
}

// Season is a meteorological season used to key the default spread table.
type Season string

const (
	SeasonWinter Season = "DJF"
	SeasonSpring Season = "MAM"
	SeasonSummer Season = "JJA"
	SeasonFall   Season = "SON"
)

// SeasonOf returns the meteorological season for a month.
func SeasonOf(m time.Month) Season {
	switch m {
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	default:
		return SeasonFall
	}
}
