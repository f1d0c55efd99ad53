// Package weather supplies station metadata, hourly forecast series, and
// realized daily highs for the stations with temperature bracket markets.
package weather

import (
	"fmt"
	"strings"
	"time"
)

// Station is a weather observation station with a daily-high bracket event.
type Station struct {
	ID       string // METAR station ID (e.g. "KLAX")
	Name     string
	City     string
	Timezone string // IANA timezone

	// EventPrefix is the exchange prefix for this station's daily-high event.
	EventPrefix string

	// NWS gridpoint for hourly forecasts.
	NWSOffice string
	NWSGridX  int
	NWSGridY  int
}

// Stations is the registry of supported stations, keyed by short code.
var Stations = map[string]*Station{
	"LAX": {
		ID:          "KLAX",
		Name:        "Los Angeles International Airport",
		City:        "Los Angeles",
		Timezone:    "America/Los_Angeles",
		EventPrefix: "KXHIGHLAX",
		NWSOffice:   "LOX",
		NWSGridX:    154,
		NWSGridY:    44,
	},
	"NYC": {
		ID:          "KJFK",
		Name:        "John F. Kennedy International Airport",
		City:        "New York City",
		Timezone:    "America/New_York",
		EventPrefix: "KXHIGHNY",
		NWSOffice:   "OKX",
		NWSGridX:    33,
		NWSGridY:    37,
	},
	"CHI": {
		ID:          "KORD",
		Name:        "Chicago O'Hare International Airport",
		City:        "Chicago",
		Timezone:    "America/Chicago",
		EventPrefix: "KXHIGHCHI",
		NWSOffice:   "LOT",
		NWSGridX:    65,
		NWSGridY:    76,
	},
	"MIA": {
		ID:          "KMIA",
		Name:        "Miami International Airport",
		City:        "Miami",
		Timezone:    "America/New_York",
		EventPrefix: "KXHIGHMIA",
		NWSOffice:   "MFL",
		NWSGridX:    109,
		NWSGridY:    50,
	},
	"AUS": {
		ID:          "KAUS",
		Name:        "Austin-Bergstrom International Airport",
		City:        "Austin",
		Timezone:    "America/Chicago",
		EventPrefix: "KXHIGHAUS",
		NWSOffice:   "EWX",
		NWSGridX:    156,
		NWSGridY:    91,
	},
	"PHIL": {
		ID:          "KPHL",
		Name:        "Philadelphia International Airport",
		City:        "Philadelphia",
		Timezone:    "America/New_York",
		EventPrefix: "KXHIGHPHIL",
		NWSOffice:   "PHI",
		NWSGridX:    49,
		NWSGridY:    75,
	},
	"DEN": {
		ID:          "KDEN",
		Name:        "Denver International Airport",
		City:        "Denver",
		Timezone:    "America/Denver",
		EventPrefix: "KXHIGHDEN",
		NWSOffice:   "BOU",
		NWSGridX:    62,
		NWSGridY:    60,
	},
}

// GetStation returns a station by its short code, or nil.
func GetStation(code string) *Station {
	return Stations[code]
}

// Location returns the station's timezone, falling back to UTC.
func (s *Station) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EventTicker builds the daily-high event ticker for a date, e.g.
// KXHIGHLAX-25JUL10. The venue's event_ticker filter is exact-match and
// uses an uppercase date code.
func (s *Station) EventTicker(date time.Time) string {
	return s.EventPrefix + "-" + strings.ToUpper(date.Format("06Jan02"))
}

// HourlyForecastURL returns the NWS hourly forecast endpoint for the
// station's gridpoint.
func (s *Station) HourlyForecastURL() string {
	return fmt.Sprintf("https://api.weather.gov/gridpoints/%s/%d,%d/forecast/hourly",
		s.NWSOffice, s.NWSGridX, s.NWSGridY)
}

// METARHistoryURL returns the Iowa State ASOS endpoint for the station's
// observations on a date.
func (s *Station) METARHistoryURL(date time.Time) string {
	// Iowa State keys stations without the 'K' prefix.
	id := s.ID
	if len(id) > 1 && id[0] == 'K' {
		id = id[1:]
	}
	next := date.AddDate(0, 0, 1)
	return fmt.Sprintf("https://mesonet.agron.iastate.edu/cgi-bin/request/asos.py?"+
		"station=%s&data=tmpf&year1=%d&month1=%d&day1=%d&year2=%d&month2=%d&day2=%d&tz=%s"+
		"&format=onlycomma&latlon=no&elev=no&missing=M&trace=T&direct=no&report_type=3",
		id, date.Year(), int(date.Month()), date.Day(),
		next.Year(), int(next.Month()), next.Day(), s.Timezone)
}
