package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/brendanplayford/weatheredge/pkg/forecast"
)

// ErrUnknownStation is returned for station codes not in the registry.
var ErrUnknownStation = fmt.Errorf("unknown station")

// Client fetches hourly forecast series from the NWS gridpoint API.
type Client struct {
	http *http.Client
	log  zerolog.Logger

	// resolveURL maps a station to its hourly forecast endpoint. Tests
	// override it to point at a local server.
	resolveURL func(*Station) string
}

// NewClient builds a forecast client. A nil httpClient gets a 15s timeout
// default.
func NewClient(httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		http:       httpClient,
		log:        log,
		resolveURL: (*Station).HourlyForecastURL,
	}
}

type nwsHourlyResponse struct {
	Properties struct {
		Updated time.Time `json:"updateTime"`
		Periods []struct {
			StartTime   time.Time `json:"startTime"`
			Temperature float64   `json:"temperature"`
			Unit        string    `json:"temperatureUnit"`
		} `json:"periods"`
	} `json:"properties"`
}

// ForecastSeries fetches the hourly series covering the station-local
// calendar day. The NWS hourly product carries no confidence band, so
// Series.Band is always nil and spread estimation falls back to the
// seasonal table.
func (c *Client) ForecastSeries(ctx context.Context, station string, day time.Time) (*forecast.Series, error) {
	st := GetStation(station)
	if st == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStation, station)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(st), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "weatheredge")
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hourly forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hourly forecast: unexpected status %d", resp.StatusCode)
	}

	var nws nwsHourlyResponse
	if err := json.NewDecoder(resp.Body).Decode(&nws); err != nil {
		return nil, fmt.Errorf("parse hourly forecast: %w", err)
	}

	loc := st.Location()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	series := &forecast.Series{
		Station:  station,
		IssuedAt: nws.Properties.Updated.UTC(),
	}
	for _, p := range nws.Properties.Periods {
		t := p.StartTime.In(loc)
		if t.Before(dayStart) || !t.Before(dayEnd) {
			continue
		}
		temp := p.Temperature
		if p.Unit == "C" {
			temp = temp*9/5 + 32
		}
		series.Points = append(series.Points, forecast.Point{Time: t.UTC(), Temp: temp})
	}

	c.log.Debug().
		Str("station", station).
		Time("day", dayStart).
		Int("points", len(series.Points)).
		Msg("fetched hourly forecast")

	return series, nil
}
