package weather

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNoObservations is returned when no METAR rows exist for the day.
var ErrNoObservations = fmt.Errorf("no observations")

// RealizedHigh fetches the maximum observed temperature for a station on a
// station-local calendar day, rounded to the nearest degree the way the
// markets settle.
func (c *Client) RealizedHigh(ctx context.Context, station string, day time.Time) (float64, error) {
	st := GetStation(station)
	if st == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStation, station)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, st.METARHistoryURL(day), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch observations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("observations: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read observations: %w", err)
	}

	high, err := parseObservedHigh(st, day, string(body))
	if err != nil {
		return 0, err
	}

	c.log.Debug().Str("station", station).Float64("high", high).Msg("fetched realized high")
	return high, nil
}

// parseObservedHigh scans Iowa State ASOS CSV rows for the station's
// temperature column and returns the day's maximum.
func parseObservedHigh(st *Station, day time.Time, data string) (float64, error) {
	id := st.ID
	if len(id) > 1 && id[0] == 'K' {
		id = id[1:]
	}

	loc := st.Location()
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	found := false
	high := math.Inf(-1)

	for _, line := range strings.Split(data, "\n") {
		if !strings.HasPrefix(line, id+",") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}

		t, err := time.ParseInLocation("2006-01-02 15:04", parts[1], loc)
		if err != nil {
			continue
		}
		if t.Before(dayStart) || !t.Before(dayEnd) {
			continue
		}

		temp, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			continue // missing values come through as "M"
		}

		found = true
		if temp > high {
			high = temp
		}
	}

	if !found {
		return 0, fmt.Errorf("%w for %s on %s", ErrNoObservations, st.ID, day.Format("2006-01-02"))
	}
	return math.Round(high), nil
}
