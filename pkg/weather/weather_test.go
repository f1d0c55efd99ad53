package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEventTicker(t *testing.T) {
	date := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		code string
		want string
	}{
		{"LAX", "KXHIGHLAX-25JUL10"},
		{"NYC", "KXHIGHNY-25JUL10"},
		{"DEN", "KXHIGHDEN-25JUL10"},
	}
	for _, tt := range tests {
		st := GetStation(tt.code)
		if st == nil {
			t.Fatalf("GetStation(%q) = nil", tt.code)
		}
		if got := st.EventTicker(date); got != tt.want {
			t.Errorf("EventTicker(%s) = %q, want %q", tt.code, got, tt.want)
		}
	}

	// The venue filter is exact-match on an uppercase date code, for any month.
	st := GetStation("LAX")
	for m := time.January; m <= time.December; m++ {
		got := st.EventTicker(time.Date(2025, m, 10, 0, 0, 0, 0, time.UTC))
		if got != strings.ToUpper(got) {
			t.Errorf("EventTicker for %s = %q, not uppercase", m, got)
		}
	}
}

func TestMETARHistoryURL(t *testing.T) {
	st := GetStation("LAX")
	url := st.METARHistoryURL(time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC))

	for _, want := range []string{"station=LAX", "year1=2025", "month1=7", "day1=10", "day2=11"} {
		if !strings.Contains(url, want) {
			t.Errorf("METARHistoryURL missing %q: %s", want, url)
		}
	}
}

func TestParseObservedHigh(t *testing.T) {
	st := GetStation("DEN")
	day := time.Date(2025, 7, 10, 0, 0, 0, 0, st.Location())

	data := strings.Join([]string{
		"station,valid,tmpf",
		"DEN,2025-07-10 00:53,68.0",
		"DEN,2025-07-10 13:53,87.1",
		"DEN,2025-07-10 14:53,M",
		"DEN,2025-07-10 15:53,88.9",
		"DEN,2025-07-11 00:53,95.0", // next day, out of window
		"BOU,2025-07-10 15:53,99.0", // different station
	}, "\n")

	high, err := parseObservedHigh(st, day, data)
	if err != nil {
		t.Fatalf("parseObservedHigh() error = %v", err)
	}
	if high != 89 {
		t.Errorf("high = %v, want 89 (rounded max in window)", high)
	}
}

func TestParseObservedHigh_NoData(t *testing.T) {
	st := GetStation("DEN")
	day := time.Date(2025, 7, 10, 0, 0, 0, 0, st.Location())

	if _, err := parseObservedHigh(st, day, "station,valid,tmpf\n"); err == nil {
		t.Error("parseObservedHigh() accepted empty data")
	}
}

func TestForecastSeries(t *testing.T) {
	body := `{
		"properties": {
			"updateTime": "2025-07-10T06:00:00Z",
			"periods": [
				{"startTime": "2025-07-09T23:00:00-07:00", "temperature": 66, "temperatureUnit": "F"},
				{"startTime": "2025-07-10T10:00:00-07:00", "temperature": 71, "temperatureUnit": "F"},
				{"startTime": "2025-07-10T14:00:00-07:00", "temperature": 75, "temperatureUnit": "F"},
				{"startTime": "2025-07-11T00:00:00-07:00", "temperature": 64, "temperatureUnit": "F"}
			]
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), zerolog.Nop())
	c.resolveURL = func(*Station) string { return srv.URL }

	day := time.Date(2025, 7, 10, 0, 0, 0, 0, GetStation("LAX").Location())
	series, err := c.ForecastSeries(context.Background(), "LAX", day)
	if err != nil {
		t.Fatalf("ForecastSeries() error = %v", err)
	}

	if len(series.Points) != 2 {
		t.Fatalf("got %d points, want 2 inside the local day", len(series.Points))
	}
	if series.MaxTemp() != 75 {
		t.Errorf("MaxTemp = %v, want 75", series.MaxTemp())
	}
	if series.Band != nil {
		t.Error("hourly product should carry no band")
	}
}
