package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
stations: [LAX, DEN]
`

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if c.Environment != "dev" {
		t.Errorf("Environment = %q, want dev", c.Environment)
	}
	if c.Caps.KellyCap != 0.10 {
		t.Errorf("KellyCap = %v, want 0.10", c.Caps.KellyCap)
	}
	if c.Entry.Offset != 14*time.Hour {
		t.Errorf("Entry.Offset = %v, want 14h", c.Entry.Offset)
	}
	if c.Estimator.MinPoints != 24 {
		t.Errorf("MinPoints = %d, want 24", c.Estimator.MinPoints)
	}
}

func TestParse_Overrides(t *testing.T) {
	yaml := `
environment: paper
stations: [LAX]
caps:
  kelly_cap: 0.05
  daily_cap: 2000
  per_market_cap: 400
estimator:
  spread_table:
    LAX:
      JJA: 1.8
      DJF: 3.0
`
	c, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if c.Caps.KellyCap != 0.05 || c.Caps.DailyCap != 2000 {
		t.Errorf("caps not overridden: %+v", c.Caps)
	}

	fc := c.EstimatorConfig()
	if fc.SpreadTable["LAX"]["JJA"] != 1.8 {
		t.Errorf("spread table not converted: %+v", fc.SpreadTable)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no stations", `environment: dev`},
		{"bad environment", `{environment: staging, stations: [LAX]}`},
		{"kelly cap above 1", `{stations: [LAX], caps: {kelly_cap: 1.5}}`},
		{"per-market above daily", `{stations: [LAX], caps: {per_market_cap: 2000, daily_cap: 1000}}`},
		{"confidence order", `{stations: [LAX], estimator: {lower_confidence: 0.9, upper_confidence: 0.1}}`},
		{"unknown season", `{stations: [LAX], estimator: {spread_table: {LAX: {SUMMER: 2.0}}}}`},
		{"inverted trading window", `{stations: [LAX], trading: {start_hour: 15, end_hour: 9}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse() accepted invalid config")
			}
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("WEATHEREDGE_STATIONS", "MIA,CHI")

	path := t.TempDir() + "/config.yaml"
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadWithEnv(path)
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}
	if strings.Join(c.Stations, ",") != "MIA,CHI" {
		t.Errorf("Stations = %v, want env override", c.Stations)
	}
}
