// Package config loads and validates the application configuration.
// All thresholds and caps are carried explicitly into the core packages;
// numeric code never reads configuration ambiently.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/brendanplayford/weatheredge/pkg/forecast"
	"github.com/brendanplayford/weatheredge/pkg/pipeline"
	"github.com/brendanplayford/weatheredge/pkg/strategy"
)

// Config is the full application configuration.
type Config struct {
	Environment string `yaml:"environment" default:"dev" validate:"oneof=dev paper prod"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	} `yaml:"log"`

	Stations []string `yaml:"stations" validate:"min=1,dive,required"`

	Estimator struct {
		MinPoints       int                           `yaml:"min_points" default:"24" validate:"gt=0"`
		MinSpread       float64                       `yaml:"min_spread" default:"0.5" validate:"gt=0"`
		LowerConfidence float64                       `yaml:"lower_confidence" default:"0.10" validate:"gt=0,lt=1"`
		UpperConfidence float64                       `yaml:"upper_confidence" default:"0.90" validate:"gt=0,lt=1"`
		FallbackSpread  float64                       `yaml:"fallback_spread" default:"2.5" validate:"gt=0"`
		SpreadTable     map[string]map[string]float64 `yaml:"spread_table"`
	} `yaml:"estimator"`

	Caps struct {
		KellyCap     float64 `yaml:"kelly_cap" default:"0.10" validate:"gt=0,lte=1"`
		BankrollUnit float64 `yaml:"bankroll_unit" default:"1000" validate:"gt=0"`
		PerMarketCap float64 `yaml:"per_market_cap" default:"250" validate:"gt=0"`
		DailyCap     float64 `yaml:"daily_cap" default:"1000" validate:"gt=0"`
		MinEdge      float64 `yaml:"min_edge" default:"0.05" validate:"gte=0,lt=1"`
		MinLiquidity float64 `yaml:"min_liquidity" default:"50" validate:"gte=0"`
		Fee          float64 `yaml:"fee" default:"0.005" validate:"gte=0,lt=1"`
		Slippage     float64 `yaml:"slippage" default:"0.003" validate:"gte=0,lt=1"`
	} `yaml:"caps"`

	Entry struct {
		Offset    time.Duration `yaml:"offset" default:"14h"`
		Tolerance time.Duration `yaml:"tolerance" default:"1h" validate:"gt=0"`
	} `yaml:"entry"`

	Trading struct {
		StartHour    int           `yaml:"start_hour" default:"7" validate:"gte=0,lte=23"`
		EndHour      int           `yaml:"end_hour" default:"14" validate:"gte=0,lte=24"`
		PollInterval time.Duration `yaml:"poll_interval" default:"60s" validate:"gt=0"`
	} `yaml:"trading"`

	Backtest struct {
		Parallelism int `yaml:"parallelism" default:"4" validate:"gt=0"`
	} `yaml:"backtest"`

	Storage struct {
		DataDir string `yaml:"data_dir" default:"./data"`
	} `yaml:"storage"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"false"`
		Addr    string `yaml:"addr" default:":9090"`
	} `yaml:"metrics"`
}

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse parses configuration from raw YAML.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads a config file and applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if v := os.Getenv("WEATHEREDGE_STATIONS"); v != "" {
		c.Stations = strings.Split(v, ",")
	}
	if v := os.Getenv("WEATHEREDGE_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("WEATHEREDGE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return c, nil
}

// Validate checks struct tags plus the cross-field cap invariants. A config
// that fails here must refuse to run.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Caps.PerMarketCap > c.Caps.DailyCap {
		return fmt.Errorf("caps: per_market_cap %.2f exceeds daily_cap %.2f", c.Caps.PerMarketCap, c.Caps.DailyCap)
	}
	if c.Estimator.LowerConfidence >= c.Estimator.UpperConfidence {
		return fmt.Errorf("estimator: lower_confidence %.2f must be below upper_confidence %.2f",
			c.Estimator.LowerConfidence, c.Estimator.UpperConfidence)
	}
	if c.Trading.StartHour >= c.Trading.EndHour {
		return fmt.Errorf("trading: start_hour %d must be before end_hour %d", c.Trading.StartHour, c.Trading.EndHour)
	}
	for station, seasons := range c.Estimator.SpreadTable {
		for season, spread := range seasons {
			switch forecast.Season(season) {
			case forecast.SeasonWinter, forecast.SeasonSpring, forecast.SeasonSummer, forecast.SeasonFall:
			default:
				return fmt.Errorf("estimator: unknown season %q for station %s", season, station)
			}
			if spread <= 0 {
				return fmt.Errorf("estimator: non-positive spread for %s/%s", station, season)
			}
		}
	}
	return nil
}

// EstimatorConfig builds the forecast estimator configuration record.
func (c *Config) EstimatorConfig() forecast.Config {
	fc := forecast.Config{
		MinPoints:       c.Estimator.MinPoints,
		MinSpread:       c.Estimator.MinSpread,
		LowerConfidence: c.Estimator.LowerConfidence,
		UpperConfidence: c.Estimator.UpperConfidence,
		FallbackSpread:  c.Estimator.FallbackSpread,
	}
	if len(c.Estimator.SpreadTable) > 0 {
		fc.SpreadTable = make(map[string]map[forecast.Season]float64, len(c.Estimator.SpreadTable))
		for station, seasons := range c.Estimator.SpreadTable {
			m := make(map[forecast.Season]float64, len(seasons))
			for season, spread := range seasons {
				m[forecast.Season(season)] = spread
			}
			fc.SpreadTable[station] = m
		}
	}
	return fc
}

// StrategyCaps builds the sizing caps record.
func (c *Config) StrategyCaps() strategy.Caps {
	return strategy.Caps{
		FMax:         c.Caps.KellyCap,
		BankrollUnit: c.Caps.BankrollUnit,
		PerMarketCap: c.Caps.PerMarketCap,
		DailyCap:     c.Caps.DailyCap,
		MinEdge:      c.Caps.MinEdge,
		MinLiquidity: c.Caps.MinLiquidity,
		Fee:          c.Caps.Fee,
		Slippage:     c.Caps.Slippage,
	}
}

// PipelineConfig builds the combined pipeline configuration.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Estimator: c.EstimatorConfig(),
		Caps:      c.StrategyCaps(),
	}
}
