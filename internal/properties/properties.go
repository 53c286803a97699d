// Package properties loads the service configuration from defaults, an
// optional YAML file and FLOODMAPPER_* environment variables.
package properties

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	STAC         STACConfig         `mapstructure:"stac"`
	Grid         GridConfig         `mapstructure:"grid"`
	Compute      ComputeConfig      `mapstructure:"compute"`
	Calibration  CalibrationConfig  `mapstructure:"calibration"`
	Output       OutputConfig       `mapstructure:"output"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type STACConfig struct {
	APIURL              string        `mapstructure:"api_url"`
	Sig0Collection      string        `mapstructure:"sig0_collection"`
	HparCollection      string        `mapstructure:"hpar_collection"`
	PliaCollection      string        `mapstructure:"plia_collection"`
	LandCoverAPIURL     string        `mapstructure:"landcover_api_url"`
	LandCoverCollection string        `mapstructure:"landcover_collection"`
	LandCoverBand       string        `mapstructure:"landcover_band"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Retries             int           `mapstructure:"retries"`
	PageSize            int           `mapstructure:"page_size"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	TokenURL            string        `mapstructure:"token_url"`
	CacheDir            string        `mapstructure:"cache_dir"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
}

type GridConfig struct {
	CRS        string  `mapstructure:"crs"`
	Resolution float64 `mapstructure:"resolution"`
	TargetCRS  string  `mapstructure:"target_crs"`
	Resampling string  `mapstructure:"resampling"`
}

type ComputeConfig struct {
	Workers       int `mapstructure:"workers"`
	LoadWorkers   int `mapstructure:"load_workers"`
	SpeckleWindow int `mapstructure:"speckle_window"`
}

type CalibrationConfig struct {
	WaterSlope           float64 `mapstructure:"water_slope"`
	WaterIntercept       float64 `mapstructure:"water_intercept"`
	WaterStd             float64 `mapstructure:"water_std"`
	MinIncidence         float64 `mapstructure:"min_incidence"`
	MaxIncidence         float64 `mapstructure:"max_incidence"`
	SeparationFactor     float64 `mapstructure:"separation_factor"`
	OutlierFactor        float64 `mapstructure:"outlier_factor"`
	ProbabilityThreshold float64 `mapstructure:"probability_threshold"`
	PermanentWaterClass  float64 `mapstructure:"permanent_water_class"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type NotificationConfig struct {
	DiscordErrorURL   string `mapstructure:"discord_error_url"`
	DiscordSuccessURL string `mapstructure:"discord_success_url"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Debug bool   `mapstructure:"debug"`
}

// RootPath is the base directory of relative data paths.
func RootPath() string {
	if root := os.Getenv("ROOT_PATH"); root != "" {
		return root
	}
	return "."
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FLOODMAPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	root := RootPath()

	v.SetDefault("stac.api_url", "https://stac.eodc.eu/api/v1")
	v.SetDefault("stac.sig0_collection", "SENTINEL1_SIG0_20M")
	v.SetDefault("stac.hpar_collection", "SENTINEL1_HPAR")
	v.SetDefault("stac.plia_collection", "SENTINEL1_MPLIA")
	v.SetDefault("stac.landcover_api_url", "https://services.terrascope.be/stac")
	v.SetDefault("stac.landcover_collection", "urn:eop:VITO:ESA_WorldCover_10m_2021_AWS_V2")
	v.SetDefault("stac.landcover_band", "ESA_WORLDCOVER_10M_MAP")
	v.SetDefault("stac.timeout", "60s")
	v.SetDefault("stac.retries", 3)
	v.SetDefault("stac.page_size", 100)
	v.SetDefault("stac.client_id", "")
	v.SetDefault("stac.client_secret", "")
	v.SetDefault("stac.token_url", "")
	v.SetDefault("stac.cache_dir", filepath.Join(root, "data", "cache", "stac"))
	v.SetDefault("stac.cache_ttl", "24h")

	v.SetDefault("grid.crs", "EPSG:27704")
	v.SetDefault("grid.resolution", 20)
	v.SetDefault("grid.target_crs", "EPSG:4326")
	v.SetDefault("grid.resampling", "nearest")

	v.SetDefault("compute.workers", 6)
	v.SetDefault("compute.load_workers", 4)
	v.SetDefault("compute.speckle_window", 5)

	v.SetDefault("calibration.water_slope", -0.394181)
	v.SetDefault("calibration.water_intercept", -4.142015)
	v.SetDefault("calibration.water_std", 2.754041)
	v.SetDefault("calibration.min_incidence", 27)
	v.SetDefault("calibration.max_incidence", 48)
	v.SetDefault("calibration.separation_factor", 0.5)
	v.SetDefault("calibration.outlier_factor", 3)
	v.SetDefault("calibration.probability_threshold", 0.8)
	v.SetDefault("calibration.permanent_water_class", 80)

	v.SetDefault("output.dir", filepath.Join(root, "data", "result"))

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("notification.discord_error_url", "")
	v.SetDefault("notification.discord_success_url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.debug", false)
}

func (c *Config) Validate() error {
	if c.STAC.APIURL == "" {
		return errors.New("stac.api_url is required")
	}
	if c.STAC.Sig0Collection == "" || c.STAC.HparCollection == "" || c.STAC.PliaCollection == "" {
		return errors.New("stac sig0, hpar and plia collections are required")
	}
	if c.STAC.LandCoverCollection != "" && c.STAC.LandCoverBand == "" {
		return errors.New("stac.landcover_band is required when a land cover collection is set")
	}
	if c.STAC.Retries < 0 {
		return errors.New("stac.retries must not be negative")
	}
	if c.STAC.PageSize < 1 {
		return errors.New("stac.page_size must be at least 1")
	}
	if (c.STAC.ClientID == "") != (c.STAC.TokenURL == "") {
		return errors.New("stac.client_id and stac.token_url must be set together")
	}

	if c.Grid.CRS == "" || c.Grid.TargetCRS == "" {
		return errors.New("grid.crs and grid.target_crs are required")
	}
	if c.Grid.Resolution <= 0 {
		return errors.New("grid.resolution must be positive")
	}

	if c.Compute.Workers < 1 || c.Compute.LoadWorkers < 1 {
		return errors.New("compute.workers and compute.load_workers must be at least 1")
	}
	if c.Compute.SpeckleWindow < 1 || c.Compute.SpeckleWindow%2 == 0 {
		return fmt.Errorf("compute.speckle_window must be a positive odd number, got %d", c.Compute.SpeckleWindow)
	}

	if c.Calibration.WaterStd <= 0 {
		return errors.New("calibration.water_std must be positive")
	}
	if c.Calibration.MinIncidence > c.Calibration.MaxIncidence {
		return errors.New("calibration.min_incidence must not exceed calibration.max_incidence")
	}
	if c.Calibration.ProbabilityThreshold < 0 || c.Calibration.ProbabilityThreshold > 1 {
		return errors.New("calibration.probability_threshold must be between 0 and 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return errors.New("logging.level must be one of: debug, info, warn, error")
	}
	return nil
}
