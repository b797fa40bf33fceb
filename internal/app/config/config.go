// Package config loads the process configuration once at startup.
//
// Sources, later ones winning:
//  1. built-in defaults
//  2. .env in the working directory (best effort)
//  3. the YAML file named by SCANNER_CONFIG_FILE
//  4. environment variables
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stock_scanner/internal/feature/marketdata/adapters/finmind"
	"stock_scanner/internal/feature/marketdata/adapters/tpex"
	"stock_scanner/internal/feature/marketdata/adapters/twse"
	mdusecase "stock_scanner/internal/feature/marketdata/usecase"
	"stock_scanner/internal/feature/scanner/domain/entity"
	scanusecase "stock_scanner/internal/feature/scanner/usecase"
	"stock_scanner/internal/feature/symbollist/adapters/companyinfo"
	"stock_scanner/internal/platform/db"
	"stock_scanner/internal/platform/redis"
)

// EnvConfigFile names the optional YAML settings file.
const EnvConfigFile = "SCANNER_CONFIG_FILE"

// ErrInvalidConfig is returned for values that cannot be parsed or fail validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the immutable process configuration.
type Config struct {
	HTTPAddr  string
	JWTSecret string
	JWTTTL    time.Duration

	Redis redis.Config
	DB    db.Config

	TWSE        twse.Config
	TPEx        tpex.Config
	FinMind     finmind.Config
	CompanyInfo companyinfo.Config

	Aggregator mdusecase.Config
	Scanner    scanusecase.Config

	CacheNamespace string
	ResultTTL      time.Duration
	SectorTTL      time.Duration

	RequestsPerSecond float64       // outbound token bucket rate shared by every upstream client
	RequestBurst      int           // outbound token bucket burst
	BatchDelay        time.Duration // pause between scan batches
}

// fileConfig is the YAML layout of SCANNER_CONFIG_FILE. Zero values keep the defaults.
type fileConfig struct {
	Scan     entity.ScanSettings `yaml:"scan"`
	Pipeline struct {
		DiscoveryCap int           `yaml:"discovery_cap"`
		MinVolume    int64         `yaml:"min_volume"`
		FilterTopN   int           `yaml:"filter_top_n"`
		BatchSize    int           `yaml:"batch_size"`
		BatchDelay   time.Duration `yaml:"batch_delay"`
		ShallowDays  int           `yaml:"shallow_days"`
		DeepDays     int           `yaml:"deep_days"`
		FlowDays     int           `yaml:"flow_days"`
	} `yaml:"pipeline"`
	Upstream struct {
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`
		BreakerFailures   uint32        `yaml:"breaker_failures"`
		BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
		MaxInFlight       int           `yaml:"max_in_flight"`
		FlowTTL           time.Duration `yaml:"flow_ttl"`
	} `yaml:"upstream"`
	Cache struct {
		Namespace string        `yaml:"namespace"`
		ResultTTL time.Duration `yaml:"result_ttl"`
		SectorTTL time.Duration `yaml:"sector_ttl"`
	} `yaml:"cache"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		JWTTTL:            24 * time.Hour,
		Redis:             redis.LoadConfigFromEnv(),
		DB:                db.LoadConfigFromEnv(),
		TWSE:              twse.LoadConfig(),
		TPEx:              tpex.LoadConfig(),
		FinMind:           finmind.LoadConfig(),
		CompanyInfo:       companyinfo.LoadConfig(),
		Aggregator:        mdusecase.DefaultConfig(),
		Scanner:           scanusecase.DefaultConfig(),
		CacheNamespace:    "resonance",
		ResultTTL:         12 * time.Hour,
		SectorTTL:         7 * 24 * time.Hour,
		RequestsPerSecond: 5,
		RequestBurst:      2,
		BatchDelay:        500 * time.Millisecond,
	}
}

// Load builds the configuration from .env, the optional YAML file and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info(".env not found; using system environment variables")
	}

	cfg := Default()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
	}

	setFloat(&c.Scanner.Settings.VolumeRatio, f.Scan.VolumeRatio)
	setFloat(&c.Scanner.Settings.MAGap, f.Scan.MAGap)
	setFloat(&c.Scanner.Settings.BreakoutPct, f.Scan.BreakoutPct)

	setInt(&c.Scanner.DiscoveryCap, f.Pipeline.DiscoveryCap)
	if f.Pipeline.MinVolume > 0 {
		c.Scanner.MinVolume = f.Pipeline.MinVolume
	}
	setInt(&c.Scanner.FilterTopN, f.Pipeline.FilterTopN)
	setInt(&c.Scanner.BatchSize, f.Pipeline.BatchSize)
	setDuration(&c.BatchDelay, f.Pipeline.BatchDelay)
	setInt(&c.Scanner.ShallowDays, f.Pipeline.ShallowDays)
	setInt(&c.Scanner.DeepDays, f.Pipeline.DeepDays)
	setInt(&c.Scanner.FlowDays, f.Pipeline.FlowDays)

	setDuration(&c.Aggregator.SourceTimeout, f.Upstream.Timeout)
	setFloat(&c.RequestsPerSecond, f.Upstream.RequestsPerSecond)
	setInt(&c.RequestBurst, f.Upstream.Burst)
	if f.Upstream.BreakerFailures > 0 {
		c.Aggregator.BreakerFailures = f.Upstream.BreakerFailures
	}
	setDuration(&c.Aggregator.BreakerCooldown, f.Upstream.BreakerCooldown)
	setInt(&c.Aggregator.MaxInFlight, f.Upstream.MaxInFlight)
	setDuration(&c.Aggregator.FlowTTL, f.Upstream.FlowTTL)

	if f.Cache.Namespace != "" {
		c.CacheNamespace = f.Cache.Namespace
	}
	setDuration(&c.ResultTTL, f.Cache.ResultTTL)
	setDuration(&c.SectorTTL, f.Cache.SectorTTL)
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")

	var errs []error
	errs = append(errs,
		envDuration("JWT_TTL", &c.JWTTTL),
		envFloat("SCAN_VOLUME_RATIO", &c.Scanner.Settings.VolumeRatio),
		envFloat("SCAN_MA_GAP", &c.Scanner.Settings.MAGap),
		envFloat("SCAN_BREAKOUT_PCT", &c.Scanner.Settings.BreakoutPct),
		envInt("SCAN_DISCOVERY_CAP", &c.Scanner.DiscoveryCap),
		envInt("SCAN_FILTER_TOP_N", &c.Scanner.FilterTopN),
		envInt("SCAN_BATCH_SIZE", &c.Scanner.BatchSize),
		envDuration("SCAN_BATCH_DELAY", &c.BatchDelay),
		envDuration("UPSTREAM_TIMEOUT", &c.Aggregator.SourceTimeout),
		envFloat("UPSTREAM_RPS", &c.RequestsPerSecond),
		envInt("UPSTREAM_MAX_IN_FLIGHT", &c.Aggregator.MaxInFlight),
		envDuration("CACHE_RESULT_TTL", &c.ResultTTL),
		envDuration("CACHE_SECTOR_TTL", &c.SectorTTL),
	)
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: REDIS_DB=%q", ErrInvalidConfig, v))
		} else {
			c.Redis.DB = n
		}
	}
	return errors.Join(errs...)
}

// Validate checks the values a scan depends on.
func (c Config) Validate() error {
	if err := c.Scanner.Settings.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch {
	case c.Scanner.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be > 0", ErrInvalidConfig)
	case c.Scanner.FilterTopN <= 0 || c.Scanner.DiscoveryCap <= 0:
		return fmt.Errorf("%w: discovery cap and filter top-n must be > 0", ErrInvalidConfig)
	case c.Scanner.ShallowDays <= 0 || c.Scanner.DeepDays < c.Scanner.ShallowDays:
		return fmt.Errorf("%w: history windows must satisfy 0 < shallow <= deep", ErrInvalidConfig)
	case c.RequestsPerSecond <= 0:
		return fmt.Errorf("%w: requests per second must be > 0", ErrInvalidConfig)
	case c.Aggregator.SourceTimeout <= 0:
		return fmt.Errorf("%w: upstream timeout must be > 0", ErrInvalidConfig)
	case c.Aggregator.MaxInFlight <= 0:
		return fmt.Errorf("%w: upstream max in-flight must be > 0", ErrInvalidConfig)
	}
	return nil
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	*dst = f
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	*dst = d
	return nil
}
