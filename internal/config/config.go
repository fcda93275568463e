package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Database struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Recorder struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"recorder"`
	Upstream struct {
		Source            string        `yaml:"source"`
		PrimaryURL        string        `yaml:"primary_url"`
		LegacyURL         string        `yaml:"legacy_url"`
		YahooURL          string        `yaml:"yahoo_url"`
		Timeout           time.Duration `yaml:"timeout"`
		Retries           *int          `yaml:"retries"`
		RetryDelay        time.Duration `yaml:"retry_delay"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		UserAgent         string        `yaml:"user_agent"`
		Proxy             string        `yaml:"proxy"`
	} `yaml:"upstream"`
	Backfill struct {
		LookbackDays int           `yaml:"lookback_days"`
		Cron         string        `yaml:"cron"`
		DailyCron    string        `yaml:"daily_cron"`
		Workers      int           `yaml:"workers"`
		RunTimeout   time.Duration `yaml:"run_timeout"`
		RunOnStart   bool          `yaml:"run_on_start"`
	} `yaml:"backfill"`
	Market struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"market"`
	Server struct {
		Addr         string   `yaml:"addr"`
		AllowOrigins []string `yaml:"allow_origins"`
		APIKey       string   `yaml:"api_key"`
	} `yaml:"server"`
	Notify struct {
		RevalidateURL    string `yaml:"revalidate_url"`
		RevalidateSecret string `yaml:"revalidate_secret"`
	} `yaml:"notify"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads config from a YAML file, then .env, then environment variable
// overrides, then fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func envInt(key string, dst *int) error {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			// bare numbers are seconds
			n, nerr := strconv.Atoi(v)
			if nerr != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			d = time.Duration(n) * time.Second
		}
		*dst = d
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.PostgresDSN = v
		c.Database.Driver = DriverPostgres
	}
	envString("DB_DRIVER", &c.Database.Driver)
	envString("SQLITE_PATH", &c.Database.SQLitePath)
	envString("RECORDER_SQLITE_PATH", &c.Recorder.SQLitePath)
	envString("PRICE_DATA_SOURCE", &c.Upstream.Source)
	envString("TWSE_PRIMARY_URL", &c.Upstream.PrimaryURL)
	envString("TWSE_LEGACY_URL", &c.Upstream.LegacyURL)
	envString("HTTPS_PROXY", &c.Upstream.Proxy)
	envString("MARKET_TZ", &c.Market.Timezone)
	envString("CRON_BACKFILL", &c.Backfill.Cron)
	envString("CRON_DAILY", &c.Backfill.DailyCron)
	envString("API_ADDR", &c.Server.Addr)
	envString("API_KEY", &c.Server.APIKey)
	envString("NEXT_REVALIDATE_URL", &c.Notify.RevalidateURL)
	envString("REVALIDATE_SECRET", &c.Notify.RevalidateSecret)
	envString("LOG_LEVEL", &c.Logging.Level)

	if v := os.Getenv("ALLOW_ORIGINS"); v != "" {
		c.Server.AllowOrigins = splitList(v)
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		c.Backfill.RunOnStart = v == "true" || v == "1"
	}
	if v := os.Getenv("UPSTREAM_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("UPSTREAM_RETRIES: %w", err)
		}
		c.Upstream.Retries = &n
	}

	return errors.Join(
		envInt("BACKFILL_LOOKBACK_DAYS", &c.Backfill.LookbackDays),
		envInt("BACKFILL_WORKERS", &c.Backfill.Workers),
		envDuration("UPSTREAM_TIMEOUT", &c.Upstream.Timeout),
		envDuration("BACKFILL_RUN_TIMEOUT", &c.Backfill.RunTimeout),
	)
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/finsite.db"
	}
	if c.Recorder.SQLitePath == "" {
		c.Recorder.SQLitePath = "data/finsite_runs.db"
	}
	if c.Upstream.Source == "" {
		c.Upstream.Source = "twse"
	}
	if c.Upstream.PrimaryURL == "" {
		c.Upstream.PrimaryURL = "https://www.twse.com.tw/rwd/zh/afterTrading/STOCK_DAY"
	}
	if c.Upstream.LegacyURL == "" {
		c.Upstream.LegacyURL = "https://www.twse.com.tw/exchangeReport/STOCK_DAY"
	}
	if c.Upstream.YahooURL == "" {
		c.Upstream.YahooURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 20 * time.Second
	}
	if c.Upstream.Retries == nil {
		n := 2
		c.Upstream.Retries = &n
	}
	if c.Upstream.RetryDelay == 0 {
		c.Upstream.RetryDelay = time.Second
	}
	if c.Upstream.RequestsPerSecond == 0 {
		c.Upstream.RequestsPerSecond = 1
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = "Mozilla/5.0"
	}
	if c.Backfill.LookbackDays == 0 {
		c.Backfill.LookbackDays = 7
	}
	if c.Backfill.Cron == "" {
		c.Backfill.Cron = "0 30 17 * * 1-5"
	}
	if c.Backfill.DailyCron == "" {
		c.Backfill.DailyCron = "0 5 17 * * 1-5"
	}
	if c.Backfill.Workers == 0 {
		c.Backfill.Workers = 1
	}
	if c.Backfill.RunTimeout == 0 {
		c.Backfill.RunTimeout = 30 * time.Minute
	}
	if c.Market.Timezone == "" {
		c.Market.Timezone = "Asia/Taipei"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database.sqlite_path is required"))
		}
	case DriverPostgres:
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("database.postgres_dsn (or DATABASE_URL) is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Upstream.Source != "twse" && c.Upstream.Source != "yahoo" {
		errs = append(errs, fmt.Errorf("upstream.source %q is not supported", c.Upstream.Source))
	}
	if c.Upstream.PrimaryURL == "" || c.Upstream.LegacyURL == "" {
		errs = append(errs, errors.New("upstream.primary_url and upstream.legacy_url are required"))
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, errors.New("upstream.timeout must be positive"))
	}
	if c.Upstream.Retries != nil && *c.Upstream.Retries < 0 {
		errs = append(errs, errors.New("upstream.retries must not be negative"))
	}
	if c.Backfill.LookbackDays < 0 {
		errs = append(errs, errors.New("backfill.lookback_days must not be negative"))
	}
	if c.Backfill.Workers < 1 {
		errs = append(errs, errors.New("backfill.workers must be at least 1"))
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("market.timezone: %w", err))
	}
	return errors.Join(errs...)
}

// Location returns the market timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Retries returns the configured upstream retry count.
func (c *Config) Retries() int {
	if c.Upstream.Retries == nil {
		return 0
	}
	return *c.Upstream.Retries
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
