package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
)

const (
	SourceMock      = "mock"
	SourceOctoparse = "octoparse"
)

type Config struct {
	App         AppConfig
	Server      HTTPServerConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Source      SourceConfig
	Scheduler   SchedulerConfig
	MetricsAddr string
	LogLevel    slog.Level
}

type AppConfig struct {
	Name string
	Env  string
}

type HTTPServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	// URL is optional; empty disables the shared token cache.
	URL string
}

type SourceConfig struct {
	Kind       string
	FixtureDir string
	Octoparse  OctoparseConfig
}

type OctoparseConfig struct {
	Username          string
	Password          string
	BaseURL           string
	DataURL           string
	RequestsPerSecond float64
}

type SchedulerConfig struct {
	Interval    time.Duration
	SyncOnStart bool
}

// fileConfig is the optional HCL file named by CONFIG_FILE.
type fileConfig struct {
	AppName               string         `hcl:"app_name,optional"`
	AppEnv                string         `hcl:"app_env,optional"`
	AppPort               int            `hcl:"app_port,optional"`
	ServerHost            string         `hcl:"server_host,optional"`
	MetricsAddr           string         `hcl:"metrics_addr,optional"`
	MongoURL              string         `hcl:"mongo_url,optional"`
	MongoDB               string         `hcl:"mongo_db,optional"`
	RedisURL              string         `hcl:"redis_url,optional"`
	DataSource            string         `hcl:"data_source,optional"`
	FixtureDir            string         `hcl:"fixture_dir,optional"`
	ScrapeIntervalSeconds int            `hcl:"scrape_interval_seconds,optional"`
	SyncOnStart           bool           `hcl:"sync_on_start,optional"`
	LogLevel              string         `hcl:"log_level,optional"`
	Octoparse             *octoparseFile `hcl:"octoparse,block"`
}

type octoparseFile struct {
	Username          string  `hcl:"username,optional"`
	Password          string  `hcl:"password,optional"`
	BaseURL           string  `hcl:"base_url,optional"`
	DataURL           string  `hcl:"data_url,optional"`
	RequestsPerSecond float64 `hcl:"requests_per_second,optional"`
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the
// environment. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := decodeFile(path, &fc); err != nil {
			return nil, err
		}
	}
	if fc.Octoparse == nil {
		fc.Octoparse = &octoparseFile{}
	}

	port, err := getEnvInt("APP_PORT", orInt(fc.AppPort, 5000))
	if err != nil {
		return nil, err
	}
	intervalSec, err := getEnvInt("SCRAPE_INTERVAL_SECONDS", orInt(fc.ScrapeIntervalSeconds, 3600))
	if err != nil {
		return nil, err
	}
	syncOnStart, err := getEnvBool("SYNC_ON_START", fc.SyncOnStart)
	if err != nil {
		return nil, err
	}
	rps, err := getEnvFloat("OCTOPARSE_REQUESTS_PER_SECOND", orFloat(fc.Octoparse.RequestsPerSecond, 5))
	if err != nil {
		return nil, err
	}
	level, err := parseLevel(getEnv("LOG_LEVEL", or(fc.LogLevel, "info")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name: getEnv("APP_NAME", or(fc.AppName, "jobsync")),
			Env:  getEnv("APP_ENV", or(fc.AppEnv, "development")),
		},
		Server: HTTPServerConfig{
			Host:         getEnv("SERVER_HOST", or(fc.ServerHost, "0.0.0.0")),
			Port:         port,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URL", fc.MongoURL),
			Database: getEnv("MONGO_DB", or(fc.MongoDB, "jobsync")),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", fc.RedisURL),
		},
		Source: SourceConfig{
			Kind:       strings.ToLower(getEnv("DATA_SOURCE", or(fc.DataSource, SourceMock))),
			FixtureDir: getEnv("FIXTURE_DIR", or(fc.FixtureDir, "./fixtures")),
			Octoparse: OctoparseConfig{
				Username:          getEnv("OCTOPARSE_USERNAME", fc.Octoparse.Username),
				Password:          getEnv("OCTOPARSE_PASSWORD", fc.Octoparse.Password),
				BaseURL:           getEnv("OCTOPARSE_BASE_URL", fc.Octoparse.BaseURL),
				DataURL:           getEnv("OCTOPARSE_DATA_URL", fc.Octoparse.DataURL),
				RequestsPerSecond: rps,
			},
		},
		Scheduler: SchedulerConfig{
			Interval:    time.Duration(intervalSec) * time.Second,
			SyncOnStart: syncOnStart,
		},
		MetricsAddr: getEnv("METRICS_ADDR", or(fc.MetricsAddr, ":2112")),
		LogLevel:    level,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Mongo.URI) == "" {
		return fmt.Errorf("MONGO_URL is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("SCRAPE_INTERVAL_SECONDS must be positive, got %s", c.Scheduler.Interval)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("APP_PORT %d is out of range", c.Server.Port)
	}
	if c.Source.Kind == SourceOctoparse {
		if c.Source.Octoparse.Username == "" || c.Source.Octoparse.Password == "" {
			return fmt.Errorf("DATA_SOURCE=octoparse requires OCTOPARSE_USERNAME and OCTOPARSE_PASSWORD")
		}
	}
	return nil
}

func decodeFile(path string, fc *fileConfig) error {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("parse config file %s: %s", path, diags.Error())
	}
	if diags := gohcl.DecodeBody(f.Body, nil, fc); diags.HasErrors() {
		return fmt.Errorf("decode config file %s: %s", path, diags.Error())
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, v)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	return b, nil
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orFloat(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}
