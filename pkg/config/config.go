// Package config loads service settings from an optional YAML file, a .env
// file and the environment, in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr          = ":8080"
	DefaultDBPath        = "fundledger.db"
	DefaultTimeZone      = "Asia/Kolkata"
	DefaultRecomputeCron = "0 1 * * *"
	DefaultLogLevel      = "info"
	DefaultReportBuckets = 12
	DefaultConfigFile    = "config.yaml"
)

// Storage backends. The memory backend keeps nothing across restarts.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

type Config struct {
	Addr          string `yaml:"addr"`
	Storage       string `yaml:"storage"`
	DBPath        string `yaml:"db_path"`
	TimeZone      string `yaml:"time_zone"`
	RecomputeCron string `yaml:"recompute_cron"`
	LogLevel      string `yaml:"log_level"`
	ReportBuckets int    `yaml:"report_buckets"`
	// DefaultAfterMissed marks a loan defaulted at this many missed
	// installments. Zero disables it.
	DefaultAfterMissed int `yaml:"default_after_missed"`
}

func Default() Config {
	return Config{
		Addr:          DefaultAddr,
		Storage:       StorageSQLite,
		DBPath:        DefaultDBPath,
		TimeZone:      DefaultTimeZone,
		RecomputeCron: DefaultRecomputeCron,
		LogLevel:      DefaultLogLevel,
		ReportBuckets: DefaultReportBuckets,
	}
}

// Load builds the configuration. A missing YAML or .env file is not an error.
func Load() (Config, error) {
	cfg := Default()

	path := os.Getenv("FUNDLEDGER_CONFIG")
	if path == "" {
		path = DefaultConfigFile
	}
	if err := cfg.readFile(path); err != nil {
		return cfg, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"FUNDLEDGER_ADDR":      &c.Addr,
		"FUNDLEDGER_STORAGE":   &c.Storage,
		"FUNDLEDGER_DB":        &c.DBPath,
		"FUNDLEDGER_TZ":        &c.TimeZone,
		"FUNDLEDGER_RECOMPUTE": &c.RecomputeCron,
		"FUNDLEDGER_LOG_LEVEL": &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"FUNDLEDGER_REPORT_BUCKETS":       &c.ReportBuckets,
		"FUNDLEDGER_DEFAULT_AFTER_MISSED": &c.DefaultAfterMissed,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	switch c.Storage {
	case StorageSQLite:
		if c.DBPath == "" {
			return errors.New("db path must not be empty")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}
	if c.RecomputeCron != "" {
		if _, err := cron.ParseStandard(c.RecomputeCron); err != nil {
			return fmt.Errorf("invalid recompute schedule %q: %w", c.RecomputeCron, err)
		}
	}
	if c.ReportBuckets < 1 {
		return fmt.Errorf("report buckets must be positive, got %d", c.ReportBuckets)
	}
	if c.DefaultAfterMissed < 0 {
		return fmt.Errorf("default after missed must not be negative, got %d", c.DefaultAfterMissed)
	}
	return nil
}

// Location is the time zone that defines "today" for the ledger and the
// recompute schedule.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
