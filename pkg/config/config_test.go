package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("FUNDLEDGER_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
	if cfg.Location().String() != DefaultTimeZone {
		t.Errorf("Expected location %s, got %s", DefaultTimeZone, cfg.Location())
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "fundledger.yaml")
	yaml := "addr: \":9090\"\ndb_path: /tmp/ledger.db\nreport_buckets: 6\ndefault_after_missed: 3\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("FUNDLEDGER_CONFIG", path)
	t.Setenv("FUNDLEDGER_DB", "/var/lib/ledger.db")
	t.Setenv("FUNDLEDGER_TZ", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Expected addr from file, got %s", cfg.Addr)
	}
	if cfg.DBPath != "/var/lib/ledger.db" {
		t.Errorf("Expected db path from env, got %s", cfg.DBPath)
	}
	if cfg.ReportBuckets != 6 || cfg.DefaultAfterMissed != 3 {
		t.Errorf("Expected 6 buckets and threshold 3, got %d and %d", cfg.ReportBuckets, cfg.DefaultAfterMissed)
	}
	if cfg.TimeZone != "UTC" {
		t.Errorf("Expected UTC, got %s", cfg.TimeZone)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("FUNDLEDGER_CONFIG", "")
	// Registered so the value loaded from .env is cleared after the test.
	t.Setenv("FUNDLEDGER_LOG_LEVEL", "")
	os.Unsetenv("FUNDLEDGER_LOG_LEVEL")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FUNDLEDGER_LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level from .env, got %s", cfg.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"bad zone":      func(c *Config) { c.TimeZone = "Mars/Olympus" },
		"bad cron":      func(c *Config) { c.RecomputeCron = "every day" },
		"no buckets":    func(c *Config) { c.ReportBuckets = 0 },
		"negative miss": func(c *Config) { c.DefaultAfterMissed = -1 },
		"no addr":       func(c *Config) { c.Addr = "" },
		"bad storage":   func(c *Config) { c.Storage = "postgres" },
		"no db path":    func(c *Config) { c.DBPath = "" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	cfg := Default()
	cfg.RecomputeCron = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected empty schedule to be allowed, got %v", err)
	}

	cfg = Default()
	cfg.Storage = StorageMemory
	cfg.DBPath = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected memory storage without a db path, got %v", err)
	}
}

func TestLoad_BadInt(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("FUNDLEDGER_CONFIG", "")
	t.Setenv("FUNDLEDGER_REPORT_BUCKETS", "twelve")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for non-numeric bucket count")
	}
}

func TestLoad_MalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("FUNDLEDGER_CONFIG", "")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FUNDLEDGER_ADDR=\":7070\n"), 0o600); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("Expected error for unterminated quote in .env")
	}
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore Chdir: %v", err)
		}
	})
}
