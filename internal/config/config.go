package config

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/byosamah/volteria-sub006/internal/migrations"
)

// Config holds all configuration for the volteria service
type Config struct {
	DBPath string
	Listen string

	// Reverse tunnel port pool handed out to controllers
	PortRangeMin int
	PortRangeMax int

	// Liveness and synchronous dispatch timing
	LivenessThreshold time.Duration
	AwaitTimeout      time.Duration
	PollInterval      time.Duration
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		DBPath:            "~/volteria/data/volteria.db",
		Listen:            ":8080",
		PortRangeMin:      2230,
		PortRangeMax:      2299,
		LivenessThreshold: 90 * time.Second,
		AwaitTimeout:      30 * time.Second,
		PollInterval:      1 * time.Second,
	}
}

// fileConfig mirrors Config for the optional YAML file. Durations are
// written as strings ("90s", "1m") and parsed on load.
type fileConfig struct {
	DBPath            string `yaml:"db_path"`
	Listen            string `yaml:"listen"`
	PortRangeMin      int    `yaml:"port_range_min"`
	PortRangeMax      int    `yaml:"port_range_max"`
	LivenessThreshold string `yaml:"liveness_threshold"`
	AwaitTimeout      string `yaml:"await_timeout"`
	PollInterval      string `yaml:"poll_interval"`
}

// LoadConfig builds the effective configuration: defaults, then the
// optional YAML file at path, then environment variables. Flags are
// applied by the command layer on top of the result.
func LoadConfig(path string) (*Config, error) {
	// Load .env if it exists; ignore error if file not found
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(c.expandPath(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.Listen != "" {
		c.Listen = fc.Listen
	}
	if fc.PortRangeMin != 0 {
		c.PortRangeMin = fc.PortRangeMin
	}
	if fc.PortRangeMax != 0 {
		c.PortRangeMax = fc.PortRangeMax
	}
	if err := setDuration(&c.LivenessThreshold, fc.LivenessThreshold, "liveness_threshold"); err != nil {
		return err
	}
	if err := setDuration(&c.AwaitTimeout, fc.AwaitTimeout, "await_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.PollInterval, fc.PollInterval, "poll_interval"); err != nil {
		return err
	}

	return nil
}

// applyEnv overrides file and default values from VOLTERIA_* variables
func (c *Config) applyEnv() error {
	if v := os.Getenv("VOLTERIA_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("VOLTERIA_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("VOLTERIA_PORT_RANGE_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid VOLTERIA_PORT_RANGE_MIN %q: %w", v, err)
		}
		c.PortRangeMin = n
	}
	if v := os.Getenv("VOLTERIA_PORT_RANGE_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid VOLTERIA_PORT_RANGE_MAX %q: %w", v, err)
		}
		c.PortRangeMax = n
	}
	if v := os.Getenv("VOLTERIA_LIVENESS_THRESHOLD"); v != "" {
		if err := setDuration(&c.LivenessThreshold, v, "VOLTERIA_LIVENESS_THRESHOLD"); err != nil {
			return err
		}
	}
	if v := os.Getenv("VOLTERIA_AWAIT_TIMEOUT"); v != "" {
		if err := setDuration(&c.AwaitTimeout, v, "VOLTERIA_AWAIT_TIMEOUT"); err != nil {
			return err
		}
	}
	if v := os.Getenv("VOLTERIA_POLL_INTERVAL"); v != "" {
		if err := setDuration(&c.PollInterval, v, "VOLTERIA_POLL_INTERVAL"); err != nil {
			return err
		}
	}
	return nil
}

func setDuration(dst *time.Duration, value, name string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	*dst = d
	return nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.PortRangeMin <= 0 || c.PortRangeMax <= 0 {
		return fmt.Errorf("port range bounds must be positive, got %d-%d", c.PortRangeMin, c.PortRangeMax)
	}
	if c.PortRangeMin > c.PortRangeMax {
		return fmt.Errorf("port range min %d exceeds max %d", c.PortRangeMin, c.PortRangeMax)
	}
	if c.AwaitTimeout <= 0 {
		return fmt.Errorf("await timeout must be positive, got %s", c.AwaitTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.LivenessThreshold <= 0 {
		return fmt.Errorf("liveness threshold must be positive, got %s", c.LivenessThreshold)
	}
	return nil
}

// InitializeDatabase creates and configures the database connection
func (c *Config) InitializeDatabase() (*sql.DB, error) {
	dbPath := c.expandPath(c.DBPath)

	// Ensure database directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Apply performance optimizations
	OptimizeDatabaseConnection(db)

	if err := ApplyPragmaOptimizations(db); err != nil {
		return nil, fmt.Errorf("failed to apply performance optimizations: %w", err)
	}

	// Run migrations
	if err := c.runMigrations(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// expandPath expands ~ to home directory
func (c *Config) expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Return original path if we can't get home dir
		return path
	}

	return filepath.Join(homeDir, path[2:])
}

// runMigrations runs all database migrations
func (c *Config) runMigrations(db *sql.DB) error {
	migrator := migrations.NewMigrator(db)

	for _, migration := range migrations.GetInitialMigrations() {
		migrator.AddMigration(migration)
	}
	for _, migration := range migrations.GetPerformanceMigrations() {
		migrator.AddMigration(migration)
	}

	if err := migrator.RunMigrations(); err != nil {
		return err
	}

	return nil
}
