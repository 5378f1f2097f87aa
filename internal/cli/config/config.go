package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/schemamirror/sfsync/internal/store"
)

// Config represents the sfsync configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Salesforce SalesforceConfig `mapstructure:"salesforce"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	DSN      string `mapstructure:"dsn"`
}

// SalesforceConfig identifies the org and the tooling used to reach it
type SalesforceConfig struct {
	Org        string `mapstructure:"org"`
	CLIPath    string `mapstructure:"cli_path"`
	APIVersion string `mapstructure:"api_version"`
}

// SyncConfig toggles the sync phases
type SyncConfig struct {
	Fields             bool   `mapstructure:"fields"`
	FieldUsage         bool   `mapstructure:"field_usage"`
	Flows              bool   `mapstructure:"flows"`
	KeepFlowFiles      bool   `mapstructure:"keep_flow_files"`
	FlowOutputDir      string `mapstructure:"flow_output_dir"`
	VerboseFlowLogging bool   `mapstructure:"verbose_flow_logging"`
}

// RedisConfig configures the optional run lock
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"database.driver":           "SQL_DRIVER",
	"database.host":             "SQL_SERVER",
	"database.port":             "SQL_PORT",
	"database.name":             "SQL_DATABASE",
	"database.user":             "SQL_USERNAME",
	"database.password":         "SQL_PASSWORD",
	"database.sslmode":          "SQL_SSLMODE",
	"database.dsn":              "SQL_DSN",
	"salesforce.org":            "SALESFORCE_ORG",
	"salesforce.cli_path":       "SF_CLI",
	"salesforce.api_version":    "SF_API_VERSION",
	"sync.fields":               "SYNC_FIELDS",
	"sync.field_usage":          "SYNC_FIELD_USAGE",
	"sync.flows":                "SYNC_FLOWS",
	"sync.keep_flow_files":      "KEEP_FLOW_FILES",
	"sync.flow_output_dir":      "FLOW_OUTPUT_DIR",
	"sync.verbose_flow_logging": "VERBOSE_FLOW_LOGGING",
	"redis.url":                 "REDIS_URL",
	"redis.lock_ttl":            "RUN_LOCK_TTL",
	"log.level":                 "LOG_LEVEL",
}

// Load reads .env, then sfsync.yml/sfsync.yaml if present, then the environment
func Load() (*Config, error) {
	// A missing .env is normal; real environment variables always win over it.
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "salesforce_meta")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.dsn", "")
	v.SetDefault("salesforce.org", "")
	v.SetDefault("salesforce.cli_path", "sf")
	v.SetDefault("salesforce.api_version", "59.0")
	v.SetDefault("sync.fields", true)
	v.SetDefault("sync.field_usage", true)
	v.SetDefault("sync.flows", true)
	v.SetDefault("sync.keep_flow_files", false)
	v.SetDefault("sync.flow_output_dir", "sf_flows")
	v.SetDefault("sync.verbose_flow_logging", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.lock_ttl", 2*time.Hour)
	v.SetDefault("log.level", "info")

	// Set config name and paths
	v.SetConfigName("sfsync")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// StoreConfig converts the database section for the store package
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Driver:   c.Database.Driver,
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		Name:     c.Database.Name,
		User:     c.Database.User,
		Password: c.Database.Password,
		SSLMode:  c.Database.SSLMode,
		DSN:      c.Database.DSN,
	}
}

// AnyPhaseEnabled reports whether a sync run would do anything
func (c *Config) AnyPhaseEnabled() bool {
	return c.Sync.Fields || c.Sync.FieldUsage || c.Sync.Flows
}

// ValidateForSync checks the settings only a sync run needs
func (c *Config) ValidateForSync() error {
	if c.Salesforce.Org == "" {
		return fmt.Errorf("SALESFORCE_ORG is not set")
	}
	if c.Sync.Flows && c.Sync.FlowOutputDir == "" {
		return fmt.Errorf("FLOW_OUTPUT_DIR must not be empty when flow sync is enabled")
	}
	return nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if _, err := store.DialectForDriver(cfg.Database.Driver); err != nil {
		return err
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got: %s", cfg.Log.Level)
	}

	if cfg.Redis.URL != "" && cfg.Redis.LockTTL <= 0 {
		return fmt.Errorf("redis.lock_ttl must be positive, got: %s", cfg.Redis.LockTTL)
	}
	return nil
}
