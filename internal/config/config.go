package config

import (
	"bytes"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/kyleking/d3-pipeline/internal/errors"
)

const (
	// EnvPrefix prefixes every environment override
	EnvPrefix = "D3_PIPELINE_"

	// DefaultConfigFile is looked up in the working directory when no path is given
	DefaultConfigFile = "pipeline_config.toml"

	DriverPostgres = "postgres"
	DriverDuckDB   = "duckdb"

	maskedSecret = "********"
)

// Config represents the application configuration
type Config struct {
	Workspace   DatabaseConfig    `toml:"workspace"   envPrefix:"WORKSPACE_"`
	Source      DatabaseConfig    `toml:"source"      envPrefix:"SOURCE_"`
	Destination DatabaseConfig    `toml:"destination" envPrefix:"DESTINATION_"`
	Geography   GeographyConfig   `toml:"geography"`
	Suppression SuppressionConfig `toml:"suppression"`
	Delivery    DeliveryConfig    `toml:"delivery"`
	Logging     LoggingConfig     `toml:"logging"`
}

// DatabaseConfig describes one database connection. The source connection
// leaves DBName empty because each table edition names its own database.
type DatabaseConfig struct {
	Driver          string `toml:"driver"             env:"DRIVER"`
	Host            string `toml:"host"               env:"HOST"`
	Port            int    `toml:"port"               env:"PORT"`
	User            string `toml:"user"               env:"USER"`
	Password        string `toml:"password"           env:"PASSWORD"`
	DBName          string `toml:"dbname"             env:"DBNAME"`
	SSLMode         string `toml:"sslmode"            env:"SSLMODE"`
	Path            string `toml:"path"               env:"PATH"` // duckdb file, ":memory:" or empty for in-memory
	MaxConnections  int    `toml:"max_connections"    env:"MAX_CONNECTIONS"`
	MaxIdleConns    int    `toml:"max_idle_conns"     env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"  env:"CONN_MAX_LIFETIME"`
	QueryTimeout    string `toml:"query_timeout"      env:"QUERY_TIMEOUT"`
}

// GeographyConfig names the lookup relation that maps shapes to geoids
type GeographyConfig struct {
	LookupRelation   string `toml:"lookup_relation"    env:"GEOGRAPHY_LOOKUP_RELATION"`
	GeometryColumn   string `toml:"geometry_column"    env:"GEOGRAPHY_GEOMETRY_COLUMN"`
	GeoIDArrayColumn string `toml:"geoid_array_column" env:"GEOGRAPHY_GEOID_ARRAY_COLUMN"`
}

// SuppressionConfig tunes the suppression engine
type SuppressionConfig struct {
	Workers int `toml:"workers" env:"SUPPRESSION_WORKERS"` // 0 or 1 evaluates rows serially
}

// DeliveryConfig controls how result tables are written
type DeliveryConfig struct {
	DefaultSchema string `toml:"default_schema" env:"DELIVERY_DEFAULT_SCHEMA"`
	BatchSize     int    `toml:"batch_size"     env:"DELIVERY_BATCH_SIZE"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `toml:"level"      env:"LOG_LEVEL"`      // debug, info, warn, error
	Format    string `toml:"format"     env:"LOG_FORMAT"`     // text, json
	Output    string `toml:"output"     env:"LOG_OUTPUT"`     // stdout, stderr, file
	File      string `toml:"file"       env:"LOG_FILE"`       // log file path when output is file
	AddSource bool   `toml:"add_source" env:"LOG_ADD_SOURCE"` // add source file and line info to logs
}

// DefaultConfig returns the configuration used when nothing else is set
func DefaultConfig() *Config {
	return &Config{
		Workspace:   defaultDatabase(DriverPostgres),
		Source:      defaultDatabase(DriverPostgres),
		Destination: defaultDatabase(DriverPostgres),
		Geography: GeographyConfig{
			LookupRelation:   "shp.blockgeom2geoids20",
			GeometryColumn:   "geom",
			GeoIDArrayColumn: "geoids",
		},
		Suppression: SuppressionConfig{
			Workers: 4,
		},
		Delivery: DeliveryConfig{
			DefaultSchema: "d3_present",
			BatchSize:     500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			File:   "~/.config/d3-pipeline/logs/pipeline.log",
		},
	}
}

func defaultDatabase(driver string) DatabaseConfig {
	return DatabaseConfig{
		Driver:          driver,
		Host:            "localhost",
		Port:            5432,
		SSLMode:         "disable",
		MaxConnections:  10,
		MaxIdleConns:    5,
		ConnMaxLifetime: "30m",
		QueryTimeout:    "30m",
	}
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// An explicit configPath must exist; the default path is optional.
func LoadConfigWithOverrides(configPath string, flagOverrides map[string]interface{}) (*Config, error) {
	config := DefaultConfig()

	explicit := configPath != ""
	if !explicit {
		configPath = getConfigPath()
	}

	configPath = expandPath(configPath)
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to load config file")
		}
	} else if explicit {
		return nil, errors.Wrapf(err, errors.ErrTypeConfig, "config file %s not found", configPath).
			WithSuggestion("Copy config_template.toml to pipeline_config.toml and fill in credentials")
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to parse environment variables")
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to apply flag overrides")
		}
	}

	config.ExpandAllPaths()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "invalid configuration")
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a TOML file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if _, err := toml.Decode(string(data), &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyEnvironmentOverrides overrides fields whose environment variable is set
func applyEnvironmentOverrides(config *Config) error {
	return env.ParseWithOptions(config, env.Options{
		Prefix: EnvPrefix,
	})
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "verbose":
			if b, ok := value.(bool); ok && b {
				config.Logging.Level = "debug"
			}
		case "log-format":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Format = str
			}
		case "destination-schema":
			if str, ok := value.(string); ok && str != "" {
				config.Delivery.DefaultSchema = str
			}
		case "workers":
			if n, ok := value.(int); ok && n > 0 {
				config.Suppression.Workers = n
			}
		default:
			return fmt.Errorf("unknown flag override: %s", key)
		}
	}

	return nil
}

// mergeConfigs merges non-zero source values into target
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := 0; i < s.NumField(); i++ {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	databases := []struct {
		name string
		cfg  DatabaseConfig
	}{
		{"workspace", config.Workspace},
		{"source", config.Source},
		{"destination", config.Destination},
	}
	for _, db := range databases {
		if err := db.cfg.validate(); err != nil {
			return fmt.Errorf("%s database: %w", db.name, err)
		}
	}

	if config.Geography.LookupRelation == "" {
		return fmt.Errorf("geography lookup relation is required")
	}

	if config.Suppression.Workers < 0 {
		return fmt.Errorf("suppression workers must be non-negative: %d", config.Suppression.Workers)
	}

	if config.Delivery.BatchSize <= 0 {
		return fmt.Errorf("delivery batch size must be positive: %d", config.Delivery.BatchSize)
	}

	return nil
}

func (d DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverPostgres, DriverDuckDB:
	default:
		return fmt.Errorf("invalid driver: %s (must be postgres or duckdb)", d.Driver)
	}

	if _, err := time.ParseDuration(d.QueryTimeout); err != nil {
		return fmt.Errorf("invalid query timeout: %s", d.QueryTimeout)
	}

	if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
		return fmt.Errorf("invalid connection max lifetime: %s", d.ConnMaxLifetime)
	}

	if d.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive: %d", d.MaxConnections)
	}

	return nil
}

// DriverName returns the database/sql driver registered for this connection
func (d DatabaseConfig) DriverName() string {
	return d.Driver
}

// DSN builds the connection string. dbname overrides DBName when set.
func (d DatabaseConfig) DSN(dbname string) string {
	if d.Driver == DriverDuckDB {
		if d.Path == ":memory:" {
			return ""
		}

		return expandPath(d.Path)
	}

	if dbname == "" {
		dbname = d.DBName
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + dbname,
	}
	if d.User != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}

	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}

	return u.String()
}

// Timeout returns the parsed query timeout
func (d DatabaseConfig) Timeout() time.Duration {
	timeout, err := time.ParseDuration(d.QueryTimeout)
	if err != nil {
		return 0
	}

	return timeout
}

// Lifetime returns the parsed connection max lifetime
func (d DatabaseConfig) Lifetime() time.Duration {
	lifetime, err := time.ParseDuration(d.ConnMaxLifetime)
	if err != nil {
		return 0
	}

	return lifetime
}

// Masked returns a copy with credentials hidden, for display
func (c *Config) Masked() *Config {
	masked := *c
	for _, db := range []*DatabaseConfig{&masked.Workspace, &masked.Source, &masked.Destination} {
		if db.Password != "" {
			db.Password = maskedSecret
		}
	}

	return &masked
}

// Encode renders the configuration as TOML
func (c *Config) Encode() (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	return buf.String(), nil
}

// SaveConfig saves configuration to the given path
func SaveConfig(config *Config, configPath string) error {
	if configPath == "" {
		configPath = getConfigPath()
	}

	configPath = expandPath(configPath)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := config.Encode()
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv(EnvPrefix + "CONFIG"); configPath != "" {
		return configPath
	}

	return DefaultConfigFile
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandPath is the exported form of expandPath
func ExpandPath(path string) string {
	return expandPath(path)
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Workspace.Path = expandPath(c.Workspace.Path)
	c.Source.Path = expandPath(c.Source.Path)
	c.Destination.Path = expandPath(c.Destination.Path)
	c.Logging.File = expandPath(c.Logging.File)
}
