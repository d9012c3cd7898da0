package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/rosterscd/internal/db"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ROSTER_DATABASE_HOST.
const EnvPrefix = "ROSTER"

// Config is the full process configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store"`
	Source    SourceConfig    `mapstructure:"source"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`

	// ConfigFile is the file that was read, empty when only defaults and env applied.
	ConfigFile string `mapstructure:"-"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DB converts the section into a connection config.
func (c DatabaseConfig) DB() db.Config {
	return db.Config{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		DBName:   c.DBName,
		SSLMode:  c.SSLMode,
	}
}

type StoreConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver string `mapstructure:"driver"`
	// Table pins the target table. Empty derives tbl_<object name> per trigger.
	Table      string `mapstructure:"table"`
	Schema     string `mapstructure:"schema"`
	SQLitePath string `mapstructure:"sqlite_path"`
	// Migrate applies the bookkeeping migrations on startup.
	Migrate bool `mapstructure:"migrate"`
}

type SourceConfig struct {
	// Driver is s3 or file.
	Driver string   `mapstructure:"driver"`
	Root   string   `mapstructure:"root"`
	S3     S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

type IngestionConfig struct {
	// HeaderRow is the zero-based header row; negative detects the first non-empty row.
	HeaderRow           int    `mapstructure:"header_row"`
	Sheet               string `mapstructure:"sheet"`
	SchemaFile          string `mapstructure:"schema_file"`
	AllowUnknownColumns bool   `mapstructure:"allow_unknown_columns"`
	Timezone            string `mapstructure:"timezone"`
	// DateOrder is mdy or dmy.
	DateOrder string `mapstructure:"date_order"`
}

// HeaderRowIndex returns nil when the header row should be detected.
func (c IngestionConfig) HeaderRowIndex() *int {
	if c.HeaderRow < 0 {
		return nil
	}
	idx := c.HeaderRow
	return &idx
}

// Location resolves the processing timezone used for "today".
func (c IngestionConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MetricsPath    string        `mapstructure:"metrics_path"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	database := db.DefaultConfig()
	return Config{
		Database: DatabaseConfig{
			Host:     database.Host,
			Port:     database.Port,
			User:     database.User,
			Password: database.Password,
			DBName:   database.DBName,
			SSLMode:  database.SSLMode,
		},
		Store: StoreConfig{
			Driver:     "postgres",
			Schema:     "public",
			SQLitePath: "roster.db",
			Migrate:    true,
		},
		Source: SourceConfig{
			Driver: "s3",
			Root:   ".",
			S3:     S3Config{Region: "us-east-1"},
		},
		Ingestion: IngestionConfig{
			HeaderRow: -1,
			Timezone:  "UTC",
			DateOrder: "mdy",
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			MetricsPath:    "/metrics",
			RunTimeout:     5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config.yaml from configPath (when present) and applies ROSTER_* environment overrides.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so that env overrides apply even without a config file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("database.host", cfg.Database.Host)
	v.SetDefault("database.port", cfg.Database.Port)
	v.SetDefault("database.user", cfg.Database.User)
	v.SetDefault("database.password", cfg.Database.Password)
	v.SetDefault("database.dbname", cfg.Database.DBName)
	v.SetDefault("database.sslmode", cfg.Database.SSLMode)

	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.table", cfg.Store.Table)
	v.SetDefault("store.schema", cfg.Store.Schema)
	v.SetDefault("store.sqlite_path", cfg.Store.SQLitePath)
	v.SetDefault("store.migrate", cfg.Store.Migrate)

	v.SetDefault("source.driver", cfg.Source.Driver)
	v.SetDefault("source.root", cfg.Source.Root)
	v.SetDefault("source.s3.region", cfg.Source.S3.Region)
	v.SetDefault("source.s3.endpoint", cfg.Source.S3.Endpoint)
	v.SetDefault("source.s3.access_key_id", cfg.Source.S3.AccessKeyID)
	v.SetDefault("source.s3.secret_access_key", cfg.Source.S3.SecretAccessKey)
	v.SetDefault("source.s3.path_style", cfg.Source.S3.PathStyle)

	v.SetDefault("ingestion.header_row", cfg.Ingestion.HeaderRow)
	v.SetDefault("ingestion.sheet", cfg.Ingestion.Sheet)
	v.SetDefault("ingestion.schema_file", cfg.Ingestion.SchemaFile)
	v.SetDefault("ingestion.allow_unknown_columns", cfg.Ingestion.AllowUnknownColumns)
	v.SetDefault("ingestion.timezone", cfg.Ingestion.Timezone)
	v.SetDefault("ingestion.date_order", cfg.Ingestion.DateOrder)

	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.allowed_origins", cfg.HTTP.AllowedOrigins)
	v.SetDefault("http.metrics_path", cfg.HTTP.MetricsPath)
	v.SetDefault("http.run_timeout", cfg.HTTP.RunTimeout)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("store.driver must be postgres, sqlite or memory, got %q", c.Store.Driver)
	}
	switch c.Source.Driver {
	case "s3", "file":
	default:
		return fmt.Errorf("source.driver must be s3 or file, got %q", c.Source.Driver)
	}
	switch c.Ingestion.DateOrder {
	case "mdy", "dmy":
	default:
		return fmt.Errorf("ingestion.date_order must be mdy or dmy, got %q", c.Ingestion.DateOrder)
	}
	if _, err := c.Ingestion.Location(); err != nil {
		return err
	}
	return nil
}
