package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all runtime configuration. Every field maps to the upper-cased
// environment variable of its mapstructure key.
type Config struct {
	HTTPAddr    string   `mapstructure:"http_addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	StoreDriver    string `mapstructure:"store_driver"`
	DatabaseURL    string `mapstructure:"database_url"`
	DBHost         string `mapstructure:"db_host"`
	DBPort         string `mapstructure:"db_port"`
	DBUser         string `mapstructure:"db_user"`
	DBPassword     string `mapstructure:"db_password"`
	DBName         string `mapstructure:"db_name"`
	DBSSLMode      string `mapstructure:"db_sslmode"`
	DBMaxOpenConns int    `mapstructure:"db_max_open_conns"`
	DBMaxIdleConns int    `mapstructure:"db_max_idle_conns"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	MatchingLockTTL      time.Duration `mapstructure:"matching_lock_ttl"`
	MatchingCron         string        `mapstructure:"matching_cron"`
	MatchingProjectLimit int           `mapstructure:"matching_project_limit"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// String masks the database and redis secrets.
func (c Config) String() string {
	return fmt.Sprintf("Config{HTTPAddr:%s, StoreDriver:%s, DBHost:%s, DBName:%s, RedisAddr:%s, MatchingCron:%q, LogLevel:%s}",
		c.HTTPAddr, c.StoreDriver, c.DBHost, c.DBName, c.RedisAddr, c.MatchingCron, c.LogLevel)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("store_driver", StoreDriverPostgres)
	v.SetDefault("database_url", "")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "housing")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 10)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("matching_lock_ttl", 10*time.Minute)
	v.SetDefault("matching_cron", "")
	v.SetDefault("matching_project_limit", 0)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine, the environment is used as is
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr must not be empty")
	}
	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.DatabaseURL == "" && (c.DBHost == "" || c.DBName == "") {
			return fmt.Errorf("database_url or db_host and db_name must be set for the postgres store")
		}
	default:
		return fmt.Errorf("store_driver must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	if c.DBMaxOpenConns < 0 || c.DBMaxIdleConns < 0 {
		return fmt.Errorf("db pool sizes must be >= 0")
	}
	if c.DBMaxOpenConns > 0 && c.DBMaxIdleConns > c.DBMaxOpenConns {
		return fmt.Errorf("db_max_idle_conns (%d) must not exceed db_max_open_conns (%d)", c.DBMaxIdleConns, c.DBMaxOpenConns)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("redis_db must be >= 0")
	}
	if c.MatchingLockTTL <= 0 {
		return fmt.Errorf("matching_lock_ttl must be greater than 0")
	}
	if c.MatchingProjectLimit < 0 {
		return fmt.Errorf("matching_project_limit must be >= 0")
	}
	if c.MatchingCron != "" {
		if _, err := cron.ParseStandard(c.MatchingCron); err != nil {
			return fmt.Errorf("matching_cron %q: %w", c.MatchingCron, err)
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// DSN returns the postgres connection string. DATABASE_URL wins over the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}
