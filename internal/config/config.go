package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Trend     TrendConfig     `yaml:"trend" mapstructure:"trend"`
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. Driver is "sqlite" or
// "postgres".
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig configures the aggregate cache. Backend is one of "none",
// "memory", or "redis".
type CacheConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`
	Addr       string `yaml:"addr" mapstructure:"addr"`
	Password   string `yaml:"password" mapstructure:"password"`
	DB         int    `yaml:"db" mapstructure:"db"`
	TTLSecs    int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries"`
}

// TrendConfig configures trend estimation.
type TrendConfig struct {
	WindowSize int     `yaml:"window_size" mapstructure:"window_size"`
	Epsilon    float64 `yaml:"epsilon" mapstructure:"epsilon"`
}

// RetentionConfig configures the background retention sweeper.
type RetentionConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	MaxAgeDays       int     `yaml:"max_age_days" mapstructure:"max_age_days"`
	IntervalMins     int     `yaml:"interval_mins" mapstructure:"interval_mins"`
	BatchSize        int     `yaml:"batch_size" mapstructure:"batch_size"`
	BatchesPerSecond float64 `yaml:"batches_per_second" mapstructure:"batches_per_second"`
}

// IngestConfig configures batch ingestion.
type IngestConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INFRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "analytics.db")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.ttl_secs", 300)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("trend.window_size", 12)
	v.SetDefault("trend.epsilon", 0.01)
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.max_age_days", 365)
	v.SetDefault("retention.interval_mins", 60)
	v.SetDefault("retention.batch_size", 500)
	v.SetDefault("retention.batches_per_second", 2)
	v.SetDefault("ingest.max_concurrent", 4)
	v.SetDefault("ingest.retry_attempts", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the loaded configuration for values that cannot work.
// All problems are reported at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of sqlite, postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch c.Cache.Backend {
	case "none", "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("cache.backend %q is not one of none, memory, redis", c.Cache.Backend))
	}
	if c.Cache.Backend == "redis" && c.Cache.Addr == "" {
		problems = append(problems, "cache.addr is required for the redis backend")
	}

	if c.Trend.WindowSize < 2 {
		problems = append(problems, "trend.window_size must be at least 2")
	}
	if c.Trend.Epsilon < 0 {
		problems = append(problems, "trend.epsilon must not be negative")
	}

	if c.Retention.Enabled {
		if c.Retention.MaxAgeDays <= 0 {
			problems = append(problems, "retention.max_age_days must be positive when retention is enabled")
		}
		if c.Retention.IntervalMins <= 0 {
			problems = append(problems, "retention.interval_mins must be positive when retention is enabled")
		}
	}

	if c.Ingest.MaxConcurrent < 1 {
		problems = append(problems, "ingest.max_concurrent must be at least 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
