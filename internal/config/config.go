// Package config loads chartbot configuration from YAML, a .env file and
// environment variables, in that order of precedence (last wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Predictor     PredictorConfig     `yaml:"predictor"`
	Matching      MatchingConfig      `yaml:"matching"`
	Cache         CacheConfig         `yaml:"cache"`
	History       HistoryConfig       `yaml:"history"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	MaxUploadBytes   int64         `yaml:"max_upload_bytes"`
	SessionIdle      time.Duration `yaml:"session_idle"`
}

// PredictorConfig points at the external prediction service.
type PredictorConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Path           string        `yaml:"path"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// MatchingConfig controls intent resolution and chart building.
type MatchingConfig struct {
	PlotTypes   []string `yaml:"plot_types"`
	MaxDistance int      `yaml:"max_distance"` // 0 accepts any match
	NaNPolicy   string   `yaml:"nan_policy"`   // exclude or flag
}

// CacheConfig holds prediction cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory, redis or none
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// HistoryConfig holds the query history store location.
type HistoryConfig struct {
	Path string `yaml:"path"` // sqlite file, ":memory:" or empty to disable
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads path (optional), then .env (optional), then the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8001,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"http://localhost:4200", "http://127.0.0.1:4200"},
			MaxUploadBytes:   100 << 20,
			SessionIdle:      2 * time.Hour,
		},
		Predictor: PredictorConfig{
			BaseURL:        "http://127.0.0.1:5000",
			Path:           "/process",
			Timeout:        30 * time.Second,
			MaxRetries:     2,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Matching: MatchingConfig{
			PlotTypes:   []string{"scatter", "bar", "line", "doughnut"},
			MaxDistance: 0,
			NaNPolicy:   "exclude",
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        10 * time.Minute,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
		History: HistoryConfig{
			Path: "chartbot.db",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "chartbot",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if c.Predictor.BaseURL == "" {
		return fmt.Errorf("predictor base_url is required")
	}
	if c.Predictor.MaxRetries < 0 {
		return fmt.Errorf("predictor max_retries must not be negative")
	}
	if len(c.Matching.PlotTypes) == 0 {
		return fmt.Errorf("matching plot_types must not be empty")
	}
	if c.Matching.MaxDistance < 0 {
		return fmt.Errorf("matching max_distance must not be negative")
	}
	if c.Matching.NaNPolicy != "exclude" && c.Matching.NaNPolicy != "flag" {
		return fmt.Errorf("invalid nan_policy: %s", c.Matching.NaNPolicy)
	}
	switch c.Cache.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("PREDICTOR_URL"); v != "" {
		cfg.Predictor.BaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}
	if v := os.Getenv("HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("MATCH_MAX_DISTANCE"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			cfg.Matching.MaxDistance = d
		}
	}
	if v := os.Getenv("NAN_POLICY"); v != "" {
		cfg.Matching.NaNPolicy = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
