package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type AgentConfig struct {
	BaseURL        string        `yaml:"base_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type AdminConfig struct {
	APIKey     string        `yaml:"api_key"`
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // empty disables the run archive
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables the snapshot cache
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Agent    AgentConfig    `yaml:"agent"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`

	Runtime RuntimeConfig `yaml:"-"`
}

// envOverrides are applied on top of the YAML file. The agent base URL is the
// one setting that must work with zero configuration: it falls back to the
// local default when neither the file nor the environment provides it.
type envOverrides struct {
	AgentURL    string `envconfig:"HELIXHEAL_AGENT_URL" default:""`
	DatabaseURL string `envconfig:"HELIXHEAL_DATABASE_URL" default:""`
	RedisURL    string `envconfig:"HELIXHEAL_REDIS_URL" default:""`
	Port        int    `envconfig:"HELIXHEAL_PORT" default:"0"`
	AdminAPIKey string `envconfig:"HELIXHEAL_ADMIN_API_KEY" default:""`
	JWTSecret   string `envconfig:"HELIXHEAL_JWT_SECRET" default:""`
}

const defaultAgentURL = "http://localhost:8000"

// LoadConfig reads the YAML file (missing file is fine; defaults apply) and
// then environment overrides.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// run entirely on defaults and environment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if env.AgentURL != "" {
		cfg.Agent.BaseURL = env.AgentURL
	}
	if env.DatabaseURL != "" {
		cfg.Database.URL = env.DatabaseURL
	}
	if env.RedisURL != "" {
		cfg.Redis.URL = env.RedisURL
	}
	if env.Port != 0 {
		cfg.Server.Port = env.Port
	}
	if env.AdminAPIKey != "" {
		cfg.Admin.APIKey = env.AdminAPIKey
	}
	if env.JWTSecret != "" {
		cfg.Admin.JWTSecret = env.JWTSecret
	}

	// defaults
	if cfg.Agent.BaseURL == "" {
		cfg.Agent.BaseURL = defaultAgentURL
	}
	if cfg.Agent.PollInterval <= 0 {
		cfg.Agent.PollInterval = 2 * time.Second
	}
	if cfg.Agent.RequestTimeout <= 0 {
		cfg.Agent.RequestTimeout = 15 * time.Second
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
