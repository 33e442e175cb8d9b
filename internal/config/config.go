// Package config loads the engine's configuration from defaults, an
// optional YAML file, and environment variables, in that priority order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
	Test        Environment = "test"
)

// Config is the full engine configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Server        Server        `yaml:"server"`
	Supabase      Supabase      `yaml:"supabase"`
	Session       Session       `yaml:"session"`
	Executor      Executor      `yaml:"executor"`
	Realtime      Realtime      `yaml:"realtime"`
	Adapter       Adapter       `yaml:"adapter"`
	Observability Observability `yaml:"observability"`
}

// Server configures the HTTP listener.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Supabase configures the real backend.
type Supabase struct {
	ProjectURL string `yaml:"project_url"`
	AnonKey    string `yaml:"anon_key"`
	JWTSecret  string `yaml:"jwt_secret"`
}

// Session configures the session manager's refresh policy.
type Session struct {
	CheckInterval    time.Duration `yaml:"check_interval"`
	RefreshThreshold time.Duration `yaml:"refresh_threshold"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
	CoordinationDir  string        `yaml:"coordination_dir"`
}

// Executor configures the per-call resilience policy.
type Executor struct {
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Realtime configures subscription reconnects.
type Realtime struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Adapter configures data-source selection. Preference is hot-reloadable
// through the config watcher.
type Adapter struct {
	Preference      string        `yaml:"preference"`
	FailureCooldown time.Duration `yaml:"failure_cooldown"`
}

// Observability configures logging and tracing.
type Observability struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Session: Session{
			CheckInterval:    120 * time.Second,
			RefreshThreshold: 300 * time.Second,
			LockTTL:          10 * time.Second,
			CoordinationDir:  defaultCoordinationDir(),
		},
		Executor: Executor{
			MaxRetries: 2,
			RetryDelay: 250 * time.Millisecond,
			Timeout:    10 * time.Second,
		},
		Realtime: Realtime{
			BaseDelay:   time.Second,
			MaxAttempts: 3,
		},
		Adapter: Adapter{
			Preference:      "auto",
			FailureCooldown: 30 * time.Second,
		},
		Observability: Observability{
			LogLevel: "info",
		},
	}
}

func defaultCoordinationDir() string {
	return os.TempDir() + "/tickerdesk"
}

// Load builds the configuration: defaults, then the YAML file at path
// when it exists, then environment variables on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables, the highest-priority source.
func (c *Config) applyEnv() {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = Environment(v)
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := getEnvInt("SERVER_PORT"); v > 0 {
		c.Server.Port = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Supabase.ProjectURL = v
	}
	if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		c.Supabase.AnonKey = v
	}
	if v := os.Getenv("SUPABASE_JWT_SECRET"); v != "" {
		c.Supabase.JWTSecret = v
	}
	if v := getEnvDuration("SESSION_CHECK_INTERVAL"); v > 0 {
		c.Session.CheckInterval = v
	}
	if v := getEnvDuration("SESSION_REFRESH_THRESHOLD"); v > 0 {
		c.Session.RefreshThreshold = v
	}
	if v := getEnvDuration("SESSION_LOCK_TTL"); v > 0 {
		c.Session.LockTTL = v
	}
	if v := os.Getenv("SESSION_COORDINATION_DIR"); v != "" {
		c.Session.CoordinationDir = v
	}
	if v := getEnvInt("EXECUTOR_MAX_RETRIES"); v > 0 {
		c.Executor.MaxRetries = v
	}
	if v := getEnvDuration("EXECUTOR_RETRY_DELAY"); v > 0 {
		c.Executor.RetryDelay = v
	}
	if v := getEnvDuration("EXECUTOR_TIMEOUT"); v > 0 {
		c.Executor.Timeout = v
	}
	if v := getEnvDuration("REALTIME_BASE_DELAY"); v > 0 {
		c.Realtime.BaseDelay = v
	}
	if v := getEnvInt("REALTIME_MAX_ATTEMPTS"); v > 0 {
		c.Realtime.MaxAttempts = v
	}
	if v := os.Getenv("DATA_SOURCE_PREFERENCE"); v != "" {
		c.Adapter.Preference = v
	}
	if v := getEnvDuration("ADAPTER_FAILURE_COOLDOWN"); v > 0 {
		c.Adapter.FailureCooldown = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Observability.LogLevel = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		c.Observability.OTLPEndpoint = v
	}
}

// Validate rejects configurations the engine cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Adapter.Preference {
	case "auto", "real", "fallback":
	default:
		return fmt.Errorf("invalid data source preference %q", c.Adapter.Preference)
	}
	if c.Adapter.Preference != "fallback" {
		if c.Supabase.ProjectURL == "" {
			return fmt.Errorf("SUPABASE_URL is required unless the fallback source is forced")
		}
		if c.Supabase.AnonKey == "" {
			return fmt.Errorf("SUPABASE_ANON_KEY is required unless the fallback source is forced")
		}
	}
	if c.Session.RefreshThreshold <= 0 {
		return fmt.Errorf("session refresh threshold must be positive")
	}
	if c.Realtime.MaxAttempts <= 0 {
		return fmt.Errorf("realtime max attempts must be positive")
	}
	return nil
}

func getEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func getEnvDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}
