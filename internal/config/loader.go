package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "reviewloop.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "REVIEWLOOP_PORT")
	setString(&cfg.Server.CORSOrigin, "REVIEWLOOP_CORS_ORIGIN")
	setString(&cfg.Server.AdminAPIKey, "REVIEWLOOP_ADMIN_API_KEY")
	setFloat64(&cfg.Server.RatePerIPRPS, "REVIEWLOOP_RATE_PER_IP_RPS")
	setInt(&cfg.Server.RatePerIPBurst, "REVIEWLOOP_RATE_PER_IP_BURST")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "REVIEWLOOP_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "REVIEWLOOP_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "REVIEWLOOP_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "REVIEWLOOP_PG_MAX_CONN_IDLE_TIME")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "REVIEWLOOP_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REVIEWLOOP_LOG_SERVICE")
	setDuration(&cfg.Dispatcher.Interval, "REVIEWLOOP_DISPATCH_INTERVAL")
	setInt(&cfg.Dispatcher.BatchSize, "REVIEWLOOP_DISPATCH_BATCH_SIZE")
	setString(&cfg.Dispatcher.InspectorModel, "REVIEWLOOP_INSPECTOR_MODEL")
	setString(&cfg.Dispatcher.Method, "REVIEWLOOP_DISPATCH_METHOD")
	setFloat64(&cfg.Rate.Capacity, "REVIEWLOOP_RATE_CAPACITY")
	setDuration(&cfg.Rate.Window, "REVIEWLOOP_RATE_WINDOW")
	setInt(&cfg.Approval.MaxIterations, "REVIEWLOOP_MAX_ITERATIONS")
	setInt64(&cfg.Cache.MaxSizeMB, "REVIEWLOOP_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.ProjectTTL, "REVIEWLOOP_CACHE_PROJECT_TTL")
	setInt(&cfg.Breaker.MaxFailures, "REVIEWLOOP_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "REVIEWLOOP_BREAKER_TIMEOUT")
	setString(&cfg.Notify.Provider, "REVIEWLOOP_NOTIFY_PROVIDER")
	setBool(&cfg.Telemetry.Enabled, "REVIEWLOOP_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		if cfg.Notify.Config == nil {
			cfg.Notify.Config = map[string]string{}
		}
		cfg.Notify.Config["bot_token"] = token
	}
	if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
		if cfg.Notify.Config == nil {
			cfg.Notify.Config = map[string]string{}
		}
		cfg.Notify.Config["chat_id"] = chat
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Dispatcher.BatchSize < 1 {
		return errors.New("dispatcher.batch_size must be >= 1")
	}
	if cfg.Rate.Capacity < 1 {
		return errors.New("rate.capacity must be >= 1")
	}
	if cfg.Rate.Window <= 0 {
		return errors.New("rate.window must be positive")
	}
	if cfg.Approval.MaxIterations < 1 {
		return errors.New("approval.max_iterations must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
