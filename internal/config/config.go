package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Logging     LoggingConfig   `yaml:"logging"`
	Auth        AuthConfig      `yaml:"auth"`
	Fetcher     FetcherConfig   `yaml:"fetcher"`
	Extractor   ExtractorConfig `yaml:"extractor"`
	Ingest      IngestConfig    `yaml:"ingest"`
	Batch       BatchConfig     `yaml:"batch"`
	Jobs        JobsConfig      `yaml:"jobs"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Environment string          `yaml:"environment"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	MinConnections int    `yaml:"min_connections"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
	Issuer    string        `yaml:"issuer"`
}

// FetcherConfig points at the external scrape provider.
type FetcherConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	RateLimit     float64       `yaml:"rate_limit"`
	Burst         int           `yaml:"burst"`
	RespectRobots bool          `yaml:"respect_robots"`
	UserAgent     string        `yaml:"user_agent"`
}

// ExtractorConfig points at an OpenAI-compatible chat completions endpoint.
type ExtractorConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Model           string        `yaml:"model"`
	APIKey          string        `yaml:"api_key"`
	Temperature     float64       `yaml:"temperature"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"max_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxContentChars int           `yaml:"max_content_chars"`
}

type IngestConfig struct {
	FetchAttempts  int           `yaml:"fetch_attempts"`
	FetchBaseDelay time.Duration `yaml:"fetch_base_delay"`
	URLTimeout     time.Duration `yaml:"url_timeout"`
	// DefaultPublish applies to recipes imported without an owner.
	DefaultPublish bool `yaml:"default_publish"`
}

type BatchConfig struct {
	Workers int `yaml:"workers"`
}

type JobsConfig struct {
	// Enabled runs River workers inside serve. When false, serve only enqueues.
	Enabled            bool          `yaml:"enabled"`
	ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
	VisibilityInterval time.Duration `yaml:"visibility_interval"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Defaults returns the configuration used when neither file nor environment set a value.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
			MinConnections: 2,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Auth: AuthConfig{
			JWTExpiry: 24 * time.Hour,
			Issuer:    "togather-recipes",
		},
		Fetcher: FetcherConfig{
			BaseURL:   "http://localhost:3002",
			Timeout:   30 * time.Second,
			RateLimit: 2,
			Burst:     2,
		},
		Extractor: ExtractorConfig{
			Endpoint:        "https://api.openai.com/v1/chat/completions",
			Model:           "gpt-4o-mini",
			Timeout:         60 * time.Second,
			MaxAttempts:     3,
			BaseDelay:       2 * time.Second,
			MaxContentChars: 24000,
		},
		Ingest: IngestConfig{
			FetchAttempts:  3,
			FetchBaseDelay: time.Second,
			URLTimeout:     3 * time.Minute,
			DefaultPublish: true,
		},
		Batch: BatchConfig{Workers: 4},
		Jobs: JobsConfig{
			Enabled:            true,
			ReconcileInterval:  6 * time.Hour,
			VisibilityInterval: time.Hour,
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "togather-recipes",
			SampleRate:  1.0,
		},
		Environment: "development",
	}
}

// Load reads the optional YAML file named by CONFIG_FILE, then applies
// environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile reads the configuration at path and validates it for serving.
func LoadFile(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read layers defaults, the YAML file at path (when non-empty), and the
// environment, in that order. It does not validate.
func Read(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MinConnections = getEnvInt("DATABASE_MIN_CONNECTIONS", cfg.Database.MinConnections)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpiry = getEnvDuration("JWT_EXPIRY", cfg.Auth.JWTExpiry)
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", cfg.Auth.Issuer)

	cfg.Fetcher.BaseURL = getEnv("FETCHER_BASE_URL", cfg.Fetcher.BaseURL)
	cfg.Fetcher.APIKey = getEnv("FETCHER_API_KEY", cfg.Fetcher.APIKey)
	cfg.Fetcher.Timeout = getEnvDuration("FETCHER_TIMEOUT", cfg.Fetcher.Timeout)
	cfg.Fetcher.RateLimit = getEnvFloat("FETCHER_RATE_LIMIT", cfg.Fetcher.RateLimit)
	cfg.Fetcher.Burst = getEnvInt("FETCHER_BURST", cfg.Fetcher.Burst)
	cfg.Fetcher.RespectRobots = getEnvBool("FETCHER_RESPECT_ROBOTS", cfg.Fetcher.RespectRobots)
	cfg.Fetcher.UserAgent = getEnv("FETCHER_USER_AGENT", cfg.Fetcher.UserAgent)

	cfg.Extractor.Endpoint = getEnv("EXTRACTOR_ENDPOINT", cfg.Extractor.Endpoint)
	cfg.Extractor.Model = getEnv("EXTRACTOR_MODEL", cfg.Extractor.Model)
	cfg.Extractor.APIKey = getEnv("EXTRACTOR_API_KEY", cfg.Extractor.APIKey)
	cfg.Extractor.Temperature = getEnvFloat("EXTRACTOR_TEMPERATURE", cfg.Extractor.Temperature)
	cfg.Extractor.Timeout = getEnvDuration("EXTRACTOR_TIMEOUT", cfg.Extractor.Timeout)
	cfg.Extractor.MaxAttempts = getEnvInt("EXTRACTOR_MAX_ATTEMPTS", cfg.Extractor.MaxAttempts)
	cfg.Extractor.BaseDelay = getEnvDuration("EXTRACTOR_BASE_DELAY", cfg.Extractor.BaseDelay)
	cfg.Extractor.MaxContentChars = getEnvInt("EXTRACTOR_MAX_CONTENT_CHARS", cfg.Extractor.MaxContentChars)

	cfg.Ingest.FetchAttempts = getEnvInt("INGEST_FETCH_ATTEMPTS", cfg.Ingest.FetchAttempts)
	cfg.Ingest.FetchBaseDelay = getEnvDuration("INGEST_FETCH_BASE_DELAY", cfg.Ingest.FetchBaseDelay)
	cfg.Ingest.URLTimeout = getEnvDuration("INGEST_URL_TIMEOUT", cfg.Ingest.URLTimeout)
	cfg.Ingest.DefaultPublish = getEnvBool("INGEST_DEFAULT_PUBLISH", cfg.Ingest.DefaultPublish)

	cfg.Batch.Workers = getEnvInt("BATCH_WORKERS", cfg.Batch.Workers)

	cfg.Jobs.Enabled = getEnvBool("JOBS_ENABLED", cfg.Jobs.Enabled)
	cfg.Jobs.ReconcileInterval = getEnvDuration("JOBS_RECONCILE_INTERVAL", cfg.Jobs.ReconcileInterval)
	cfg.Jobs.VisibilityInterval = getEnvDuration("JOBS_VISIBILITY_INTERVAL", cfg.Jobs.VisibilityInterval)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	return c.validate(true)
}

// ValidateWithoutAuth is Validate for CLI commands that never issue or check tokens.
func (c Config) ValidateWithoutAuth() error {
	return c.validate(false)
}

func (c Config) validate(requireAuth bool) error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if requireAuth {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required"))
		} else if c.Environment == "production" && len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters in production"))
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT %d out of range", c.Server.Port))
	}
	if c.Batch.Workers < 0 || c.Batch.Workers > 16 {
		errs = append(errs, fmt.Errorf("BATCH_WORKERS must be between 1 and 16, got %d", c.Batch.Workers))
	}
	if c.Ingest.FetchAttempts < 1 {
		errs = append(errs, errors.New("INGEST_FETCH_ATTEMPTS must be at least 1"))
	}
	if c.Extractor.MaxAttempts < 1 {
		errs = append(errs, errors.New("EXTRACTOR_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("TRACING_SAMPLE_RATE must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
