package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is built once at startup and passed to every component. Secrets are
// read from the environment only; the optional CONFIG_FILE may set the rest.
type Config struct {
	Env             string        `yaml:"env" env:"APP_ENV"`
	LogLevel        slog.Level    `yaml:"logLevel" env:"LOG_LEVEL"`
	HTTPAddr        string        `yaml:"httpAddr" env:"HTTP_ADDR" validate:"required"`
	OpsAddr         string        `yaml:"opsAddr" env:"OPS_ADDR"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`

	TravelAPIURL    string        `yaml:"travelApiUrl" env:"TRAVEL_API_URL" validate:"required,url"`
	RealtimeAPIURL  string        `yaml:"realtimeApiUrl" env:"REALTIME_API_URL" validate:"required,url"`
	UpstreamTimeout time.Duration `yaml:"upstreamTimeout" env:"UPSTREAM_TIMEOUT" validate:"min=1s"`

	TravelAPIKey          string `yaml:"-" env:"TRAVEL_API_KEY" validate:"required"`
	TravelConnectID       string `yaml:"-" env:"TRAVEL_CONNECT_ID" validate:"required"`
	TravelConnectSecret   string `yaml:"-" env:"TRAVEL_CONNECT_SECRET" validate:"required"`
	RealtimeAPIKey        string `yaml:"-" env:"REALTIME_API_KEY" validate:"required"`
	RealtimeConnectID     string `yaml:"-" env:"REALTIME_CONNECT_ID" validate:"required"`
	RealtimeConnectSecret string `yaml:"-" env:"REALTIME_CONNECT_SECRET" validate:"required"`
	UserAgent             string `yaml:"-" env:"USER_AGENT" validate:"required"`
	WorkerKey             string `yaml:"-" env:"WORKER_KEY" validate:"required"`

	StaticCacheTTL   time.Duration `yaml:"staticCacheTtl" env:"STATIC_CACHE_TTL" validate:"min=1s"`
	RedisEnabled     bool          `yaml:"redisEnabled" env:"REDIS_ENABLED"`
	RedisAddr        string        `yaml:"redisAddr" env:"REDIS_ADDR" validate:"required_if=RedisEnabled true"`
	RedisPassword    string        `yaml:"-" env:"REDIS_PASSWORD"`
	RedisDB          int           `yaml:"redisDb" env:"REDIS_DB" validate:"min=0"`
	CacheWarmOnStart bool          `yaml:"cacheWarmOnStart" env:"CACHE_WARM_ON_START"`

	RateLimitPerWindow int           `yaml:"rateLimitPerWindow" env:"RATE_LIMIT_PER_WINDOW" validate:"min=0"`
	RateLimitWindow    time.Duration `yaml:"rateLimitWindow" env:"RATE_LIMIT_WINDOW" validate:"min=1s"`
	RateLimitWhitelist []string      `yaml:"rateLimitWhitelist" env:"RATE_LIMIT_WHITELIST"`
	TrustProxyHeaders  bool          `yaml:"trustProxyHeaders" env:"TRUST_PROXY_HEADERS"`

	SentryDSN string `yaml:"-" env:"SENTRY_DSN"`
}

func defaults() *Config {
	return &Config{
		Env:             "production",
		LogLevel:        slog.LevelInfo,
		HTTPAddr:        ":8080",
		OpsAddr:         ":9090",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    75 * time.Second,
		ShutdownTimeout: 30 * time.Second,

		TravelAPIURL:    "https://api-gateway.cp.pt/cp/services/travel-api",
		RealtimeAPIURL:  "https://api-gateway.cp.pt/cp/services/realtime-api",
		UpstreamTimeout: 30 * time.Second,

		StaticCacheTTL:   30 * time.Minute,
		RedisAddr:        "localhost:6379",
		CacheWarmOnStart: true,

		RateLimitPerWindow: 120,
		RateLimitWindow:    time.Minute,
	}
}

// Load resolves defaults, then CONFIG_FILE, then environment variables, and
// validates the result. A missing secret is reported by its variable name.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.LogLevel = getLogLevelEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.OpsAddr = getEnv("OPS_ADDR", cfg.OpsAddr)
	cfg.ReadTimeout = getDurationEnv("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getDurationEnv("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	cfg.TravelAPIURL = getEnv("TRAVEL_API_URL", cfg.TravelAPIURL)
	cfg.RealtimeAPIURL = getEnv("REALTIME_API_URL", cfg.RealtimeAPIURL)
	cfg.UpstreamTimeout = getDurationEnv("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)

	cfg.TravelAPIKey = os.Getenv("TRAVEL_API_KEY")
	cfg.TravelConnectID = os.Getenv("TRAVEL_CONNECT_ID")
	cfg.TravelConnectSecret = os.Getenv("TRAVEL_CONNECT_SECRET")
	cfg.RealtimeAPIKey = os.Getenv("REALTIME_API_KEY")
	cfg.RealtimeConnectID = os.Getenv("REALTIME_CONNECT_ID")
	cfg.RealtimeConnectSecret = os.Getenv("REALTIME_CONNECT_SECRET")
	cfg.UserAgent = os.Getenv("USER_AGENT")
	cfg.WorkerKey = os.Getenv("WORKER_KEY")

	cfg.StaticCacheTTL = getDurationEnv("STATIC_CACHE_TTL", cfg.StaticCacheTTL)
	cfg.RedisEnabled = getBoolEnv("REDIS_ENABLED", cfg.RedisEnabled)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getIntEnv("REDIS_DB", cfg.RedisDB)
	cfg.CacheWarmOnStart = getBoolEnv("CACHE_WARM_ON_START", cfg.CacheWarmOnStart)

	cfg.RateLimitPerWindow = getIntEnv("RATE_LIMIT_PER_WINDOW", cfg.RateLimitPerWindow)
	cfg.RateLimitWindow = getDurationEnv("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	cfg.TrustProxyHeaders = getBoolEnv("TRUST_PROXY_HEADERS", cfg.TrustProxyHeaders)
	if wl := getCSVEnv("RATE_LIMIT_WHITELIST"); wl != nil {
		cfg.RateLimitWhitelist = wl
	}

	cfg.SentryDSN = os.Getenv("SENTRY_DSN")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	v.RegisterStructValidation(validateTimeouts, Config{})
	return v
}

// validateTimeouts keeps the response deadline above the two sequential
// upstream calls a vehicles or stats request makes.
func validateTimeouts(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.WriteTimeout <= 2*c.UpstreamTimeout {
		sl.ReportError(c.WriteTimeout, "WRITE_TIMEOUT", "WriteTimeout", "gt_twice_upstream_timeout", "")
	}
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if":
			missing = append(missing, fe.Field())
		default:
			invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required environment variables: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(invalid, ", "))
	}
	return errors.New(strings.Join(parts, "; "))
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
