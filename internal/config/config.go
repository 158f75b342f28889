package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// RateProvider describes a single upstream exchange rate API
type RateProvider struct {
	Name     string
	BaseURL  string
	APIKey   string
	Enabled  bool
	Priority int // Lower number = higher priority
	Timeout  time.Duration
}

// Config holds all configuration for the application
type Config struct {
	Port            string        `envconfig:"PORT" default:"8081"`
	Environment     string        `envconfig:"APP_ENV" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	// Rates are always quoted against the anchor currency
	AnchorCurrency      string        `envconfig:"ANCHOR_CURRENCY" default:"USD"`
	DefaultBaseCurrency string        `envconfig:"DEFAULT_BASE_CURRENCY" default:"USD"`
	RatesCacheTTL       time.Duration `envconfig:"RATES_CACHE_TTL" default:"60s"`
	// Bounds one shared upstream fetch; callers may give up sooner
	RatesFetchTimeout   time.Duration `envconfig:"RATES_FETCH_TIMEOUT" default:"30s"`

	// Empty RedisAddr keeps the rates cache in process memory
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"emi:rates"`

	// Rate limiting
	RateLimitEnabled  bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"100"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	RateLimitBurst    int           `envconfig:"RATE_LIMIT_BURST" default:"10"`

	RateProviders []RateProvider `ignored:"true"`
}

// Load loads configuration from the environment, reading .env first when present
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.AnchorCurrency = strings.ToUpper(strings.TrimSpace(cfg.AnchorCurrency))
	cfg.DefaultBaseCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultBaseCurrency))
	if cfg.AnchorCurrency == "" {
		return nil, errors.New("config: anchor currency must be provided")
	}
	if cfg.RatesCacheTTL < 0 {
		return nil, errors.New("config: rates cache ttl must not be negative")
	}
	if cfg.RatesFetchTimeout < 0 {
		return nil, errors.New("config: rates fetch timeout must not be negative")
	}

	cfg.RateProviders = loadRateProviders()
	return &cfg, nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c != nil && c.Environment == "production"
}

// loadRateProviders builds the enabled provider list ordered by priority
func loadRateProviders() []RateProvider {
	apiKey := getEnv("EXCHANGE_RATE_API_KEY", "")

	providers := []RateProvider{
		{
			Name:    "exchangerate-api",
			BaseURL: getEnv("EXCHANGE_RATE_API_BASE_URL", "https://v6.exchangerate-api.com/v6"),
			APIKey:  apiKey,
			// the v6 endpoint is useless without a key
			Enabled:  apiKey != "" && getEnv("EXCHANGE_RATE_API_ENABLED", "true") == "true",
			Priority: 1,
			Timeout:  seconds(getEnv("EXCHANGE_RATE_API_TIMEOUT", "10")),
		},
		{
			Name:     "erapi",
			BaseURL:  getEnv("ERAPI_BASE_URL", "https://open.er-api.com/v6/latest"),
			Enabled:  getEnv("ERAPI_ENABLED", "true") == "true",
			Priority: 2,
			Timeout:  seconds(getEnv("ERAPI_TIMEOUT", "10")),
		},
		{
			Name:     "frankfurter",
			BaseURL:  getEnv("FRANKFURTER_BASE_URL", "https://api.frankfurter.app/latest"),
			Enabled:  getEnv("FRANKFURTER_ENABLED", "false") == "true",
			Priority: 3,
			Timeout:  seconds(getEnv("FRANKFURTER_TIMEOUT", "10")),
		},
	}

	providers = append(providers, loadAdditionalProviders()...)

	enabled := make([]RateProvider, 0, len(providers))
	for _, provider := range providers {
		if provider.Enabled {
			enabled = append(enabled, provider)
		}
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})
	return enabled
}

// loadAdditionalProviders reads PROVIDER_1_*, PROVIDER_2_*, ... until a gap
func loadAdditionalProviders() []RateProvider {
	providers := []RateProvider{}

	for i := 1; i <= 10; i++ {
		name := getEnv(fmt.Sprintf("PROVIDER_%d_NAME", i), "")
		if name == "" {
			break
		}

		provider := RateProvider{
			Name:     name,
			BaseURL:  getEnv(fmt.Sprintf("PROVIDER_%d_BASE_URL", i), ""),
			APIKey:   getEnv(fmt.Sprintf("PROVIDER_%d_API_KEY", i), ""),
			Enabled:  getEnv(fmt.Sprintf("PROVIDER_%d_ENABLED", i), "true") == "true",
			Priority: atoiOr(getEnv(fmt.Sprintf("PROVIDER_%d_PRIORITY", i), "10"), 10),
			Timeout:  seconds(getEnv(fmt.Sprintf("PROVIDER_%d_TIMEOUT", i), "10")),
		}

		if provider.BaseURL != "" {
			providers = append(providers, provider)
		}
	}

	return providers
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func atoiOr(s string, fallback int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return i
}

func seconds(s string) time.Duration {
	return time.Duration(atoiOr(s, 10)) * time.Second
}
