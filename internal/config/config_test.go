package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var providerEnvKeys = []string{
	"EXCHANGE_RATE_API_KEY",
	"EXCHANGE_RATE_API_ENABLED",
	"ERAPI_ENABLED",
	"FRANKFURTER_ENABLED",
	"PROVIDER_1_NAME",
	"PROVIDER_1_BASE_URL",
	"PROVIDER_1_PRIORITY",
	"PROVIDER_2_NAME",
}

// unsetEnv removes key for the duration of the test; envconfig treats a set-but-empty variable as a value
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	original, present := os.LookupEnv(key)
	require.NoError(t, os.Unsetenv(key))
	t.Cleanup(func() {
		if present {
			_ = os.Setenv(key, original)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range providerEnvKeys {
		unsetEnv(t, key)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(t *testing.T, cfg *Config)
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "8081", cfg.Port)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, "USD", cfg.AnchorCurrency)
				assert.Equal(t, "USD", cfg.DefaultBaseCurrency)
				assert.Equal(t, 60*time.Second, cfg.RatesCacheTTL)
				assert.Equal(t, 30*time.Second, cfg.RatesFetchTimeout)
				assert.Empty(t, cfg.RedisAddr)
				assert.True(t, cfg.RateLimitEnabled)
				assert.Equal(t, 100, cfg.RateLimitRequests)
				assert.Equal(t, 10, cfg.RateLimitBurst)
				require.Len(t, cfg.RateProviders, 1)
				assert.Equal(t, "erapi", cfg.RateProviders[0].Name)
				assert.False(t, cfg.IsProduction())
			},
		},
		{
			name: "custom configuration",
			envVars: map[string]string{
				"PORT":                  "9090",
				"APP_ENV":               "production",
				"LOG_LEVEL":             "debug",
				"ANCHOR_CURRENCY":       "eur",
				"DEFAULT_BASE_CURRENCY": "gbp",
				"RATES_CACHE_TTL":       "2m",
				"REDIS_ADDR":            "127.0.0.1:6379",
				"RATE_LIMIT_ENABLED":    "false",
				"RATE_LIMIT_BURST":      "20",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "9090", cfg.Port)
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "EUR", cfg.AnchorCurrency)
				assert.Equal(t, "GBP", cfg.DefaultBaseCurrency)
				assert.Equal(t, 2*time.Minute, cfg.RatesCacheTTL)
				assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
				assert.False(t, cfg.RateLimitEnabled)
				assert.Equal(t, 20, cfg.RateLimitBurst)
				assert.True(t, cfg.IsProduction())
			},
		},
		{
			name: "api key enables the keyed provider first",
			envVars: map[string]string{
				"EXCHANGE_RATE_API_KEY": "secret",
				"FRANKFURTER_ENABLED":   "true",
			},
			expected: func(t *testing.T, cfg *Config) {
				require.Len(t, cfg.RateProviders, 3)
				assert.Equal(t, "exchangerate-api", cfg.RateProviders[0].Name)
				assert.Equal(t, "secret", cfg.RateProviders[0].APIKey)
				assert.Equal(t, "erapi", cfg.RateProviders[1].Name)
				assert.Equal(t, "frankfurter", cfg.RateProviders[2].Name)
			},
		},
		{
			name: "additional providers sorted by priority",
			envVars: map[string]string{
				"ERAPI_ENABLED":       "false",
				"PROVIDER_1_NAME":     "custom-api",
				"PROVIDER_1_BASE_URL": "https://rates.example.com/latest",
				"PROVIDER_1_PRIORITY": "0",
			},
			expected: func(t *testing.T, cfg *Config) {
				require.Len(t, cfg.RateProviders, 1)
				assert.Equal(t, "custom-api", cfg.RateProviders[0].Name)
				assert.Equal(t, 0, cfg.RateProviders[0].Priority)
				assert.Equal(t, 10*time.Second, cfg.RateProviders[0].Timeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProviderEnv(t)
			for _, key := range []string{"PORT", "APP_ENV", "LOG_LEVEL", "ANCHOR_CURRENCY", "DEFAULT_BASE_CURRENCY",
				"RATES_CACHE_TTL", "RATES_FETCH_TIMEOUT", "REDIS_ADDR", "RATE_LIMIT_ENABLED", "RATE_LIMIT_BURST"} {
				unsetEnv(t, key)
			}
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()
			require.NoError(t, err)
			tt.expected(t, cfg)
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("RATES_CACHE_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_NegativeFetchTimeout(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("RATES_FETCH_TIMEOUT", "-1s")

	_, err := Load()
	assert.Error(t, err)
}

func TestAtoiOr(t *testing.T) {
	assert.Equal(t, 42, atoiOr("42", 7))
	assert.Equal(t, 7, atoiOr("forty-two", 7))
	assert.Equal(t, 3*time.Second, seconds("3"))
	assert.Equal(t, 10*time.Second, seconds(""))
}
