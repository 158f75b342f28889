package testutils

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/emi-calculator/internal/config"
	"github.com/dalfonso89/emi-calculator/internal/logger"
)

// MockLogger creates a logger that discards output
func MockLogger() *logrus.Logger {
	return logger.NewWithOutput("debug", "json", io.Discard)
}

// MockConfig creates a configuration with a single provider pointing at baseURL
func MockConfig(baseURL string) *config.Config {
	return &config.Config{
		Port:                "8081",
		Environment:         "test",
		LogLevel:            "debug",
		ReadTimeout:         15 * time.Second,
		WriteTimeout:        15 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		AnchorCurrency:      "USD",
		DefaultBaseCurrency: "USD",
		RatesCacheTTL:       60 * time.Second,
		RatesFetchTimeout:   10 * time.Second,
		RedisKeyPrefix:      "emi:rates",

		RateLimitEnabled:  false,
		RateLimitRequests: 100,
		RateLimitWindow:   60 * time.Second,
		RateLimitBurst:    10,

		RateProviders: []config.RateProvider{
			{
				Name:     "erapi",
				BaseURL:  baseURL,
				Enabled:  true,
				Priority: 1,
				Timeout:  2 * time.Second,
			},
		},
	}
}

// SampleRates is the live table served by MockRatesServer
func SampleRates() map[string]float64 {
	return map[string]float64{
		"USD": 1,
		"EUR": 0.9,
		"GBP": 0.8,
		"INR": 83.2,
		"JPY": 150.5,
		"ZWL": 0,
	}
}
