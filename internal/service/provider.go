package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/emi-calculator/internal/config"
	"github.com/dalfonso89/emi-calculator/internal/models"
	"github.com/dalfonso89/emi-calculator/internal/rates"
)

// RateProvider fetches a rate table quoted against an anchor currency
type RateProvider interface {
	GetName() string
	GetPriority() int
	FetchRates(ctx context.Context, anchor string) (models.RateSnapshot, error)
}

// ProviderFactory creates provider instances
type ProviderFactory struct {
	config    *config.Config
	logger    *logrus.Logger
	transport http.RoundTripper
}

// NewProviderFactory creates a new provider factory.
// Providers it creates share one pooled transport.
func NewProviderFactory(config *config.Config, logger *logrus.Logger) *ProviderFactory {
	return &ProviderFactory{
		config:    config,
		logger:    logger,
		transport: newPooledTransport(),
	}
}

func newPooledTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// CreateProviders creates all enabled providers in configured order
func (pf *ProviderFactory) CreateProviders() []RateProvider {
	providers := make([]RateProvider, 0, len(pf.config.RateProviders))

	for _, providerConfig := range pf.config.RateProviders {
		if !providerConfig.Enabled {
			continue
		}
		provider := NewHTTPRateProvider(providerConfig, pf.logger)
		provider.httpClient.Transport = pf.transport
		providers = append(providers, provider)
	}

	return providers
}

// HTTPRateProvider implements RateProvider for JSON rate APIs
type HTTPRateProvider struct {
	configuration config.RateProvider
	logger        *logrus.Logger
	httpClient    *http.Client
	now           func() time.Time
}

// NewHTTPRateProvider creates a new HTTP rate provider
func NewHTTPRateProvider(configuration config.RateProvider, logger *logrus.Logger) *HTTPRateProvider {
	client := &http.Client{}
	if configuration.Timeout > 0 {
		client.Timeout = configuration.Timeout
	}
	return &HTTPRateProvider{
		configuration: configuration,
		logger:        logger,
		httpClient:    client,
		now:           time.Now,
	}
}

// GetName returns the provider name
func (provider *HTTPRateProvider) GetName() string {
	return provider.configuration.Name
}

// GetPriority returns the provider priority
func (provider *HTTPRateProvider) GetPriority() int {
	return provider.configuration.Priority
}

// FetchRates performs a single GET and parses the rate table
func (provider *HTTPRateProvider) FetchRates(ctx context.Context, anchor string) (models.RateSnapshot, error) {
	requestURL := provider.buildURL(anchor)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return models.RateSnapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := provider.httpClient.Do(req)
	if err != nil {
		return models.RateSnapshot{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.RateSnapshot{}, fmt.Errorf("%w: provider returned status %d", errInvalidResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.RateSnapshot{}, fmt.Errorf("failed to read response body: %w", err)
	}

	table, dropped, err := parseRatesPayload(body, anchor)
	if err != nil {
		return models.RateSnapshot{}, err
	}
	if len(dropped) > 0 {
		provider.logger.WithFields(logrus.Fields{
			"provider":   provider.configuration.Name,
			"currencies": strings.Join(dropped, ","),
		}).Warn("Ignoring negative exchange rates")
	}

	return models.RateSnapshot{
		Anchor:    anchor,
		Rates:     table,
		Provider:  provider.configuration.Name,
		FetchedAt: provider.now().UTC(),
	}, nil
}

// buildURL constructs the request URL for the provider's URL scheme
func (provider *HTTPRateProvider) buildURL(anchor string) string {
	baseURL := strings.TrimRight(provider.configuration.BaseURL, "/")
	escaped := url.PathEscape(anchor)

	switch provider.configuration.Name {
	case "exchangerate-api":
		// https://v6.exchangerate-api.com/v6/{key}/latest/USD
		return fmt.Sprintf("%s/%s/latest/%s", baseURL, url.PathEscape(provider.configuration.APIKey), escaped)
	case "erapi":
		// https://open.er-api.com/v6/latest/USD
		return fmt.Sprintf("%s/%s", baseURL, escaped)
	case "frankfurter":
		// https://api.frankfurter.app/latest?from=USD
		return fmt.Sprintf("%s?from=%s", baseURL, url.QueryEscape(anchor))
	default:
		query := url.Values{"base": {anchor}}
		if provider.configuration.APIKey != "" {
			query.Set("api_key", provider.configuration.APIKey)
		}
		return baseURL + "?" + query.Encode()
	}
}

// ratesPayload covers the exchangerate-api, open.er-api and generic {base, rates} shapes
type ratesPayload struct {
	Result          string             `json:"result"`
	ErrorType       string             `json:"error-type"`
	BaseCode        string             `json:"base_code"`
	Base            string             `json:"base"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
	Rates           map[string]float64 `json:"rates"`
}

// parseRatesPayload validates the payload and returns a table that includes the anchor at 1.
// Negative rates are left out and their codes returned in dropped. A zero rate is
// kept: it marks a listed currency that cannot serve as a base.
func parseRatesPayload(body []byte, anchor string) (table rates.Table, dropped []string, err error) {
	var payload ratesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errInvalidResponse, err)
	}

	if payload.Result != "" && payload.Result != "success" {
		return nil, nil, fmt.Errorf("%w: result %q (%s)", errInvalidResponse, payload.Result, payload.ErrorType)
	}

	base := payload.BaseCode
	if base == "" {
		base = payload.Base
	}
	if base != "" && !strings.EqualFold(base, anchor) {
		return nil, nil, fmt.Errorf("%w: quoted against %s, expected %s", errInvalidResponse, base, anchor)
	}

	source := payload.ConversionRates
	if len(source) == 0 {
		source = payload.Rates
	}
	if len(source) == 0 {
		return nil, nil, fmt.Errorf("%w: no rates in payload", errInvalidResponse)
	}

	table = make(rates.Table, len(source)+1)
	for code, rate := range source {
		code = strings.ToUpper(code)
		if rate < 0 {
			dropped = append(dropped, code)
			continue
		}
		table[code] = rate
	}
	table[anchor] = 1
	sort.Strings(dropped)
	return table, dropped, nil
}
