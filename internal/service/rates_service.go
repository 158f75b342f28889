package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dalfonso89/emi-calculator/internal/cache"
	"github.com/dalfonso89/emi-calculator/internal/config"
	"github.com/dalfonso89/emi-calculator/internal/models"
	"github.com/dalfonso89/emi-calculator/internal/rates"
)

// RatesService owns the current rate snapshot, the selected base currency
// and the effective table derived from both. Every piece of state is
// replaced wholesale; readers never observe a half-built table.
type RatesService struct {
	configuration *config.Config
	logger        *logrus.Logger
	providers     []RateProvider
	store         cache.Store

	stateMutex sync.RWMutex
	snapshot   models.RateSnapshot
	base       string
	effective  rates.Table

	singleFlightGroup singleflight.Group
}

// NewRatesService builds the service with providers taken from configuration.
// store may be nil to disable caching.
func NewRatesService(configuration *config.Config, logger *logrus.Logger, store cache.Store) *RatesService {
	providerFactory := NewProviderFactory(configuration, logger)

	base := configuration.DefaultBaseCurrency
	if base == "" {
		base = configuration.AnchorCurrency
	}

	return &RatesService{
		configuration: configuration,
		logger:        logger,
		providers:     providerFactory.CreateProviders(),
		store:         store,
		base:          base,
	}
}

// WithProviders replaces the configured providers
func (ratesService *RatesService) WithProviders(providers ...RateProvider) *RatesService {
	ratesService.providers = providers
	return ratesService
}

// EnsureLoaded returns the current snapshot, fetching it first if nothing is installed yet
func (ratesService *RatesService) EnsureLoaded(ctx context.Context) (models.RateSnapshot, error) {
	snapshot := ratesService.Snapshot()
	if !snapshot.IsZero() {
		return snapshot, nil
	}
	return ratesService.Refresh(ctx, false)
}

// Refresh fetches a new snapshot and installs it. force bypasses the cache.
// Upstream failures never surface as errors: the fallback table is installed
// instead and the snapshot's FallbackReason wraps ErrUsingFallbackData.
// Concurrent callers share one fetch that outlives any single caller. A caller
// whose ctx ends first gets ErrorTypeContextCancelled and its result is
// discarded; the fetch is installed only by a caller still waiting for it.
func (ratesService *RatesService) Refresh(ctx context.Context, force bool) (models.RateSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.RateSnapshot{}, abandonedError(err)
	}

	flightKey := "rates:" + ratesService.configuration.AnchorCurrency
	if force {
		flightKey += ":force"
	}

	resultChannel := ratesService.singleFlightGroup.DoChan(flightKey, func() (interface{}, error) {
		fetchCtx, cancel := ratesService.fetchContext(ctx)
		defer cancel()
		return ratesService.load(fetchCtx, force), nil
	})

	select {
	case <-ctx.Done():
		return models.RateSnapshot{}, abandonedError(ctx.Err())
	case result := <-resultChannel:
		if result.Err != nil {
			return models.RateSnapshot{}, result.Err
		}
		if err := ctx.Err(); err != nil {
			return models.RateSnapshot{}, abandonedError(err)
		}
		pending := result.Val.(*pendingRates)
		pending.commit()
		return pending.snapshot, nil
	}
}

// pendingRates is the outcome of one shared fetch. commit installs it at most once.
type pendingRates struct {
	snapshot models.RateSnapshot
	commit   func()
}

// fetchContext detaches the shared fetch from the caller that started it
func (ratesService *RatesService) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if timeout := ratesService.configuration.RatesFetchTimeout; timeout > 0 {
		return context.WithTimeout(detached, timeout)
	}
	return context.WithCancel(detached)
}

func abandonedError(cause error) error {
	return &ServiceError{
		Type:    ErrorTypeContextCancelled,
		Message: "rates fetch abandoned",
		Cause:   cause,
	}
}

func (ratesService *RatesService) load(ctx context.Context, force bool) *pendingRates {
	anchor := ratesService.configuration.AnchorCurrency

	if !force && ratesService.store != nil {
		cached, ok, err := ratesService.store.Get(ctx, anchor)
		switch {
		case err != nil:
			ratesService.logger.Warnf("Rates cache read failed: %v", err)
		case ok:
			ratesService.logger.Debugf("Serving rates for %s from cache", anchor)
			return ratesService.pending(cached, nil)
		}
	}

	snapshot, err := ratesService.fetchRatesFromProviders(ctx, anchor)
	if err != nil {
		ratesService.logger.WithFields(logrus.Fields{
			"anchor":     anchor,
			"error_type": classifyError(err).String(),
		}).Warnf("Exchange rates unavailable, using fallback table: %v", err)
		return ratesService.pending(ratesService.fallbackSnapshot(anchor, err), nil)
	}

	return ratesService.pending(snapshot, func() {
		if ratesService.store == nil {
			return
		}
		// the fetch context may be gone by the time a caller commits
		storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ratesService.store.Set(storeCtx, anchor, snapshot, ratesService.configuration.RatesCacheTTL); err != nil {
			ratesService.logger.Warnf("Rates cache write failed: %v", err)
		}
	})
}

func (ratesService *RatesService) pending(snapshot models.RateSnapshot, persist func()) *pendingRates {
	var once sync.Once
	return &pendingRates{
		snapshot: snapshot,
		commit: func() {
			once.Do(func() {
				if persist != nil {
					persist()
				}
				ratesService.install(snapshot)
			})
		},
	}
}

// fetchRatesFromProviders tries each provider in priority order, one request at a time
func (ratesService *RatesService) fetchRatesFromProviders(ctx context.Context, anchor string) (models.RateSnapshot, error) {
	if len(ratesService.providers) == 0 {
		return models.RateSnapshot{}, &ServiceError{
			Type:    ErrorTypeNoProviders,
			Message: "no exchange rate providers configured",
		}
	}

	var firstError error
	for _, provider := range ratesService.providers {
		ratesService.logger.Debugf("Fetching rates from provider: %s", provider.GetName())

		snapshot, err := provider.FetchRates(ctx, anchor)
		if err == nil {
			ratesService.logger.Infof("Successfully fetched %d rates from provider: %s", len(snapshot.Rates), provider.GetName())
			return snapshot, nil
		}

		switch classifyError(err) {
		case ErrorTypeContextCancelled:
			ratesService.logger.Warnf("Provider %s cancelled: %v", provider.GetName(), err)
			return models.RateSnapshot{}, &ServiceError{
				Type:    ErrorTypeContextCancelled,
				Message: "request context cancelled",
				Cause:   err,
			}
		case ErrorTypeNetworkError:
			ratesService.logger.Warnf("Provider %s network error: %v", provider.GetName(), err)
		case ErrorTypeInvalidResponse:
			ratesService.logger.Warnf("Provider %s invalid response: %v", provider.GetName(), err)
		default:
			ratesService.logger.Warnf("Provider %s failed: %v", provider.GetName(), err)
		}

		if firstError == nil {
			firstError = &ServiceError{
				Type:    ErrorTypeProviderFailed,
				Message: fmt.Sprintf("provider %s request failed", provider.GetName()),
				Cause:   err,
			}
		}
	}

	ratesService.logger.Errorf("All %d exchange rate providers failed", len(ratesService.providers))
	return models.RateSnapshot{}, firstError
}

// fallbackSnapshot builds the built-in table, re-expressed against anchor when possible
func (ratesService *RatesService) fallbackSnapshot(anchor string, cause error) models.RateSnapshot {
	table := rates.Fallback()
	tableAnchor := rates.FallbackAnchor
	if anchor != rates.FallbackAnchor {
		if rebased, err := rates.Rebase(table, anchor); err == nil {
			table, tableAnchor = rebased, anchor
		}
	}

	reason := &ServiceError{
		Type:    ErrorTypeRatesUnavailable,
		Message: "exchange rates unavailable",
		Cause:   fmt.Errorf("%w: %w", ErrUsingFallbackData, cause),
	}

	return models.RateSnapshot{
		Anchor:         tableAnchor,
		Rates:          table,
		Provider:       "fallback",
		Fallback:       true,
		FallbackReason: reason,
	}
}

// install replaces the snapshot and re-derives the effective table for the selected base.
// When the selected base cannot be applied the previous effective table is kept.
func (ratesService *RatesService) install(snapshot models.RateSnapshot) {
	ratesService.stateMutex.Lock()
	defer ratesService.stateMutex.Unlock()

	ratesService.snapshot = snapshot

	effective, err := rates.Rebase(snapshot.Rates, ratesService.base)
	if err == nil {
		ratesService.effective = effective
		return
	}

	ratesService.logger.Warnf("Cannot rebase new rates to %s: %v", ratesService.base, err)
	if ratesService.effective == nil {
		// nothing to retain yet, start from the anchor
		ratesService.base = snapshot.Anchor
		ratesService.effective, _ = rates.Rebase(snapshot.Rates, snapshot.Anchor)
	}
}

// Snapshot returns a copy of the installed snapshot
func (ratesService *RatesService) Snapshot() models.RateSnapshot {
	ratesService.stateMutex.RLock()
	defer ratesService.stateMutex.RUnlock()

	snapshot := ratesService.snapshot
	snapshot.Rates = snapshot.Rates.Clone()
	return snapshot
}

// Effective returns the effective table for the selected base
func (ratesService *RatesService) Effective() models.EffectiveRates {
	ratesService.stateMutex.RLock()
	defer ratesService.stateMutex.RUnlock()

	return ratesService.effectiveView(ratesService.base, ratesService.effective)
}

// SelectBase makes base the reference currency for Effective and Convert.
// A refused rebase keeps the previous base and table; both are returned with the error.
func (ratesService *RatesService) SelectBase(base string) (models.EffectiveRates, error) {
	ratesService.stateMutex.Lock()
	defer ratesService.stateMutex.Unlock()

	if ratesService.snapshot.IsZero() {
		return models.EffectiveRates{}, &ServiceError{
			Type:    ErrorTypeRatesUnavailable,
			Message: "exchange rates not loaded",
		}
	}

	effective, err := rates.Rebase(ratesService.snapshot.Rates, base)
	if err != nil {
		ratesService.logger.Warnf("Rebase to %s refused: %v", base, err)
		return ratesService.effectiveView(ratesService.base, ratesService.effective), &ServiceError{
			Type:    ErrorTypeRebaseRefused,
			Message: fmt.Sprintf("cannot use %s as base currency", base),
			Cause:   err,
		}
	}

	ratesService.base = base
	ratesService.effective = effective
	return ratesService.effectiveView(base, effective), nil
}

// EffectiveFor rebases the installed snapshot to base without changing the selection.
// On refusal the selected effective table is returned alongside the error.
func (ratesService *RatesService) EffectiveFor(base string) (models.EffectiveRates, error) {
	ratesService.stateMutex.RLock()
	defer ratesService.stateMutex.RUnlock()

	effective, err := rates.Rebase(ratesService.snapshot.Rates, base)
	if err != nil {
		return ratesService.effectiveView(ratesService.base, ratesService.effective), &ServiceError{
			Type:    ErrorTypeRebaseRefused,
			Message: fmt.Sprintf("cannot use %s as base currency", base),
			Cause:   err,
		}
	}
	return ratesService.effectiveView(base, effective), nil
}

// Convert converts amount from the selected base into target
func (ratesService *RatesService) Convert(amount float64, target string) (float64, bool) {
	ratesService.stateMutex.RLock()
	defer ratesService.stateMutex.RUnlock()

	return rates.Convert(amount, target, ratesService.effective)
}

// ConvertBetween converts amount from one currency to another using the installed snapshot.
// The returned rate is zero when the conversion is unavailable.
func (ratesService *RatesService) ConvertBetween(amount float64, from, to string) (converted, rate float64, ok bool) {
	ratesService.stateMutex.RLock()
	table := ratesService.snapshot.Rates
	ratesService.stateMutex.RUnlock()

	effective, err := rates.Rebase(table, from)
	if err != nil {
		return 0, 0, false
	}
	converted, ok = rates.Convert(amount, to, effective)
	if !ok {
		return 0, 0, false
	}
	return converted, effective[to], true
}

// Source describes where the installed rates came from
func (ratesService *RatesService) Source() string {
	snapshot := ratesService.Snapshot()
	switch {
	case snapshot.IsZero():
		return "not_loaded"
	case snapshot.Fallback:
		return "fallback"
	default:
		return "live:" + snapshot.Provider
	}
}

// effectiveView must be called with stateMutex held
func (ratesService *RatesService) effectiveView(base string, effective rates.Table) models.EffectiveRates {
	return models.EffectiveRates{
		Base:       base,
		Anchor:     ratesService.snapshot.Anchor,
		Rates:      effective.Clone(),
		Provider:   ratesService.snapshot.Provider,
		FetchedAt:  ratesService.snapshot.FetchedAt,
		Fallback:   ratesService.snapshot.Fallback,
		Currencies: effective.Currencies(),
	}
}
