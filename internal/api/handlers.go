package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/emi-calculator/internal/amortization"
	"github.com/dalfonso89/emi-calculator/internal/middleware"
	"github.com/dalfonso89/emi-calculator/internal/models"
	"github.com/dalfonso89/emi-calculator/internal/ratelimit"
	"github.com/dalfonso89/emi-calculator/internal/service"
)

const (
	version        = "1.0.0"
	defaultPerPage = 10
)

// Handlers contains all HTTP handlers
type Handlers struct {
	ratesService *service.RatesService
	calculator   *service.CalculatorService
	logger       *logrus.Logger
	validator    *validator.Validate
	startTime    time.Time
	production   bool
	rateLimiter  *ratelimit.Limiter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ratesService *service.RatesService, calculator *service.CalculatorService, logger *logrus.Logger) *Handlers {
	return &Handlers{
		ratesService: ratesService,
		calculator:   calculator,
		logger:       logger,
		validator:    validator.New(),
		startTime:    time.Now(),
	}
}

// WithRateLimit attaches the rate limiter after initialization
func (handlers *Handlers) WithRateLimit(rateLimiter *ratelimit.Limiter) *Handlers {
	handlers.rateLimiter = rateLimiter
	return handlers
}

// WithProduction enables the HTTPS redirect in the security middleware
func (handlers *Handlers) WithProduction(production bool) *Handlers {
	handlers.production = production
	return handlers
}

// SetupRoutes configures all the routes using Gin
func (handlers *Handlers) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(handlers.logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders(handlers.production))
	router.Use(middleware.CORS())

	if handlers.rateLimiter != nil {
		router.Use(handlers.rateLimiter.Middleware())
	}

	router.GET("/health", handlers.HealthCheck)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/amortization", handlers.CalculateAmortization)
		apiV1.GET("/amortization", handlers.CalculateAmortizationFromQuery)

		apiV1.GET("/rates", handlers.GetRates)
		apiV1.POST("/rates/refresh", handlers.RefreshRates)
		apiV1.PUT("/rates/base", handlers.SelectBase)
		apiV1.GET("/convert", handlers.Convert)
		apiV1.GET("/currencies", handlers.GetCurrencies)
	}

	return router
}

// HealthCheck handles health check requests
func (handlers *Handlers) HealthCheck(context *gin.Context) {
	healthStatus := "healthy"
	if handlers.ratesService.Snapshot().Fallback {
		healthStatus = "degraded"
	}

	context.JSON(http.StatusOK, models.HealthCheck{
		Status:      healthStatus,
		Timestamp:   time.Now(),
		Version:     version,
		Uptime:      time.Since(handlers.startTime).String(),
		RatesSource: handlers.ratesService.Source(),
	})
}

// CalculateAmortization computes a schedule from a JSON body
func (handlers *Handlers) CalculateAmortization(context *gin.Context) {
	request := blankAmortizationRequest()
	if bindError := context.ShouldBindJSON(&request); bindError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid request body", bindError.Error())
		return
	}
	handlers.calculate(context, request)
}

// CalculateAmortizationFromQuery computes a schedule from query parameters
func (handlers *Handlers) CalculateAmortizationFromQuery(context *gin.Context) {
	request := models.AmortizationRequest{
		Principal:      models.ParseNumericInput(context.Query("principal")),
		AnnualRate:     models.ParseNumericInput(context.Query("annual_rate")),
		TermYears:      models.ParseNumericInput(context.Query("term_years")),
		Currency:       context.Query("currency"),
		TargetCurrency: context.Query("target_currency"),
	}
	handlers.calculate(context, request)
}

func (handlers *Handlers) calculate(context *gin.Context, request models.AmortizationRequest) {
	if !handlers.validStruct(context, request) {
		return
	}

	response, calculateError := handlers.calculator.Calculate(context.Request.Context(), request.Terms(), request.Currency, request.TargetCurrency)
	if calculateError != nil {
		handlers.writeServiceError(context, calculateError)
		return
	}

	context.JSON(http.StatusOK, response)
}

// GetRates returns one page of the effective table for the requested or selected base
func (handlers *Handlers) GetRates(context *gin.Context) {
	var query models.RatesQuery
	if bindError := context.ShouldBindQuery(&query); bindError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid query", bindError.Error())
		return
	}
	if !handlers.validStruct(context, query) {
		return
	}

	snapshot, loadError := handlers.ratesService.EnsureLoaded(context.Request.Context())
	if loadError != nil {
		handlers.writeServiceError(context, loadError)
		return
	}

	warnings := fallbackWarning(snapshot)
	effective := handlers.ratesService.Effective()
	if query.Base != "" {
		var rebaseError error
		effective, rebaseError = handlers.ratesService.EffectiveFor(strings.ToUpper(query.Base))
		if rebaseError != nil {
			warnings = append(warnings, rebaseError.Error())
		}
	}

	context.JSON(http.StatusOK, buildRatesResponse(effective, query.Page, query.PerPage, warnings))
}

// RefreshRates re-fetches rates, bypassing the cache
func (handlers *Handlers) RefreshRates(context *gin.Context) {
	snapshot, refreshError := handlers.ratesService.Refresh(context.Request.Context(), true)
	if refreshError != nil {
		handlers.writeServiceError(context, refreshError)
		return
	}

	handlers.logger.WithFields(logrus.Fields{
		"provider": snapshot.Provider,
		"fallback": snapshot.Fallback,
		"count":    len(snapshot.Rates),
	}).Info("Exchange rates refreshed")

	context.JSON(http.StatusOK, buildRatesResponse(handlers.ratesService.Effective(), 0, defaultPerPage, fallbackWarning(snapshot)))
}

// SelectBase changes the base currency used for listings and conversions
func (handlers *Handlers) SelectBase(context *gin.Context) {
	var request models.SelectBaseRequest
	if bindError := context.ShouldBindJSON(&request); bindError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid request body", bindError.Error())
		return
	}
	if !handlers.validStruct(context, request) {
		return
	}

	snapshot, loadError := handlers.ratesService.EnsureLoaded(context.Request.Context())
	if loadError != nil {
		handlers.writeServiceError(context, loadError)
		return
	}

	effective, selectError := handlers.ratesService.SelectBase(strings.ToUpper(request.Base))
	if selectError != nil {
		var serviceError *service.ServiceError
		if errors.As(selectError, &serviceError) && serviceError.Type == service.ErrorTypeRebaseRefused {
			context.JSON(http.StatusConflict, models.BaseConflictResponse{
				ErrorResponse: models.ErrorResponse{
					Error:   "base currency refused",
					Message: selectError.Error(),
					Code:    http.StatusConflict,
				},
				Retained: effective,
			})
			return
		}
		handlers.writeServiceError(context, selectError)
		return
	}

	context.JSON(http.StatusOK, buildRatesResponse(effective, 0, defaultPerPage, fallbackWarning(snapshot)))
}

// Convert converts an amount between two currencies; from defaults to the selected base
func (handlers *Handlers) Convert(context *gin.Context) {
	var query models.ConvertQuery
	if bindError := context.ShouldBindQuery(&query); bindError != nil {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid query", bindError.Error())
		return
	}
	if !handlers.validStruct(context, query) {
		return
	}
	if math.IsNaN(query.Amount) || math.IsInf(query.Amount, 0) {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid query", "amount must be a finite number")
		return
	}

	snapshot, loadError := handlers.ratesService.EnsureLoaded(context.Request.Context())
	if loadError != nil {
		handlers.writeServiceError(context, loadError)
		return
	}

	from := strings.ToUpper(query.From)
	if from == "" {
		from = handlers.ratesService.Effective().Base
	}
	to := strings.ToUpper(query.To)

	response := models.ConvertResponse{
		From:      from,
		To:        to,
		Amount:    query.Amount,
		Converted: query.Amount,
		Fallback:  snapshot.Fallback,
	}

	warnings := fallbackWarning(snapshot)
	if converted, rate, ok := handlers.ratesService.ConvertBetween(query.Amount, from, to); ok {
		response.Converted = converted
		response.Rate = rate
		response.Available = true
	} else {
		warnings = append(warnings, fmt.Sprintf("conversion unavailable from %s to %s", from, to))
	}
	response.Warning = strings.Join(warnings, "; ")

	context.JSON(http.StatusOK, response)
}

// GetCurrencies lists the currencies of the selected effective table
func (handlers *Handlers) GetCurrencies(context *gin.Context) {
	snapshot, loadError := handlers.ratesService.EnsureLoaded(context.Request.Context())
	if loadError != nil {
		handlers.writeServiceError(context, loadError)
		return
	}

	effective := handlers.ratesService.Effective()
	context.JSON(http.StatusOK, models.CurrenciesResponse{
		Base:       effective.Base,
		Currencies: effective.Currencies,
		Fallback:   snapshot.Fallback,
	})
}

// validStruct runs struct validation and writes a 400 listing the failed fields
func (handlers *Handlers) validStruct(context *gin.Context, value interface{}) bool {
	validationError := handlers.validator.Struct(value)
	if validationError == nil {
		return true
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(validationError, &fieldErrors) {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid request", validationError.Error())
		return false
	}

	details := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		details = append(details, fmt.Sprintf("%s failed on '%s'", fieldError.Field(), fieldError.Tag()))
	}
	handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid request", strings.Join(details, ", "))
	return false
}

// writeServiceError maps domain errors onto HTTP status codes
func (handlers *Handlers) writeServiceError(context *gin.Context, err error) {
	if errors.Is(err, amortization.ErrInvalidInput) {
		handlers.writeErrorResponse(context, http.StatusBadRequest, "invalid loan input", err.Error())
		return
	}

	var serviceError *service.ServiceError
	if errors.As(err, &serviceError) {
		switch serviceError.Type {
		case service.ErrorTypeContextCancelled, service.ErrorTypeRatesUnavailable:
			handlers.writeErrorResponse(context, http.StatusServiceUnavailable, "exchange rates unavailable", err.Error())
			return
		case service.ErrorTypeRebaseRefused:
			handlers.writeErrorResponse(context, http.StatusConflict, "base currency refused", err.Error())
			return
		}
	}

	handlers.logger.Errorf("Unhandled error on %s: %v", context.Request.URL.Path, err)
	_ = context.Error(err)
	handlers.writeErrorResponse(context, http.StatusInternalServerError, "internal error", err.Error())
}

// writeErrorResponse writes an error response using Gin context
func (handlers *Handlers) writeErrorResponse(context *gin.Context, statusCode int, errorMessage, errorDetails string) {
	context.JSON(statusCode, models.ErrorResponse{
		Error:   errorMessage,
		Message: errorDetails,
		Code:    statusCode,
	})
}

// blankAmortizationRequest marks every number as missing so absent fields read as non-numeric
func blankAmortizationRequest() models.AmortizationRequest {
	missing := models.NumericInput(math.NaN())
	return models.AmortizationRequest{Principal: missing, AnnualRate: missing, TermYears: missing}
}

func fallbackWarning(snapshot models.RateSnapshot) []string {
	if snapshot.FallbackReason == nil {
		return nil
	}
	return []string{snapshot.FallbackReason.Error()}
}

// buildRatesResponse slices one zero-based page out of the sorted currency list
func buildRatesResponse(effective models.EffectiveRates, page, perPage int, warnings []string) models.RatesResponse {
	if perPage <= 0 {
		perPage = defaultPerPage
	}

	start := page * perPage
	if start > len(effective.Currencies) {
		start = len(effective.Currencies)
	}
	end := start + perPage
	if end > len(effective.Currencies) {
		end = len(effective.Currencies)
	}

	entries := make([]models.RateEntry, 0, end-start)
	for _, currency := range effective.Currencies[start:end] {
		entries = append(entries, models.RateEntry{Currency: currency, Rate: effective.Rates[currency]})
	}

	return models.RatesResponse{
		Base:       effective.Base,
		Anchor:     effective.Anchor,
		Provider:   effective.Provider,
		FetchedAt:  effective.FetchedAt,
		Fallback:   effective.Fallback,
		Warning:    strings.Join(warnings, "; "),
		Rates:      entries,
		Page:       page,
		PerPage:    perPage,
		TotalCount: len(effective.Currencies),
	}
}
