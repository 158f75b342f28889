package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dalfonso89/emi-calculator/internal/amortization"
	"github.com/dalfonso89/emi-calculator/internal/models"
	"github.com/dalfonso89/emi-calculator/internal/rates"
)

// CalculatorService computes amortization schedules and expresses them in a target currency
type CalculatorService struct {
	ratesService    *RatesService
	logger          *logrus.Logger
	defaultCurrency string
}

// NewCalculatorService creates a calculator converting through ratesService
func NewCalculatorService(ratesService *RatesService, logger *logrus.Logger, defaultCurrency string) *CalculatorService {
	return &CalculatorService{
		ratesService:    ratesService,
		logger:          logger,
		defaultCurrency: strings.ToUpper(defaultCurrency),
	}
}

// Calculate runs the amortization engine and converts the result from currency into target.
// Invalid terms return an error satisfying errors.Is(err, amortization.ErrInvalidInput).
// Conversions that are unavailable keep source units and are flagged per row.
func (calculator *CalculatorService) Calculate(ctx context.Context, terms amortization.Terms, currency, target string) (models.AmortizationResponse, error) {
	result, err := amortization.Compute(terms)
	if err != nil {
		return models.AmortizationResponse{}, err
	}
	summary, err := models.NewSummary(result)
	if err != nil {
		return models.AmortizationResponse{}, err
	}

	currency = strings.ToUpper(currency)
	if currency == "" {
		currency = calculator.defaultCurrency
	}
	target = strings.ToUpper(target)
	if target == "" {
		target = currency
	}

	response := models.AmortizationResponse{
		Currency:       currency,
		TargetCurrency: target,
		EMI:            result.EMI,
		MonthlyRate:    result.MonthlyRate,
		Months:         result.Months,
		Summary:        summary,
		Schedule:       result.Schedule,
	}

	snapshot, err := calculator.ratesService.EnsureLoaded(ctx)
	if err != nil {
		return models.AmortizationResponse{}, err
	}
	response.Fallback = snapshot.Fallback
	if snapshot.FallbackReason != nil {
		response.Warning = snapshot.FallbackReason.Error()
	}

	effective, rebaseErr := rates.Rebase(snapshot.Rates, currency)
	if rebaseErr != nil {
		calculator.logger.WithFields(logrus.Fields{
			"currency": currency,
			"target":   target,
		}).Warnf("Schedule shown in source units: %v", rebaseErr)
		response.Warning = joinWarnings(response.Warning, "conversion unavailable for "+currency)
	}

	response.ConvertedEMI, response.EMIConverted = convertOrKeep(result.EMI, target, effective)

	response.ConvertedSchedule = make([]models.ConvertedRow, len(result.Schedule))
	for i, row := range result.Schedule {
		principalPaid, principalOK := convertOrKeep(row.PrincipalPaid, target, effective)
		interestPaid, interestOK := convertOrKeep(row.InterestPaid, target, effective)
		remainingBalance, _ := convertOrKeep(row.RemainingBalance, target, effective)

		response.ConvertedSchedule[i] = models.ConvertedRow{
			Month:            row.Month,
			PrincipalPaid:    principalPaid,
			InterestPaid:     interestPaid,
			RemainingBalance: remainingBalance,
			// a fully repaid balance of 0 has nothing to convert
			Converted: principalOK && interestOK,
		}
	}

	if !response.EMIConverted && rebaseErr == nil {
		response.Warning = joinWarnings(response.Warning, "conversion unavailable for "+target)
	}

	return response, nil
}

// convertOrKeep converts amount or falls back to the source value
func convertOrKeep(amount float64, target string, effective rates.Table) (float64, bool) {
	if converted, ok := rates.Convert(amount, target, effective); ok {
		return converted, true
	}
	return amount, false
}

func joinWarnings(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}
