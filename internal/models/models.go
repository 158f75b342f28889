package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dalfonso89/emi-calculator/internal/amortization"
	"github.com/dalfonso89/emi-calculator/internal/rates"
)

// RateSnapshot is one wholesale rate table, live or fallback
type RateSnapshot struct {
	Anchor    string      `json:"anchor" msgpack:"anchor"`
	Rates     rates.Table `json:"rates" msgpack:"rates"`
	Provider  string      `json:"provider" msgpack:"provider"`
	FetchedAt time.Time   `json:"fetched_at" msgpack:"fetched_at"`
	Fallback  bool        `json:"fallback" msgpack:"fallback"`
	// FallbackReason wraps service.ErrUsingFallbackData when Fallback is set
	FallbackReason error `json:"-" msgpack:"-"`
}

// IsZero reports whether no table has been installed yet
func (s RateSnapshot) IsZero() bool {
	return len(s.Rates) == 0
}

// EffectiveRates is a snapshot rebased to a chosen currency
type EffectiveRates struct {
	Base       string      `json:"base"`
	Anchor     string      `json:"anchor"`
	Rates      rates.Table `json:"rates"`
	Provider   string      `json:"provider"`
	FetchedAt  time.Time   `json:"fetched_at"`
	Fallback   bool        `json:"fallback"`
	Currencies []string    `json:"currencies"`
}

// RatesResponse is the paginated rates listing
type RatesResponse struct {
	Base       string      `json:"base"`
	Anchor     string      `json:"anchor"`
	Provider   string      `json:"provider"`
	FetchedAt  time.Time   `json:"fetched_at"`
	Fallback   bool        `json:"fallback"`
	Warning    string      `json:"warning,omitempty"`
	Rates      []RateEntry `json:"rates"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalCount int         `json:"total_count"`
}

// CurrenciesResponse lists the codes available under the selected base
type CurrenciesResponse struct {
	Base       string   `json:"base"`
	Currencies []string `json:"currencies"`
	Fallback   bool     `json:"fallback"`
}

// BaseConflictResponse is returned when a base selection is refused.
// Retained is the table still in effect.
type BaseConflictResponse struct {
	ErrorResponse
	Retained EffectiveRates `json:"retained"`
}

// RateEntry is one row of the rates listing
type RateEntry struct {
	Currency string  `json:"currency"`
	Rate     float64 `json:"rate"`
}

// RatesQuery binds the listing query string
type RatesQuery struct {
	Base    string `form:"base" validate:"omitempty,len=3,alpha"`
	Page    int    `form:"page" validate:"gte=0"`
	PerPage int    `form:"per_page" validate:"omitempty,oneof=10 25 50"`
}

// SelectBaseRequest selects the base currency used for listings
type SelectBaseRequest struct {
	Base string `json:"base" validate:"required,len=3,alpha"`
}

// ConvertQuery binds the conversion query string
type ConvertQuery struct {
	From   string  `form:"from" validate:"omitempty,len=3,alpha"`
	To     string  `form:"to" validate:"required,len=3,alpha"`
	Amount float64 `form:"amount"`
}

// ConvertResponse reports a conversion; when Available is false Converted holds the source amount
type ConvertResponse struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Rate      float64 `json:"rate,omitempty"`
	Converted float64 `json:"converted"`
	Available bool    `json:"available"`
	Fallback  bool    `json:"fallback"`
	Warning   string  `json:"warning,omitempty"`
}

// AmortizationRequest carries loan terms as typed by the user.
// Fields accept JSON numbers or numeric strings.
type AmortizationRequest struct {
	Principal      NumericInput `json:"principal" form:"principal"`
	AnnualRate     NumericInput `json:"annual_rate" form:"annual_rate"`
	TermYears      NumericInput `json:"term_years" form:"term_years"`
	Currency       string       `json:"currency" form:"currency" validate:"omitempty,len=3,alpha"`
	TargetCurrency string       `json:"target_currency" form:"target_currency" validate:"omitempty,len=3,alpha"`
}

// Terms converts the request into engine input
func (r AmortizationRequest) Terms() amortization.Terms {
	return amortization.Terms{
		Principal:         float64(r.Principal),
		AnnualRatePercent: float64(r.AnnualRate),
		TermYears:         float64(r.TermYears),
	}
}

// ConvertedRow is a schedule row expressed in the target currency.
// Converted is false when the row fell back to source units.
type ConvertedRow struct {
	Month            int     `json:"month"`
	PrincipalPaid    float64 `json:"principal_paid"`
	InterestPaid     float64 `json:"interest_paid"`
	RemainingBalance float64 `json:"remaining_balance"`
	Converted        bool    `json:"converted"`
}

// Summary holds cent-rounded loan totals
type Summary struct {
	TotalPayment  decimal.Decimal `json:"total_payment"`
	TotalInterest decimal.Decimal `json:"total_interest"`
}

// NewSummary rounds the result's totals to cents.
// Totals that are not finite cannot be represented and are rejected.
func NewSummary(result amortization.Result) (Summary, error) {
	totalPayment, totalInterest := result.TotalPayment(), result.TotalInterest()
	for _, total := range []float64{totalPayment, totalInterest} {
		if math.IsNaN(total) || math.IsInf(total, 0) {
			return Summary{}, &amortization.InputError{Reason: amortization.ReasonOutOfRange}
		}
	}
	return Summary{
		TotalPayment:  decimal.NewFromFloat(totalPayment).Round(2),
		TotalInterest: decimal.NewFromFloat(totalInterest).Round(2),
	}, nil
}

// AmortizationResponse is the full calculation returned to clients
type AmortizationResponse struct {
	Currency          string             `json:"currency"`
	TargetCurrency    string             `json:"target_currency"`
	EMI               float64            `json:"emi"`
	ConvertedEMI      float64            `json:"converted_emi"`
	EMIConverted      bool               `json:"emi_converted"`
	MonthlyRate       float64            `json:"monthly_rate"`
	Months            float64            `json:"months"`
	Summary           Summary            `json:"summary"`
	Schedule          []amortization.Row `json:"schedule"`
	ConvertedSchedule []ConvertedRow     `json:"converted_schedule"`
	Fallback          bool               `json:"fallback"`
	Warning           string             `json:"warning,omitempty"`
}

// HealthCheck reports service liveness
type HealthCheck struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Version     string    `json:"version"`
	Uptime      string    `json:"uptime"`
	RatesSource string    `json:"rates_source"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// NumericInput is a float that decodes from a JSON number or string.
// Text that does not parse becomes NaN so validation can report it as non-numeric.
type NumericInput float64

// ParseNumericInput parses user-entered text, yielding NaN for anything non-numeric
func ParseNumericInput(text string) NumericInput {
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return NumericInput(math.NaN())
	}
	return NumericInput(value)
}

func (n *NumericInput) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*n = NumericInput(math.NaN())
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*n = ParseNumericInput(text)
		return nil
	}
	*n = ParseNumericInput(string(trimmed))
	return nil
}

// UnmarshalText lets query-string binding share the JSON rules
func (n *NumericInput) UnmarshalText(text []byte) error {
	*n = ParseNumericInput(string(text))
	return nil
}
