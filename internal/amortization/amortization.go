// Package amortization computes the equated monthly installment (EMI) of a
// fixed-rate loan and its month-by-month amortization schedule.
package amortization

import (
	"math"
)

// Terms are the loan parameters entered by the user
type Terms struct {
	Principal         float64 `json:"principal"`
	AnnualRatePercent float64 `json:"annual_rate"`
	TermYears         float64 `json:"term_years"`
}

// Row is one month of the schedule
type Row struct {
	Month            int     `json:"month"`
	PrincipalPaid    float64 `json:"principal_paid"`
	InterestPaid     float64 `json:"interest_paid"`
	RemainingBalance float64 `json:"remaining_balance"`
}

// Result holds the installment and the fully materialised schedule
type Result struct {
	EMI         float64 `json:"emi"`
	MonthlyRate float64 `json:"monthly_rate"`
	// Months may be fractional; the schedule has floor(Months) rows.
	Months   float64 `json:"months"`
	Schedule []Row   `json:"schedule"`
}

// MaxMonths bounds the schedule length: 100 years of monthly installments
const MaxMonths = 1200

// Validate checks that every term is a finite number, then that every term is
// strictly positive, then that the term fits in MaxMonths
func (t Terms) Validate() error {
	for _, value := range []float64{t.Principal, t.AnnualRatePercent, t.TermYears} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return &InputError{Reason: ReasonNotNumeric}
		}
	}
	if t.Principal <= 0 || t.AnnualRatePercent <= 0 || t.TermYears <= 0 {
		return &InputError{Reason: ReasonNotPositive}
	}
	if t.TermYears*12 > MaxMonths {
		return &InputError{Reason: ReasonOutOfRange}
	}
	return nil
}

// Compute validates the terms and builds the amortization schedule.
// On error no partial result is returned.
func Compute(terms Terms) (Result, error) {
	if err := terms.Validate(); err != nil {
		return Result{}, err
	}

	monthlyRate := terms.AnnualRatePercent / 12 / 100
	months := terms.TermYears * 12

	emi := installment(terms.Principal, monthlyRate, months)

	rowCount := int(math.Floor(months))
	schedule := make([]Row, 0, rowCount)

	remainingBalance := terms.Principal
	for month := 1; month <= rowCount; month++ {
		interestPaid := remainingBalance * monthlyRate
		principalPaid := emi - interestPaid
		remainingBalance -= principalPaid
		if remainingBalance < 0 {
			remainingBalance = 0
		}

		schedule = append(schedule, Row{
			Month:            month,
			PrincipalPaid:    principalPaid,
			InterestPaid:     interestPaid,
			RemainingBalance: remainingBalance,
		})
	}

	result := Result{
		EMI:         emi,
		MonthlyRate: monthlyRate,
		Months:      months,
		Schedule:    schedule,
	}
	if !isFinite(emi) || !isFinite(result.TotalPayment()) {
		return Result{}, &InputError{Reason: ReasonOutOfRange}
	}
	return result, nil
}

// installment is P·r·(1+r)^n / ((1+r)^n − 1). The growth term is formed with
// Log1p and Expm1 so rates far below 1 ulp of 1 keep their precision.
func installment(principal, monthlyRate, months float64) float64 {
	if months*monthlyRate < 0x1p-52 {
		// interest is below float64 resolution: the zero-interest limit
		return principal / months
	}
	growthMinusOne := math.Expm1(months * math.Log1p(monthlyRate))
	if math.IsInf(growthMinusOne, 1) {
		return principal * monthlyRate
	}
	return principal * monthlyRate * (growthMinusOne + 1) / growthMinusOne
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// TotalPayment is the sum of every installment in the schedule
func (r Result) TotalPayment() float64 {
	total := 0.0
	for _, row := range r.Schedule {
		total += row.PrincipalPaid + row.InterestPaid
	}
	return total
}

// TotalInterest is the interest component of TotalPayment
func (r Result) TotalInterest() float64 {
	total := 0.0
	for _, row := range r.Schedule {
		total += row.InterestPaid
	}
	return total
}
