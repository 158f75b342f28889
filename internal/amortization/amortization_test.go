package amortization

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_KnownLoan(t *testing.T) {
	result, err := Compute(Terms{Principal: 100000, AnnualRatePercent: 10, TermYears: 1})
	require.NoError(t, err)

	assert.InDelta(t, 0.008333, result.MonthlyRate, 1e-6)
	assert.Equal(t, 12.0, result.Months)
	assert.InDelta(t, 8791.59, result.EMI, 0.01)
	require.Len(t, result.Schedule, 12)

	first := result.Schedule[0]
	assert.Equal(t, 1, first.Month)
	assert.InDelta(t, 833.33, first.InterestPaid, 0.01)
	assert.InDelta(t, 7958.26, first.PrincipalPaid, 0.01)
	assert.InDelta(t, 92041.74, first.RemainingBalance, 0.01)

	assert.Equal(t, 12, result.Schedule[11].Month)
	assert.InDelta(t, 0, result.Schedule[11].RemainingBalance, 1e-6)
}

func TestCompute_ScheduleProperties(t *testing.T) {
	principals := []float64{1, 2500, 100000, 7.5e6}
	rates := []float64{0.5, 3.75, 10, 24}
	terms := []float64{0.5, 1, 2.5, 5, 30}

	for _, principal := range principals {
		for _, rate := range rates {
			for _, years := range terms {
				result, err := Compute(Terms{Principal: principal, AnnualRatePercent: rate, TermYears: years})
				require.NoError(t, err)

				months := years * 12
				require.Len(t, result.Schedule, int(math.Floor(months)))

				previous := principal
				for i, row := range result.Schedule {
					assert.Equal(t, i+1, row.Month)
					assert.GreaterOrEqual(t, row.RemainingBalance, 0.0)
					assert.LessOrEqual(t, row.RemainingBalance, previous)
					previous = row.RemainingBalance
				}

				if months == math.Floor(months) {
					last := result.Schedule[len(result.Schedule)-1]
					assert.InDelta(t, 0, last.RemainingBalance, principal*1e-9,
						"P=%v R=%v T=%v", principal, rate, years)

					paid := 0.0
					for _, row := range result.Schedule {
						paid += row.PrincipalPaid + row.InterestPaid
					}
					assert.InDelta(t, result.EMI*months, paid, result.EMI*months*1e-9)
					assert.InDelta(t, paid, result.TotalPayment(), 1e-6)
				}
			}
		}
	}
}

func TestCompute_FractionalTermTruncates(t *testing.T) {
	result, err := Compute(Terms{Principal: 12000, AnnualRatePercent: 6, TermYears: 1.3})
	require.NoError(t, err)

	assert.InDelta(t, 15.6, result.Months, 1e-9)
	assert.Len(t, result.Schedule, 15)
	// the fractional month is never scheduled, so some balance remains
	assert.Greater(t, result.Schedule[14].RemainingBalance, 0.0)
}

func TestCompute_ShortTermHasNoRows(t *testing.T) {
	result, err := Compute(Terms{Principal: 1000, AnnualRatePercent: 5, TermYears: 0.05})
	require.NoError(t, err)
	assert.Empty(t, result.Schedule)
	assert.Greater(t, result.EMI, 0.0)
}

func TestCompute_TinyRates(t *testing.T) {
	for _, rate := range []float64{1e-15, 1e-200, 5e-324} {
		result, err := Compute(Terms{Principal: 100000, AnnualRatePercent: rate, TermYears: 1})
		require.NoError(t, err, "rate %v", rate)

		assert.InDelta(t, 100000.0/12, result.EMI, 1e-6, "rate %v", rate)
		require.Len(t, result.Schedule, 12)
		assert.InDelta(t, 0, result.Schedule[11].RemainingBalance, 1e-6)
		assert.InDelta(t, 100000, result.TotalPayment(), 1e-6)
	}
}

func TestCompute_SmallRateMatchesClosedForm(t *testing.T) {
	// well above float64 resolution, where the plain formula is still exact enough
	result, err := Compute(Terms{Principal: 100000, AnnualRatePercent: 0.01, TermYears: 10})
	require.NoError(t, err)

	r := 0.01 / 12 / 100
	growth := math.Pow(1+r, 120)
	assert.InDelta(t, 100000*r*growth/(growth-1), result.EMI, 1e-6)
}

func TestCompute_MaxMonths(t *testing.T) {
	result, err := Compute(Terms{Principal: 500000, AnnualRatePercent: 4, TermYears: MaxMonths / 12})
	require.NoError(t, err)
	assert.Len(t, result.Schedule, MaxMonths)
}

func TestCompute_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		terms  Terms
		reason Reason
	}{
		{name: "zero principal", terms: Terms{Principal: 0, AnnualRatePercent: 5, TermYears: 1}, reason: ReasonNotPositive},
		{name: "negative rate", terms: Terms{Principal: 1000, AnnualRatePercent: -1, TermYears: 1}, reason: ReasonNotPositive},
		{name: "zero term", terms: Terms{Principal: 1000, AnnualRatePercent: 5, TermYears: 0}, reason: ReasonNotPositive},
		{name: "NaN term", terms: Terms{Principal: 1000, AnnualRatePercent: 5, TermYears: math.NaN()}, reason: ReasonNotNumeric},
		{name: "infinite principal", terms: Terms{Principal: math.Inf(1), AnnualRatePercent: 5, TermYears: 1}, reason: ReasonNotNumeric},
		// numeric check runs before the sign check
		{name: "NaN and negative", terms: Terms{Principal: -5, AnnualRatePercent: math.NaN(), TermYears: 1}, reason: ReasonNotNumeric},
		{name: "term beyond max months", terms: Terms{Principal: 1000, AnnualRatePercent: 5, TermYears: 100.5}, reason: ReasonOutOfRange},
		{name: "astronomical term", terms: Terms{Principal: 100000, AnnualRatePercent: 10, TermYears: 1e300}, reason: ReasonOutOfRange},
		{name: "term that overflows int", terms: Terms{Principal: 100000, AnnualRatePercent: 10, TermYears: 1e8}, reason: ReasonOutOfRange},
		{name: "payments overflow float64", terms: Terms{Principal: math.MaxFloat64, AnnualRatePercent: 10, TermYears: 30}, reason: ReasonOutOfRange},
		{name: "installment overflows float64", terms: Terms{Principal: 1e308, AnnualRatePercent: 1e300, TermYears: 1}, reason: ReasonOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Compute(tt.terms)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			assert.Empty(t, result.Schedule)
			assert.Zero(t, result.EMI)

			var inputErr *InputError
			require.True(t, errors.As(err, &inputErr))
			assert.Equal(t, tt.reason, inputErr.Reason)
		})
	}
}

func TestInputError_Messages(t *testing.T) {
	notNumeric := (&InputError{Reason: ReasonNotNumeric}).Error()
	notPositive := (&InputError{Reason: ReasonNotPositive}).Error()
	outOfRange := (&InputError{Reason: ReasonOutOfRange}).Error()

	assert.Equal(t, "Please enter valid numeric values.", notNumeric)
	assert.Equal(t, "Values must be positive and greater than zero.", notPositive)
	assert.Equal(t, "Values are too large to calculate.", outOfRange)
	assert.NotEqual(t, notNumeric, notPositive)
}

func TestResult_TotalInterest(t *testing.T) {
	result, err := Compute(Terms{Principal: 100000, AnnualRatePercent: 10, TermYears: 1})
	require.NoError(t, err)

	assert.InDelta(t, result.TotalPayment()-100000, result.TotalInterest(), 1e-6)
	assert.InDelta(t, 5499.06, result.TotalInterest(), 0.01)
}

func BenchmarkCompute(b *testing.B) {
	terms := Terms{Principal: 250000, AnnualRatePercent: 6.5, TermYears: 30}
	for i := 0; i < b.N; i++ {
		if _, err := Compute(terms); err != nil {
			b.Fatal(err)
		}
	}
}
