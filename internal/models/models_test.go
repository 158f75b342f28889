package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalfonso89/emi-calculator/internal/amortization"
)

func TestParseNumericInput(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		nan      bool
	}{
		{input: "100000", expected: 100000},
		{input: " 7.5 ", expected: 7.5},
		{input: "-3", expected: -3},
		{input: "1e3", expected: 1000},
		{input: "", nan: true},
		{input: "abc", nan: true},
		{input: "12abc", nan: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			value := float64(ParseNumericInput(tt.input))
			if tt.nan {
				assert.True(t, math.IsNaN(value))
				return
			}
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestAmortizationRequest_UnmarshalJSON(t *testing.T) {
	var request AmortizationRequest
	body := `{"principal":"250000","annual_rate":7.25,"term_years":null,"currency":"eur"}`
	require.NoError(t, json.Unmarshal([]byte(body), &request))

	assert.Equal(t, NumericInput(250000), request.Principal)
	assert.Equal(t, NumericInput(7.25), request.AnnualRate)
	assert.True(t, math.IsNaN(float64(request.TermYears)))
	assert.Equal(t, "eur", request.Currency)

	terms := request.Terms()
	assert.Equal(t, 250000.0, terms.Principal)
	assert.Equal(t, 7.25, terms.AnnualRatePercent)

	var bad AmortizationRequest
	require.NoError(t, json.Unmarshal([]byte(`{"principal":true}`), &bad))
	assert.True(t, math.IsNaN(float64(bad.Principal)))
}

func TestNumericInput_UnmarshalText(t *testing.T) {
	var value NumericInput
	require.NoError(t, value.UnmarshalText([]byte("42.5")))
	assert.Equal(t, NumericInput(42.5), value)
}

func TestNewSummary(t *testing.T) {
	result, err := amortization.Compute(amortization.Terms{Principal: 100000, AnnualRatePercent: 10, TermYears: 1})
	require.NoError(t, err)

	summary, err := NewSummary(result)
	require.NoError(t, err)
	assert.Equal(t, "105499.06", summary.TotalPayment.String())
	assert.Equal(t, "5499.06", summary.TotalInterest.String())

	encoded, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_payment":"105499.06","total_interest":"5499.06"}`, string(encoded))
}

func TestNewSummary_RejectsNonFiniteTotals(t *testing.T) {
	for _, value := range []float64{math.Inf(1), math.NaN()} {
		result := amortization.Result{Schedule: []amortization.Row{{Month: 1, PrincipalPaid: 1, InterestPaid: value}}}

		summary, err := NewSummary(result)
		require.Error(t, err)
		assert.True(t, errors.Is(err, amortization.ErrInvalidInput))
		assert.Equal(t, Summary{}, summary)
	}
}

func TestBaseConflictResponse_JSON(t *testing.T) {
	encoded, err := json.Marshal(BaseConflictResponse{
		ErrorResponse: ErrorResponse{Error: "base currency refused", Message: "zero rate", Code: 409},
		Retained:      EffectiveRates{Base: "EUR"},
	})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, "base currency refused", decoded["error"])
	assert.Equal(t, float64(409), decoded["code"])
	assert.Equal(t, "EUR", decoded["retained"].(map[string]interface{})["base"])
}

func TestRateSnapshot_IsZero(t *testing.T) {
	assert.True(t, RateSnapshot{}.IsZero())
	assert.False(t, RateSnapshot{Rates: map[string]float64{"USD": 1}}.IsZero())
}
