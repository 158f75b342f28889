// Package rates holds the pure rate-table operations: the built-in fallback
// table, re-basing a table to another currency and converting amounts.
package rates

import (
	"errors"
	"sort"
)

// FallbackAnchor is the currency the fallback table is quoted against
const FallbackAnchor = "USD"

var (
	// ErrRebaseRefused is returned when the requested base has a zero rate
	ErrRebaseRefused = errors.New("rates: base currency has a zero rate")
	// ErrUnknownCurrency is returned when the requested base is not in the table
	ErrUnknownCurrency = errors.New("rates: currency not present in table")
)

// Table maps a currency code to its rate against a single reference currency
type Table map[string]float64

var fallbackTable = Table{
	"USD": 1,
	"AED": 3.6725,
	"AFN": 71.1535,
	"ALL": 87.0052,
	"AMD": 389.3915,
	"ANG": 1.7900,
	"AOA": 921.0402,
	"ARS": 1172.0000,
	"AUD": 1.5510,
	"AWG": 1.7900,
	"AZN": 1.7006,
	"EUR": 0.925,
	"GBP": 0.79,
	"INR": 83.5,
}

// Fallback returns a fresh copy of the built-in table anchored on FallbackAnchor
func Fallback() Table {
	return fallbackTable.Clone()
}

// Clone returns an independent copy of the table
func (t Table) Clone() Table {
	clone := make(Table, len(t))
	for code, rate := range t {
		clone[code] = rate
	}
	return clone
}

// Currencies returns the table's codes in ascending order
func (t Table) Currencies() []string {
	codes := make([]string, 0, len(t))
	for code := range t {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Rebase re-expresses every rate in table relative to base.
// The input table is never modified.
func Rebase(table Table, base string) (Table, error) {
	baseRate, ok := table[base]
	if !ok {
		return nil, ErrUnknownCurrency
	}
	if baseRate == 0 {
		return nil, ErrRebaseRefused
	}

	effective := make(Table, len(table))
	for code, rate := range table {
		effective[code] = rate / baseRate
	}
	// exact by construction, keeps effective[base] == 1 free of rounding
	effective[base] = 1
	return effective, nil
}

// Convert multiplies amount by the target's effective rate.
// ok is false when amount is not positive or the target has no usable rate;
// callers then display the unconverted amount.
func Convert(amount float64, target string, effective Table) (converted float64, ok bool) {
	rate, present := effective[target]
	if !present || rate <= 0 || !(amount > 0) {
		return 0, false
	}
	return amount * rate, true
}
