package amortization

import "errors"

// ErrInvalidInput matches every InputError via errors.Is
var ErrInvalidInput = errors.New("invalid loan input")

// Reason tells the validation failures apart
type Reason int

const (
	ReasonNotNumeric Reason = iota
	ReasonNotPositive
	ReasonOutOfRange
)

// InputError is returned by Compute when the loan terms are rejected
type InputError struct {
	Reason Reason
}

func (e *InputError) Error() string {
	switch e.Reason {
	case ReasonNotNumeric:
		return "Please enter valid numeric values."
	case ReasonOutOfRange:
		return "Values are too large to calculate."
	default:
		return "Values must be positive and greater than zero."
	}
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}
