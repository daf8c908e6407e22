package validation

import (
	"math"
	"strconv"
	"time"

	mferrors "github.com/vnykmshr/milkflow/pkg/common/errors"
)

// ValidateNonNegative validates that a numeric value is non-negative (>= 0).
// Returns a ValidationError if the value is negative.
func ValidateNonNegative(module, field string, value float64) error {
	if value < 0 {
		return mferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// ValidatePositiveFloat validates that a float64 value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositiveFloat(module, field string, value float64) error {
	if value <= 0 {
		return mferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateFinite rejects NaN and infinite values.
func ValidateFinite(module, field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return mferrors.NewValidationError(module, field, value, "must be a finite number")
	}
	return nil
}

// ValidateAtMost validates that value does not exceed limit.
func ValidateAtMost(module, field string, value, limit float64) error {
	if value > limit {
		return mferrors.NewValidationError(module, field, value, "exceeds limit").
			WithHint("use a value between 0 and " + formatFloat(limit))
	}
	return nil
}

// ValidatePositiveDuration validates that a duration is greater than zero.
func ValidatePositiveDuration(module, field string, value time.Duration) error {
	if value <= 0 {
		return mferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("use a duration such as 1s or 500ms")
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
// Returns a ValidationError if the value is nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return mferrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return mferrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}

// ValidateAmount checks a quantity passed to a bucket operation. Unlike the
// configuration helpers it wraps errors.ErrInvalidAmount.
func ValidateAmount(module, field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return mferrors.NewAmountError(module, field, value, "must be a finite number")
	}
	if value < 0 {
		return mferrors.NewAmountError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
