package pipeline

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsValidationSeesWrappedErrors(t *testing.T) {
	err := fmt.Errorf("transition rejected: %w", Validationf("notes exceed %d characters", 500))
	if !IsValidation(err) {
		t.Error("wrapped validation error not recognized")
	}
	if IsValidation(errors.New("plain")) {
		t.Error("plain error classified as validation")
	}
	if IsValidation(nil) {
		t.Error("nil classified as validation")
	}
}

func TestTransientUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient("insert patterns", cause)
	if !errors.Is(err, cause) {
		t.Error("transient error does not unwrap to its cause")
	}
	var te *TransientStoreError
	if !errors.As(err, &te) || te.Op != "insert patterns" {
		t.Errorf("transient error lost its operation: %v", err)
	}
}

func TestIsInsufficientDataSeesWrappedErrors(t *testing.T) {
	err := fmt.Errorf("benchmark: %w", &InsufficientDataError{Reason: "peer group has 1 members, need 3"})
	if !IsInsufficientData(err) {
		t.Error("wrapped insufficient-data error not recognized")
	}
	if IsInsufficientData(ErrNotFound) {
		t.Error("not-found classified as insufficient data")
	}
}
