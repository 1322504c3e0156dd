package core

import (
	"errors"
	"testing"

	"farewatch/internal/types"
)

type testWatchEdit struct {
	TargetUSD *float64 `json:"target_usd" validate:"omitempty,gt=0"`
	Email     *string  `json:"email" validate:"omitempty,email"`
}

type testRoute struct {
	Origin   string `json:"origin" validate:"required,iata"`
	Currency string `json:"currency" validate:"omitempty,currency_code"`
}

func ptr[T any](v T) *T { return &v }

func TestValidationResult_IsValid(t *testing.T) {
	if !(ValidationResult{}).IsValid() {
		t.Error("empty result should be valid")
	}
	if !(ValidationResult{Warnings: []string{"heads up"}}).IsValid() {
		t.Error("warnings alone should not invalidate")
	}
	if (ValidationResult{Errors: []ValidationError{{Field: "x"}}}).IsValid() {
		t.Error("errors should invalidate")
	}
}

func TestValidateStruct(t *testing.T) {
	v := NewValidator(testLogger())

	tests := []struct {
		name      string
		in        any
		wantCode  types.ErrorCode
		wantField string
	}{
		{"valid edit", testWatchEdit{TargetUSD: ptr(450.0), Email: ptr("a@b.co")}, "", ""},
		{"empty edit", testWatchEdit{}, "", ""},
		{"zero target", testWatchEdit{TargetUSD: ptr(0.0)}, types.ErrCodeValidationInvalidTarget, "target_usd"},
		{"negative target", testWatchEdit{TargetUSD: ptr(-5.0)}, types.ErrCodeValidationInvalidTarget, "target_usd"},
		{"bad email", testWatchEdit{Email: ptr("nope")}, types.ErrCodeValidationInvalidEmail, "email"},
		{"missing origin", testRoute{}, types.ErrCodeValidationMissingField, "origin"},
		{"lowercase origin", testRoute{Origin: "jfk"}, types.ErrCodeValidationInvalidValue, "origin"},
		{"bad currency", testRoute{Origin: "JFK", Currency: "usd"}, types.ErrCodeValidationInvalidValue, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.in)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %T: %v", err, err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", appErr.Code, tt.wantCode)
			}
			errs, ok := appErr.Details["validation_errors"].([]ValidationError)
			if !ok || len(errs) == 0 {
				t.Fatalf("details = %+v", appErr.Details)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestValidateStructWithWarnings_CollectsAll(t *testing.T) {
	v := NewValidator(testLogger())
	result := v.ValidateStructWithWarnings(testWatchEdit{TargetUSD: ptr(-1.0), Email: ptr("bad")})
	if len(result.Errors) != 2 {
		t.Fatalf("errors = %+v, want 2", result.Errors)
	}
}

func TestValidateStruct_NonStruct(t *testing.T) {
	v := NewValidator(testLogger())
	if err := v.ValidateStruct("not a struct"); types.CodeOf(err) != types.ErrCodeValidationInvalidValue {
		t.Errorf("code = %q", types.CodeOf(err))
	}
}
