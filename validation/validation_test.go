package validation

import (
	"strings"
	"testing"

	"github.com/skillsenselab/chorus/errors"
)

func TestValidator_Required(t *testing.T) {
	v := New().Required("filename", "")
	if !v.HasErrors() {
		t.Fatal("expected error for empty filename")
	}

	appErr := v.Validate()
	if appErr == nil {
		t.Fatal("expected AppError")
	}
	if appErr.Code != errors.ErrCodeInvalidInput {
		t.Errorf("expected invalid input code, got %s", appErr.Code)
	}
	if !strings.Contains(appErr.Message, "filename") {
		t.Errorf("message should name the field, got %q", appErr.Message)
	}
}

func TestValidator_Chaining(t *testing.T) {
	v := New().
		Required("transcript", "hello").
		Range("max_queries", 10, 0, 5).
		OneOf("status", "bogus", []string{"success", "error"})

	if got := len(v.Errors()); got != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", got, v.Errors())
	}
}

func TestValidator_NoErrors(t *testing.T) {
	v := New().Required("name", "whisper").OneOf("status", "success", []string{"success", "error"})
	if v.HasErrors() {
		t.Errorf("unexpected errors: %v", v.Errors())
	}
	if v.Validate() != nil {
		t.Error("expected nil AppError")
	}
}

func TestValidateStruct(t *testing.T) {
	type backend struct {
		Name    string `json:"name" validate:"required"`
		BaseURL string `json:"base_url" validate:"required,url"`
	}

	err := ValidateStruct(backend{Name: "whisper", BaseURL: "http://localhost:8001"})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err = ValidateStruct(backend{BaseURL: "not a url"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	appErr, ok := err.(*errors.AppError)
	if !ok {
		t.Fatalf("expected *errors.AppError, got %T", err)
	}
	if !strings.Contains(appErr.Message, "name") || !strings.Contains(appErr.Message, "base_url") {
		t.Errorf("message should name both fields, got %q", appErr.Message)
	}
	if _, ok := appErr.Details["fields"]; !ok {
		t.Error("expected fields detail")
	}
}
