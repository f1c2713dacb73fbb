package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad request", http.StatusBadRequest)
	if err.Code != ErrCodeInvalidInput {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidInput, err.Code)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", err.HTTPStatus)
	}
	if err.Retryable {
		t.Error("INVALID_INPUT should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", http.StatusGatewayTimeout)
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
}

func TestServiceUnavailable(t *testing.T) {
	err := ServiceUnavailable("transcription service")
	if err.Code != ErrCodeServiceUnavailable {
		t.Errorf("expected SERVICE_UNAVAILABLE, got %s", err.Code)
	}
	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", err.HTTPStatus)
	}
	if !err.Retryable {
		t.Error("ServiceUnavailable should be retryable")
	}
	if err.Details["service"] != "transcription service" {
		t.Errorf("expected service detail, got %v", err.Details)
	}
}

func TestInvalidInput_FieldDetail(t *testing.T) {
	err := InvalidInput("models", "unknown backend name")
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", err.HTTPStatus)
	}
	if err.Details["field"] != "models" {
		t.Errorf("expected field detail, got %v", err.Details)
	}
	if !strings.Contains(err.Message, "unknown backend name") {
		t.Errorf("expected reason in message, got %q", err.Message)
	}
}

func TestAppError_ErrorAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Internal(cause)
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected cause in Error(), got %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestAsAppError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Timeout("dispatch"))
	appErr, ok := AsAppError(wrapped)
	if !ok {
		t.Fatal("expected AsAppError to unwrap")
	}
	if appErr.Code != ErrCodeTimeout {
		t.Errorf("expected TIMEOUT, got %s", appErr.Code)
	}

	if _, ok := AsAppError(fmt.Errorf("plain")); ok {
		t.Error("plain error should not convert")
	}
}

func TestToResponse(t *testing.T) {
	resp := ExternalService("search service", fmt.Errorf("502")).ToResponse()
	if resp.Error.Code != ErrCodeExternalService {
		t.Errorf("expected EXTERNAL_SERVICE_ERROR, got %s", resp.Error.Code)
	}
	if !resp.Error.Retryable {
		t.Error("external service errors should be retryable")
	}
	if resp.Error.Details["service"] != "search service" {
		t.Errorf("expected service detail, got %v", resp.Error.Details)
	}
}
