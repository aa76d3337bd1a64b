package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "simple message",
			err:      New(CodeNotFound, "quote not found"),
			expected: "quote not found",
		},
		{
			name: "with operation",
			err: &Error{
				Code:    CodeNotFound,
				Message: "quote not found",
				Op:      "quotes.GetByID",
			},
			expected: "quotes.GetByID: quote not found",
		},
		{
			name: "with underlying error",
			err: &Error{
				Code:    CodeDatabase,
				Message: "query failed",
				Err:     errors.New("connection refused"),
			},
			expected: "query failed: connection refused",
		},
		{
			name: "with operation and underlying error",
			err: &Error{
				Code:    CodeDatabase,
				Message: "query failed",
				Op:      "quotes.Create",
				Err:     errors.New("connection refused"),
			},
			expected: "quotes.Create: query failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("root cause")
	err := Wrap(underlying, "op", CodeInternal, "wrapped")

	if !errors.Is(err, underlying) {
		t.Error("Unwrap should allow errors.Is to find underlying error")
	}
}

func TestError_Is(t *testing.T) {
	err1 := New(CodeNotFound, "resource not found")
	err2 := New(CodeNotFound, "different message")
	err3 := New(CodeUnauthorized, "not authorized")

	if !errors.Is(err1, err2) {
		t.Error("errors with same code should match")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match")
	}
}

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code     Code
		expected int
	}{
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeInvalidCredentials, http.StatusUnauthorized},
		{CodeSignatureInvalid, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidInput, http.StatusBadRequest},
		{CodeMissingField, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeAlreadyExists, http.StatusConflict},
		{CodeInvalidState, http.StatusConflict},
		{CodeCapacityFull, http.StatusConflict},
		{CodeQuoteExpired, http.StatusGone},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeExternalService, http.StatusBadGateway},
		{CodeCircuitOpen, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
		{CodeDatabase, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "test")
			if got := err.HTTPStatus(); got != tt.expected {
				t.Errorf("HTTPStatus() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestError_IsRetriable(t *testing.T) {
	tests := []struct {
		code      Code
		retriable bool
	}{
		{CodeRateLimited, true},
		{CodeTimeout, true},
		{CodeCircuitOpen, true},
		{CodeExternalService, true},
		{CodeNotFound, false},
		{CodeValidation, false},
		{CodeUnauthorized, false},
		{CodeInternal, false},
		{CodeCapacityFull, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "test")
			if got := err.IsRetriable(); got != tt.retriable {
				t.Errorf("IsRetriable() = %v, expected %v", got, tt.retriable)
			}
		})
	}
}

func TestError_IsUserError(t *testing.T) {
	tests := []struct {
		code   Code
		isUser bool
	}{
		{CodeValidation, true},
		{CodeInvalidInput, true},
		{CodeUnauthorized, true},
		{CodeForbidden, true},
		{CodeNotFound, true},
		{CodeQuoteExpired, true},
		{CodeInvalidState, true},
		{CodeCapacityFull, true},
		{CodeInternal, false},
		{CodeDatabase, false},
		{CodeRateLimited, false}, // Transient, not user
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "test")
			if got := err.IsUserError(); got != tt.isUser {
				t.Errorf("IsUserError() = %v, expected %v", got, tt.isUser)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("root cause")
	err := Wrap(underlying, "quote.Accept", CodeInvalidState, "accept failed")

	if err.Code != CodeInvalidState {
		t.Errorf("Code = %q, expected %q", err.Code, CodeInvalidState)
	}
	if err.Op != "quote.Accept" {
		t.Errorf("Op = %q, expected %q", err.Op, "quote.Accept")
	}
	if err.Message != "accept failed" {
		t.Errorf("Message = %q, expected %q", err.Message, "accept failed")
	}
	if !errors.Is(err, underlying) {
		t.Error("wrapped error should contain underlying error")
	}
}

func TestWrapWithOp(t *testing.T) {
	// Wrap an existing Error
	original := New(CodeNotFound, "quote not found")
	wrapped := WrapWithOp(original, "handler.GetQuote")

	if wrapped.Code != CodeNotFound {
		t.Errorf("Code = %q, expected %q", wrapped.Code, CodeNotFound)
	}
	if wrapped.Op != "handler.GetQuote" {
		t.Errorf("Op = %q, expected %q", wrapped.Op, "handler.GetQuote")
	}

	// Wrap a standard error
	stdErr := errors.New("some error")
	wrapped2 := WrapWithOp(stdErr, "handler.DoSomething")

	if wrapped2.Code != CodeInternal {
		t.Errorf("Code = %q, expected %q for non-Error", wrapped2.Code, CodeInternal)
	}
}

func TestSentinelErrors(t *testing.T) {
	if ErrNotFound.Code != CodeNotFound {
		t.Errorf("ErrNotFound.Code = %q, expected %q", ErrNotFound.Code, CodeNotFound)
	}
	if ErrUnauthorized.Code != CodeUnauthorized {
		t.Errorf("ErrUnauthorized.Code = %q, expected %q", ErrUnauthorized.Code, CodeUnauthorized)
	}
	if ErrQuoteExpired.Code != CodeQuoteExpired {
		t.Errorf("ErrQuoteExpired.Code = %q, expected %q", ErrQuoteExpired.Code, CodeQuoteExpired)
	}
	if ErrCapacityFull.Code != CodeCapacityFull {
		t.Errorf("ErrCapacityFull.Code = %q, expected %q", ErrCapacityFull.Code, CodeCapacityFull)
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("quote")
	if err.Code != CodeNotFound {
		t.Errorf("Code = %q, expected %q", err.Code, CodeNotFound)
	}
	if err.Message != "quote not found" {
		t.Errorf("Message = %q, expected %q", err.Message, "quote not found")
	}
}

func TestMissingField(t *testing.T) {
	err := MissingField("email")
	if err.Code != CodeMissingField {
		t.Errorf("Code = %q, expected %q", err.Code, CodeMissingField)
	}
	if err.Message != "missing required field: email" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestInvalidFormat(t *testing.T) {
	err := InvalidFormat("date", "YYYY-MM-DD")
	if err.Code != CodeInvalidFormat {
		t.Errorf("Code = %q, expected %q", err.Code, CodeInvalidFormat)
	}
	if err.Message != "invalid format for date: expected YYYY-MM-DD" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestInvalidState(t *testing.T) {
	err := InvalidState("quote is not pending")
	if err.Code != CodeInvalidState {
		t.Errorf("Code = %q, expected %q", err.Code, CodeInvalidState)
	}
	if err.HTTPStatus() != http.StatusConflict {
		t.Errorf("HTTPStatus() = %d, expected %d", err.HTTPStatus(), http.StatusConflict)
	}
}

func TestDatabaseError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := DatabaseError("quotes.Create", underlying)

	if err.Code != CodeDatabase {
		t.Errorf("Code = %q, expected %q", err.Code, CodeDatabase)
	}
	if err.Op != "quotes.Create" {
		t.Errorf("Op = %q, expected %q", err.Op, "quotes.Create")
	}
	if !errors.Is(err, underlying) {
		t.Error("should wrap underlying error")
	}
}

func TestExternalServiceError(t *testing.T) {
	underlying := errors.New("503 service unavailable")
	err := ExternalServiceError("HubSpot", underlying)

	if err.Code != CodeExternalService {
		t.Errorf("Code = %q, expected %q", err.Code, CodeExternalService)
	}
	if err.Message != "HubSpot service error" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Kind != KindTransient {
		t.Errorf("Kind = %v, expected KindTransient", err.Kind)
	}
}

func TestWebhookError(t *testing.T) {
	err := WebhookError("invalid signature")
	if err.Code != CodeWebhookInvalid {
		t.Errorf("Code = %q, expected %q", err.Code, CodeWebhookInvalid)
	}
	if err.Kind != KindUser {
		t.Errorf("Kind = %v, expected KindUser", err.Kind)
	}
}

func TestGetCode(t *testing.T) {
	// App error
	appErr := New(CodeNotFound, "not found")
	if got := GetCode(appErr); got != CodeNotFound {
		t.Errorf("GetCode(appErr) = %q, expected %q", got, CodeNotFound)
	}

	// Standard error
	stdErr := errors.New("some error")
	if got := GetCode(stdErr); got != CodeInternal {
		t.Errorf("GetCode(stdErr) = %q, expected %q", got, CodeInternal)
	}
}

func TestGetHTTPStatus(t *testing.T) {
	// App error
	appErr := New(CodeNotFound, "not found")
	if got := GetHTTPStatus(appErr); got != http.StatusNotFound {
		t.Errorf("GetHTTPStatus(appErr) = %d, expected %d", got, http.StatusNotFound)
	}

	// Standard error
	stdErr := errors.New("some error")
	if got := GetHTTPStatus(stdErr); got != http.StatusInternalServerError {
		t.Errorf("GetHTTPStatus(stdErr) = %d, expected %d", got, http.StatusInternalServerError)
	}
}

func TestIsRetriableHelper(t *testing.T) {
	if !IsRetriable(New(CodeRateLimited, "test")) {
		t.Error("CodeRateLimited should be retriable")
	}
	if IsRetriable(New(CodeNotFound, "test")) {
		t.Error("CodeNotFound should not be retriable")
	}
	if IsRetriable(errors.New("standard error")) {
		t.Error("standard errors should not be retriable")
	}
}

func TestIsNotFoundHelper(t *testing.T) {
	if !IsNotFound(New(CodeNotFound, "test")) {
		t.Error("CodeNotFound should be recognized")
	}
	if IsNotFound(New(CodeInternal, "test")) {
		t.Error("CodeInternal should not be recognized as not found")
	}
}

func TestIsUserErrorHelper(t *testing.T) {
	if !IsUserError(New(CodeValidation, "test")) {
		t.Error("CodeValidation should be user error")
	}
	if IsUserError(New(CodeInternal, "test")) {
		t.Error("CodeInternal should not be user error")
	}
}

func TestError_ToResponse(t *testing.T) {
	err := New(CodeNotFound, "quote not found")
	resp := err.ToResponse()

	if resp.Error.Code != CodeNotFound {
		t.Errorf("Response.Error.Code = %q, expected %q", resp.Error.Code, CodeNotFound)
	}
	if resp.Error.Message != "quote not found" {
		t.Errorf("Response.Error.Message = %q, expected %q", resp.Error.Message, "quote not found")
	}
}

func TestErrorChaining(t *testing.T) {
	// Simulate error chain: database -> repository -> service -> handler
	dbErr := errors.New("connection refused")
	repoErr := DatabaseError("repo.GetQuote", dbErr)
	serviceErr := WrapWithOp(repoErr, "service.GetQuote")
	handlerErr := WrapWithOp(serviceErr, "handler.GetQuote")

	// Should be able to find original error
	if !errors.Is(handlerErr, dbErr) {
		t.Error("should be able to find original database error in chain")
	}

	// Check error message includes all context (operation + message + underlying error)
	errMsg := handlerErr.Error()
	expected := "handler.GetQuote: database operation failed: connection refused"
	if errMsg != expected {
		t.Errorf("Error() = %q, expected %q", errMsg, expected)
	}
}

func TestErrorWithFmtErrorf(t *testing.T) {
	// Test that errors work with fmt.Errorf wrapping
	original := New(CodeNotFound, "quote not found")
	wrapped := fmt.Errorf("handler failed: %w", original)

	var appErr *Error
	if !errors.As(wrapped, &appErr) {
		t.Error("errors.As should find Error in fmt.Errorf wrapped error")
	}
	if appErr.Code != CodeNotFound {
		t.Errorf("Code = %q, expected %q", appErr.Code, CodeNotFound)
	}
}
