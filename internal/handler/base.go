// Package handler provides HTTP handlers for the application.
package handler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/myhorsefarm/farmops/internal/errors"
)

// Context key for request metadata
type contextKey string

const requestIDContextKey contextKey = "request_id"

// GetRequestIDFromContext retrieves the request ID from the context.
func GetRequestIDFromContext(ctx context.Context) string {
	id, ok := ctx.Value(requestIDContextKey).(string)
	if !ok {
		return ""
	}
	return id
}

// JSON writes a JSON response with the appropriate headers.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// JSONWithRequest writes a JSON response, including request ID in headers.
// This is the preferred method when the request is available.
func JSONWithRequest(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if reqID := GetRequestIDFromContext(r.Context()); reqID != "" {
		w.Header().Set("X-Request-ID", reqID)
	}
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the JSON shape for API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// APIError writes an API error response in a consistent format.
func APIError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// DomainError maps an application error onto the HTTP response, using the
// error's code for the status and exposing only user-facing messages.
func DomainError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status := apperrors.GetHTTPStatus(err)
	code := string(apperrors.GetCode(err))

	message := "An internal error occurred"
	if apperrors.IsUserError(err) {
		message = err.Error()
	} else if logger != nil {
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.Error(err),
		)
	}

	JSONWithRequest(w, r, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
	})
}

// DecodeJSON decodes a request body into dst, rejecting unknown payloads
// larger than maxBytes.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

// clientIP extracts the client address, preferring X-Forwarded-For when the
// app runs behind a proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
