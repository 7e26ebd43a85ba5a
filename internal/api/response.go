// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/kestrelsec/kestrel/internal/logging"
)

// APIResponse is the standardized response wrapper for all endpoints.
type APIResponse struct {
	// Success indicates whether the request was successful
	Success bool `json:"success"`

	// Data contains the response payload (null on error)
	Data interface{} `json:"data,omitempty"`

	// Error contains error details (null on success)
	Error *APIError `json:"error,omitempty"`

	// Meta contains optional metadata about the response
	Meta *APIMeta `json:"meta,omitempty"`
}

// APIError represents an error response.
type APIError struct {
	// Code is a machine-readable error code
	Code string `json:"code"`

	// Message is a human-readable error message
	Message string `json:"message"`

	// Details contains additional error details (optional)
	Details interface{} `json:"details,omitempty"`

	// CorrelationID is the request correlation ID for tracing
	CorrelationID string `json:"correlation_id,omitempty"`
}

// APIMeta contains optional response metadata.
type APIMeta struct {
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	DurationMs    int64     `json:"duration_ms,omitempty"`

	// Count is the number of items in a list response
	Count int `json:"count,omitempty"`
}

// Error codes for API responses
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeStoreError         = "STORE_ERROR"
)

// ResponseWriter provides methods for writing standardized API responses.
type ResponseWriter struct {
	w         http.ResponseWriter
	r         *http.Request
	startTime time.Time
}

// NewResponseWriter creates a new response writer.
func NewResponseWriter(w http.ResponseWriter, r *http.Request) *ResponseWriter {
	return &ResponseWriter{
		w:         w,
		r:         r,
		startTime: time.Now(),
	}
}

// Success writes a successful response with data.
func (rw *ResponseWriter) Success(data interface{}) {
	rw.SuccessWithMeta(data, nil)
}

// SuccessWithMeta writes a successful response with data and metadata.
func (rw *ResponseWriter) SuccessWithMeta(data interface{}, meta *APIMeta) {
	if meta == nil {
		meta = &APIMeta{}
	}
	meta.Timestamp = time.Now()
	meta.DurationMs = time.Since(rw.startTime).Milliseconds()
	meta.CorrelationID = logging.CorrelationID(rw.r.Context())

	response := APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	}

	rw.writeJSON(http.StatusOK, response)
}

// SuccessWithCount writes a successful list response carrying the item count.
func (rw *ResponseWriter) SuccessWithCount(data interface{}, count int) {
	rw.SuccessWithMeta(data, &APIMeta{Count: count})
}

// Error writes an error response with the given status code.
func (rw *ResponseWriter) Error(statusCode int, code, message string) {
	rw.ErrorWithDetails(statusCode, code, message, nil)
}

// ErrorWithDetails writes an error response with additional details.
func (rw *ResponseWriter) ErrorWithDetails(statusCode int, code, message string, details interface{}) {
	correlationID := logging.CorrelationID(rw.r.Context())

	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:          code,
			Message:       message,
			Details:       details,
			CorrelationID: correlationID,
		},
		Meta: &APIMeta{
			Timestamp:     time.Now(),
			DurationMs:    time.Since(rw.startTime).Milliseconds(),
			CorrelationID: correlationID,
		},
	}

	rw.writeJSON(statusCode, response)
}

// BadRequest writes a 400 Bad Request error.
func (rw *ResponseWriter) BadRequest(message string) {
	rw.Error(http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound writes a 404 Not Found error.
func (rw *ResponseWriter) NotFound(message string) {
	rw.Error(http.StatusNotFound, ErrCodeNotFound, message)
}

// InternalError writes a 500 Internal Server Error.
func (rw *ResponseWriter) InternalError(message string) {
	rw.Error(http.StatusInternalServerError, ErrCodeInternalError, message)
}

// ServiceUnavailable writes a 503 Service Unavailable error.
func (rw *ResponseWriter) ServiceUnavailable(message string) {
	rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, message)
}

// ValidationError writes a 400 error with validation details.
func (rw *ResponseWriter) ValidationError(message string, validationErrors interface{}) {
	rw.ErrorWithDetails(http.StatusBadRequest, ErrCodeValidationFailed, message, validationErrors)
}

// StoreError writes a 500 error for storage failures. The underlying
// error is logged, not leaked to the client.
func (rw *ResponseWriter) StoreError(err error) {
	logging.Error().Err(err).Msg("detection store error")
	rw.Error(http.StatusInternalServerError, ErrCodeStoreError, "a storage error occurred")
}

// writeJSON writes a JSON response with proper headers.
func (rw *ResponseWriter) writeJSON(statusCode int, data interface{}) {
	rw.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.w.WriteHeader(statusCode)

	if err := json.NewEncoder(rw.w).Encode(data); err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON response")
	}
}
