// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON and file
// download responses, plus the mapping from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"oshikakeibo/internal/core"
	"oshikakeibo/internal/services"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
	body       []byte
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header sets a response header.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets a value to be encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	b.body = nil
	return b
}

// Attachment sets a raw body served as a file download.
func (b *ResponseBuilder) Attachment(contentType, filename string, content []byte) *ResponseBuilder {
	b.payload = nil
	b.body = content
	b.headers["Content-Type"] = contentType
	b.headers["Content-Disposition"] = `attachment; filename="` + filename + `"`
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body != nil {
		w.WriteHeader(b.statusCode)
		_, _ = w.Write(b.body)
		return
	}

	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.payload); err != nil {
		slog.Warn("Failed encoding response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromError builds the error response for err. Internal errors are logged
// and their detail is not sent to the client.
func FromError(r *http.Request, err error) *ResponseBuilder {
	code := StatusFor(err)
	if code == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"path", r.URL.Path,
			"error", err)
		return InternalServerError("internal error")
	}
	return ErrorResponse(code, err.Error())
}
