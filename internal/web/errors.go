package web

// errors.go maps engine errors onto HTTP responses. Every error is logged
// server-side with the request ID for correlation; clients get a JSON body
// whose message is safe to expose.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/quartzdata/smartbatch"
)

// ErrorResponse is the JSON structure of API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps the engine error taxonomy to a status code and a
// machine-readable code string.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, smartbatch.ErrConfiguration):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, smartbatch.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, smartbatch.ErrIntegrityViolation):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondError logs the error and writes its HTTP mapping. Client-caused
// failures carry the wrapped message; storage faults are masked so driver
// internals never reach the wire.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}
