package handler

// Every error response has the same shape:
//   {"error": "Video not found", "code": "not_found"}
// error is the human-readable message shown by the frontend; code is the
// machine-readable kind. Denied views additionally carry a "redirect".

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/video-portal/internal/apperror"
	"github.com/sakif/video-portal/internal/service"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Field    string `json:"field,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// writeJSON sends a JSON response with the given status code. Headers must
// be set before WriteHeader; anything after is ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status and writes it.
//
// Services return *apperror.AppError values; errors.Is walks the chain to
// find the sentinel kind. Anything else is an internal failure and its text
// is never sent to the client.
func writeError(w http.ResponseWriter, err error) {
	var denied *service.ViewDeniedError
	if errors.As(err, &denied) {
		writeJSON(w, denied.Decision.Status, ErrorResponse{
			Error:    denied.Decision.Message,
			Code:     "forbidden",
			Redirect: denied.Decision.Redirect,
		})
		return
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		code := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			code = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			code = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			code = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			code = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
			code = "conflict"
		case errors.Is(err, apperror.ErrConfiguration):
			code = "configuration_error"
		case errors.Is(err, apperror.ErrUpstream):
			code = "upstream_error"
		}

		if status >= http.StatusInternalServerError {
			attrs := []any{slog.String("code", code), slog.String("error", appErr.Message)}
			if appErr.Cause != nil {
				attrs = append(attrs, slog.String("cause", appErr.Cause.Error()))
			}
			slog.Error("request failed", attrs...)
		}

		writeJSON(w, status, ErrorResponse{
			Error: appErr.Message,
			Code:  code,
			Field: appErr.Field,
		})
		return
	}

	slog.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "Internal server error",
		Code:  "internal_error",
	})
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return nil
}

// pageParams reads ?limit= and ?offset=. Bad values become zero and are
// clamped by the service.
func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}
