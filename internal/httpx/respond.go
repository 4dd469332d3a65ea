// Package httpx provides HTTP response utilities following RFC7807 problem
// details, plus the mapping from domain errors to status codes.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lingzc/dormlife/internal/calculator"
	"github.com/lingzc/dormlife/internal/ledger"
	"github.com/lingzc/dormlife/internal/storage"
	"github.com/lingzc/dormlife/internal/validate"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes the request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

// RespondError maps domain errors to HTTP responses. Validation failures are
// client errors, missing rows are 404, integrity violations are internal and
// logged with full detail but reported without it.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validate.ErrInvalid), errors.Is(err, calculator.ErrUnsupportedMethod):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrIntegrity):
		slog.Error("settlement integrity violation", "error", err)
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	default:
		slog.Error("request failed", "error", err)
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
