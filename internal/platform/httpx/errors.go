// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/mmbank/moneymarket/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrBusinessRule):
		Problem(w, http.StatusUnprocessableEntity, "Business Rule Violation", err.Error())
	case errors.Is(err, shared.ErrDuplicateOperation):
		Problem(w, http.StatusConflict, "Duplicate Operation", err.Error())
	case errors.Is(err, shared.ErrSequenceExhausted):
		Problem(w, http.StatusConflict, "Sequence Exhausted", err.Error())
	case errors.Is(err, shared.ErrConcurrencyTimeout):
		Problem(w, http.StatusServiceUnavailable, "Concurrency Timeout", err.Error())
	case errors.Is(err, shared.ErrSystemDateNotSet):
		Problem(w, http.StatusConflict, "System Date Not Configured", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
