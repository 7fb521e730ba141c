// Package httpx provides HTTP response utilities following RFC7807 problem
// details.
package httpx

import (
	"errors"
	"net/http"

	"github.com/tallybook/tallybook/internal/ledger/shared"
)

// RespondError maps engine errors to HTTP responses.
func RespondError(w http.ResponseWriter, err error) {
	var validation *shared.ValidationFailedError
	switch {
	case errors.As(err, &validation):
		JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"is_valid": false,
			"errors":   validation.Errors,
		})
	case errors.Is(err, shared.ErrAccountNotFound),
		errors.Is(err, shared.ErrEntryNotFound),
		errors.Is(err, shared.ErrPlanNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicateAccount):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrInvalidCodeFormat):
		Problem(w, http.StatusBadRequest, "Invalid Code", err.Error())
	case errors.Is(err, shared.ErrInvalidStatus),
		errors.Is(err, shared.ErrNonZeroBalance):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrRateUnavailable):
		Problem(w, http.StatusBadGateway, "Rate Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
