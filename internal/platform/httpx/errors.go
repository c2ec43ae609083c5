package httpx

import (
	"errors"
	"net/http"

	"github.com/aegis-auth/aegis/internal/shared"
)

// ErrValidation indicates request body validation failure.
var ErrValidation = errors.New("validation failed")

// RespondError maps domain errors to HTTP responses using RFC7807.
// Each kind of auth failure maps to a distinct status so API clients can
// tell them apart; access-denied responses stay deliberately terse.
func RespondError(w http.ResponseWriter, err error) {
	var suspended *shared.AccountSuspendedError
	var confErr *shared.ConfigurationError
	var depErr *shared.DependencyMissingError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrInvalidCredentials.Error())
	case errors.Is(err, shared.ErrTokenInvalid):
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrTokenInvalid.Error())
	case errors.Is(err, shared.ErrAccountUnverified):
		Problem(w, http.StatusForbidden, "Forbidden", shared.ErrAccountUnverified.Error())
	case errors.As(err, &suspended):
		Problem(w, http.StatusLocked, "Locked", suspended.Error())
	case errors.Is(err, shared.ErrAccessDenied):
		Problem(w, http.StatusForbidden, "Forbidden", shared.ErrAccessDenied.Error())
	case errors.Is(err, shared.ErrProtectedRole):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrRoleInUse):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &confErr), errors.As(err, &depErr):
		Problem(w, http.StatusInternalServerError, "Misconfigured", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
