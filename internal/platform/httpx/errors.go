package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer. Services wrap storage and signing
// failures into one of these before they cross the HTTP boundary; raw driver
// errors never reach the client.
var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicate           = errors.New("username or email already exists")
	ErrValidation          = errors.New("validation failed")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrInvalidOrExpired    = errors.New("invalid or expired token")
	ErrRegistrationClosed  = errors.New("user registration is disabled")
	ErrPasswordResetClosed = errors.New("password reset is disabled")
)

// RespondError maps a domain error to the matching HTTP status and writes the
// JSON error body. Unknown errors collapse to a generic 500.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Error(w, http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrDuplicate):
		Error(w, http.StatusConflict, ErrDuplicate.Error())
	case errors.Is(err, ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRegistrationClosed):
		Error(w, http.StatusForbidden, ErrRegistrationClosed.Error())
	case errors.Is(err, ErrPasswordResetClosed):
		Error(w, http.StatusForbidden, ErrPasswordResetClosed.Error())
	case errors.Is(err, ErrForbidden):
		Error(w, http.StatusForbidden, ErrForbidden.Error())
	case errors.Is(err, ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, ErrInvalidCredentials.Error())
	case errors.Is(err, ErrInvalidOrExpired):
		Error(w, http.StatusUnauthorized, ErrInvalidOrExpired.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}
