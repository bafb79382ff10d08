package handlers

import (
	"errors"
	"net/http"

	"github.com/telhawk-systems/adminauth/internal/password"
	"github.com/telhawk-systems/adminauth/internal/service"
	"github.com/telhawk-systems/adminauth/internal/session"
)

// statusFor maps a service error kind to an HTTP status code.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, session.ErrTokenInvalid),
		errors.Is(err, session.ErrTokenExpired),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrUserInactive):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, password.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
