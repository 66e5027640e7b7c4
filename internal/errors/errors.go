package errors

import (
	"errors"
	"fmt"
)

// Common error types for the auth service
var (
	// Authorization request errors
	ErrInvalidClient   = errors.New("invalid client")
	ErrInvalidRedirect = errors.New("invalid redirect_uri")
	ErrInvalidState    = errors.New("invalid state")
	ErrMissingCode     = errors.New("missing authorization code")

	// Upstream provider errors
	ErrUpstream                   = errors.New("upstream provider rejected the exchange")
	ErrIncompleteUpstreamResponse = errors.New("upstream response missing required fields")

	// Token errors
	ErrMissingSigningSecret = errors.New("missing signing secret")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")

	// Session errors
	ErrUnauthenticated = errors.New("not authenticated")

	// General errors
	ErrInternal = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
