package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the session service
var (
	// Configuration errors
	ErrConfiguration = errors.New("configuration error")

	// Authorization leg errors
	ErrProviderDenied  = errors.New("provider denied authorization")
	ErrMalformedState  = errors.New("malformed callback state")
	ErrCodeAlreadyUsed = errors.New("authorization code already used")

	// Token endpoint errors
	ErrExchangeFailed = errors.New("token exchange failed")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrNoRefreshToken = errors.New("no refresh token available")

	// Token usage errors
	ErrStaleToken       = errors.New("stale or invalid token")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Session storage errors
	ErrSessionNotFound = errors.New("session not found")
	ErrStaleSession    = errors.New("session was replaced")
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

// New is errors.New, re-exported so callers need a single errors import
func New(text string) error {
	return errors.New(text)
}
