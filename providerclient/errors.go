package providerclient

import (
	"fmt"
	"net/http"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// Provider operations, used in errors, logs and metrics.
const (
	OpExchangeCode = "exchange_code"
	OpRefresh      = "refresh"
	OpUserInfo     = "userinfo"
	OpIntrospect   = "introspect"
)

// Error codes produced locally when the provider did not supply one.
const (
	CodeServerError          = "server_error"
	CodeTokenExchangeFailed  = "token_exchange_failed"
	CodeTokenRefreshFailed   = "token_refresh_failed"
	CodeInvalidTokenResponse = "invalid_token_response"
	CodeUserInfoFailed       = "userinfo_failed"
)

// ProviderError is the single failure shape of every identity provider call.
// StatusCode is zero when the provider was never reached.
type ProviderError struct {
	Op          string
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s: %s", e.Op, e.Code)
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the taxonomy sentinel for the operation and the transport cause.
func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel := e.sentinel(); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *ProviderError) sentinel() error {
	switch e.Op {
	case OpExchangeCode:
		return autherrors.ErrExchangeFailed
	case OpRefresh:
		return autherrors.ErrRefreshFailed
	}
	if e.Unauthorized() {
		return autherrors.ErrStaleToken
	}
	return nil
}

// Unreachable reports a transport failure: the provider gave no answer at all.
func (e *ProviderError) Unreachable() bool {
	return e.StatusCode == 0 && e.Err != nil
}

// Unauthorized reports that the provider rejected the presented credential.
func (e *ProviderError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}
