package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/jrsteele09/go-auth-session/callbackstate"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/jrsteele09/go-auth-session/tokens"
)

// Outcome is the result of the provider redirect-back leg: Granted, Denied or Malformed.
type Outcome interface {
	isOutcome()
}

type Granted struct {
	Code  string
	State string
}

type Denied struct {
	Error       string
	Description string
}

type Malformed struct {
	Reason string
}

func (Granted) isOutcome()   {}
func (Denied) isOutcome()    {}
func (Malformed) isOutcome() {}

// ParseOutcome classifies the redirect query. A provider error wins over a code.
func ParseOutcome(q url.Values) Outcome {
	if e := q.Get("error"); e != "" {
		return Denied{Error: e, Description: q.Get("error_description")}
	}
	if code := q.Get("code"); code != "" {
		return Granted{Code: code, State: q.Get("state")}
	}
	return Malformed{Reason: "No authorization code received"}
}

// Redirect query values for failed sign-ins.
const (
	ErrorInvalidRequest      = "invalid_request"
	ErrorInvalidState        = "invalid_state"
	ErrorInvalidGrant        = "invalid_grant"
	ErrorTokenExchangeFailed = "token_exchange_failed"
)

// AuthorizationError is a failed sign-in attempt. Code and Description are
// safe to show to the user; Err is the taxonomy sentinel.
type AuthorizationError struct {
	Err         error
	Code        string
	Description string
	cause       error
}

func (e *AuthorizationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Err, e.Code, e.cause)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Code)
}

func (e *AuthorizationError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Err, e.cause}
	}
	return []error{e.Err}
}

// SignIn is what the browser needs to start the authorization leg.
type SignIn struct {
	URL   string
	State callbackstate.State
}

// BeginSignIn builds the provider authorize URL carrying an encoded state
// for returnTo. Unsafe return paths fall back to the default.
func (m *Manager) BeginSignIn(returnTo string) SignIn {
	st := callbackstate.New(callbackstate.SafeReturnPath(returnTo, m.defaultReturnPath))
	return SignIn{
		URL:   m.provider.AuthCodeURL(callbackstate.Encode(st)),
		State: st,
	}
}

var errCodeConsumed = errors.New("authorization code already consumed")

// CompleteAuthorization runs the redirect-back leg and returns the path to
// send the browser to. Failures are *AuthorizationError; anything else is an
// infrastructure error.
//
// A code is exchanged at most once: it is claimed in the ledger before the
// provider sees it and never retried. Concurrent deliveries of the same code
// share one exchange. expectedNonce must match the decoded state when it is
// not empty or when the state was issued by BeginSignIn.
func (m *Manager) CompleteAuthorization(ctx context.Context, store Store, outcome Outcome, expectedNonce string) (string, error) {
	prev, err := store.Get(ctx)
	if err != nil {
		return "", autherrors.Wrapf(err, "[session CompleteAuthorization] reading session")
	}
	a := m.newAttempt("complete_authorization", stateOf(prev))

	var granted Granted
	switch o := outcome.(type) {
	case Granted:
		granted = o
	case Denied:
		_ = a.to(StateFailed)
		m.metrics.IncExchange(metrics.ResultDenied)
		m.log.Info().Str("error", o.Error).Msg("provider denied authorization")
		return "", &AuthorizationError{Err: autherrors.ErrProviderDenied, Code: o.Error, Description: o.Description}
	case Malformed:
		_ = a.to(StateFailed)
		return "", &AuthorizationError{Err: autherrors.ErrMalformedState, Code: ErrorInvalidRequest, Description: o.Reason}
	default:
		_ = a.to(StateFailed)
		return "", &AuthorizationError{Err: autherrors.ErrMalformedState, Code: ErrorInvalidRequest, Description: "no authorization outcome"}
	}

	returnTo := m.defaultReturnPath
	if st, ok := callbackstate.Decode(granted.State); ok {
		if (st.Issued || expectedNonce != "") && st.Nonce != expectedNonce {
			_ = a.to(StateFailed)
			m.log.Warn().Msg("callback state nonce does not match this browser")
			return "", &AuthorizationError{Err: autherrors.ErrMalformedState, Code: ErrorInvalidState, Description: "Sign-in state does not match this browser"}
		}
		returnTo = callbackstate.SafeReturnPath(st.ReturnTo, m.defaultReturnPath)
	} else if granted.State != "" {
		m.log.Warn().Msg("callback state could not be decoded, using default return path")
	}

	if err := a.to(StateExchanging); err != nil {
		return "", err
	}

	v, err, _ := m.exchanges.Do(digest(granted.Code), func() (any, error) {
		claimed, err := m.ledger.Claim(ctx, granted.Code)
		if err != nil {
			return nil, autherrors.Wrapf(err, "[session CompleteAuthorization] claiming code")
		}
		if !claimed {
			return nil, errCodeConsumed
		}
		pctx, cancel := m.detached(ctx)
		defer cancel()
		ts, err := m.provider.ExchangeCode(pctx, granted.Code, m.provider.RedirectURI())
		if err != nil && !errors.Is(err, autherrors.ErrExchangeFailed) {
			err = fmt.Errorf("%w: %w", autherrors.ErrExchangeFailed, err)
		}
		return ts, err
	})

	switch {
	case errors.Is(err, errCodeConsumed):
		m.metrics.IncExchange(metrics.ResultDuplicate)
		if prev.Authenticated() {
			// Replayed delivery of a sign-in this browser already completed.
			_ = a.to(StateAuthenticated)
			return returnTo, nil
		}
		_ = a.to(StateFailed)
		m.log.Warn().Msg("authorization code delivered again after it was consumed")
		return "", &AuthorizationError{Err: autherrors.ErrCodeAlreadyUsed, Code: ErrorInvalidGrant, Description: "Authorization code has already been used"}

	case errors.Is(err, autherrors.ErrExchangeFailed):
		_ = a.to(StateFailed)
		m.metrics.IncExchange(metrics.ResultFailure)
		m.log.Error().Err(err).Msg("authorization code exchange failed")
		return "", &AuthorizationError{
			Err:         autherrors.ErrExchangeFailed,
			Code:        ErrorTokenExchangeFailed,
			Description: "Failed to exchange authorization code for tokens",
			cause:       err,
		}

	case err != nil:
		_ = a.to(StateFailed)
		m.metrics.IncExchange(metrics.ResultFailure)
		return "", err
	}

	if _, err := store.Put(ctx, v.(tokens.TokenSet)); err != nil {
		_ = a.to(StateFailed)
		m.metrics.IncExchange(metrics.ResultFailure)
		return "", autherrors.Wrapf(err, "[session CompleteAuthorization] storing tokens")
	}
	if err := a.to(StateAuthenticated); err != nil {
		return "", err
	}
	m.metrics.IncExchange(metrics.ResultSuccess)
	return returnTo, nil
}
