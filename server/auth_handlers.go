package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/providerclient"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/tokenstore"
)

// CookieAuthState binds a provider redirect to the browser that started the sign-in.
const CookieAuthState = "auth_state"

// authStateMaxAge is long enough for a user to finish signing in at the provider.
const authStateMaxAge = 10 * 60

// LoginHandler starts the authorization leg and sends the browser to the provider.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signIn := s.sessions.BeginSignIn(r.URL.Query().Get("returnTo"))
		s.setStateCookie(w, r, signIn.State.Nonce, authStateMaxAge)
		http.Redirect(w, r, signIn.URL, http.StatusFound)
	}
}

// CallbackHandler completes the redirect back from the provider.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The state cookie is left to expire so a repeated delivery of the
		// same redirect still matches.
		var nonce string
		if c, err := r.Cookie(CookieAuthState); err == nil {
			nonce = c.Value
		}

		store := s.stores.Open(w, r)
		outcome := session.ParseOutcome(r.URL.Query())
		returnTo, err := s.sessions.CompleteAuthorization(r.Context(), store, outcome, nonce)
		if err != nil {
			var authErr *session.AuthorizationError
			if errors.As(err, &authErr) {
				s.redirectError(w, r, authErr.Code, authErr.Description)
				return
			}
			s.log.Err(err).Msg("completing authorization")
			s.redirectError(w, r, codeServerError, msgExchangeFailed)
			return
		}
		http.Redirect(w, r, returnTo, http.StatusFound)
	}
}

// LogoutHandler clears the session; with ?sso=true it also returns the provider logout URL.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sso := r.URL.Query().Get("sso") == "true"
		store := s.stores.Open(w, r)
		redirect, err := s.sessions.SignOut(r.Context(), store, sso, s.logoutURI(r))
		if err != nil {
			s.log.Err(err).Msg("signing out")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: msgInternalError})
			return
		}
		if sso {
			writeJSON(w, http.StatusOK, signOutResponse{Success: true, Redirect: redirect})
			return
		}
		writeJSON(w, http.StatusOK, signOutResponse{Success: true, Message: msgLoggedOut})
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store := s.stores.Open(w, r)
		ts, err := s.sessions.Refresh(r.Context(), store)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, refreshResponse{Success: true, ExpiresIn: ts.ExpiresIn})
		case errors.Is(err, autherrors.ErrNoRefreshToken):
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: msgNoRefreshToken})
		case errors.Is(err, autherrors.ErrRefreshFailed), errors.Is(err, autherrors.ErrNotAuthenticated):
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: codeTokenRefreshFail, ErrorDescription: msgRefreshFailed})
		case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
			// Client went away; nothing was written.
			s.log.Debug().Msg("refresh request cancelled")
		default:
			s.log.Err(err).Msg("refreshing tokens")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: msgInternalError})
		}
	}
}

func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.sessions.Status(r.Context(), s.stores.Open(w, r))
		if err != nil {
			s.log.Err(err).Msg("reading session status")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: msgInternalError})
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// TokenHandler hands the access token to page scripts for API calls.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := s.sessions.BearerToken(r.Context(), s.stores.Open(w, r))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "Bearer"})
		case errors.Is(err, autherrors.ErrNotAuthenticated):
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: msgNotAuthenticated})
		default:
			s.log.Err(err).Msg("reading bearer token")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: msgInternalError})
		}
	}
}

func (s *Server) ValidateTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.sessions.Validate(r.Context(), s.stores.Open(w, r))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, validateResponse{Valid: true, Message: msgTokenValid})
		case errors.Is(err, autherrors.ErrNotAuthenticated):
			writeJSON(w, http.StatusUnauthorized, validateResponse{Error: msgNoToken})
		case errors.Is(err, autherrors.ErrStaleToken):
			writeJSON(w, http.StatusUnauthorized, validateResponse{Error: msgTokenInvalid})
		default:
			s.log.Err(err).Msg("validating token")
			writeJSON(w, http.StatusInternalServerError, validateResponse{Error: msgInternalError})
		}
	}
}

func (s *Server) UserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.sessions.UserClaims(r.Context(), s.stores.Open(w, r))
		if err == nil {
			writeJSON(w, http.StatusOK, user)
			return
		}
		if errors.Is(err, autherrors.ErrNotAuthenticated) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: msgNotAuthenticated})
			return
		}
		var perr *providerclient.ProviderError
		if errors.As(err, &perr) {
			status := perr.StatusCode
			if status < http.StatusBadRequest {
				status = http.StatusBadGateway
			}
			writeJSON(w, status, errorBody{Error: msgUserInfoFailed})
			return
		}
		s.log.Err(err).Msg("fetching user claims")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: msgInternalError})
	}
}

// redirectError sends the browser to the error display path.
func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, code, description string) {
	q := url.Values{}
	q.Set("error", code)
	if description != "" {
		q.Set("error_description", description)
	}
	http.Redirect(w, r, s.config.ErrorPath+"?"+q.Encode(), http.StatusFound)
}

// logoutURI is where the provider returns the browser after SSO sign out:
// the calling origin when it is one we serve, otherwise the app base URL.
func (s *Server) logoutURI(r *http.Request) string {
	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if origin != "" && (origin == s.config.GetAppBaseURL() || s.config.GetAllowedOrigins().IsAllowedOrigin(origin)) {
		return origin + "/"
	}
	return s.config.GetAppBaseURL() + "/"
}

func (s *Server) setStateCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	secure := s.stateCookie.Secure
	if !s.stateCookie.SecureFixed {
		secure = tokenstore.Scheme(r) == "https"
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieAuthState,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}
