package session_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/callbackstate"
	"github.com/jrsteele09/go-auth-session/claims"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/metrics"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/session/mocks"
	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/jrsteele09/go-auth-session/tokenstore"
	"github.com/jrsteele09/go-auth-session/tokenstore/sessionrepo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const redirectURI = "https://app.example.com/api/auth/callback/cognito"

// browser replays the cookies it was given on each new request.
type browser struct {
	mu      sync.Mutex
	cookies map[string]string
}

func newBrowser() *browser {
	return &browser{cookies: map[string]string{}}
}

// open starts a request; commit applies its Set-Cookie headers.
func (b *browser) open(opener tokenstore.Opener) (tokenstore.Store, *httptest.ResponseRecorder, func()) {
	b.mu.Lock()
	r := httptest.NewRequest(http.MethodGet, "http://app.example.com/", nil)
	for name, value := range b.cookies {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	b.mu.Unlock()

	rec := httptest.NewRecorder()
	return opener.Open(rec, r), rec, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, c := range rec.Result().Cookies() {
			if c.MaxAge < 0 {
				delete(b.cookies, c.Name)
				continue
			}
			b.cookies[c.Name] = c.Value
		}
	}
}

func jwt(t *testing.T, c jwtlib.MapClaims) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, c).SignedString([]byte("k"))
	require.NoError(t, err)
	return raw
}

func strPtr(s string) *string { return &s }

func tokenSet(t *testing.T, access string, refresh *string) tokens.TokenSet {
	return tokens.TokenSet{
		AccessToken:  jwt(t, jwtlib.MapClaims{"sub": "user-1", "token_use": "access", "jti": access, "exp": time.Now().Add(time.Hour).Unix()}),
		IDToken:      jwt(t, jwtlib.MapClaims{"sub": "user-1", "email": "id@example.com", "name": "From ID", "jti": access}),
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}
}

type fixture struct {
	provider *mocks.MockProvider
	manager  *session.Manager
	metrics  *metrics.Metrics
	opener   tokenstore.Opener
}

func newFixture(t *testing.T, opener tokenstore.Opener) *fixture {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().RedirectURI().Return(redirectURI).AnyTimes()
	if opener == nil {
		opener = tokenstore.NewCookieStoreOpener(tokenstore.CookieOptions{})
	}
	m := metrics.New(nil)
	return &fixture{
		provider: provider,
		manager:  session.NewManager(provider, session.WithMetrics(m)),
		metrics:  m,
		opener:   opener,
	}
}

func (f *fixture) status(t *testing.T, b *browser) session.Status {
	t.Helper()
	store, _, _ := b.open(f.opener)
	st, err := f.manager.Status(context.Background(), store)
	require.NoError(t, err)
	require.False(t, st.Authenticated && !(st.HasAccessToken && st.HasIDToken))
	return st
}

func (f *fixture) signIn(t *testing.T, b *browser, refresh *string) {
	t.Helper()
	const code = "signin-code"
	f.provider.EXPECT().ExchangeCode(gomock.Any(), code, redirectURI).Return(tokenSet(t, "at1", refresh), nil)
	store, _, commit := b.open(f.opener)
	_, err := f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: code}, "")
	require.NoError(t, err)
	commit()
}

func TestParseOutcome(t *testing.T) {
	tests := map[string]struct {
		query url.Values
		want  session.Outcome
	}{
		"granted":          {url.Values{"code": {"c"}, "state": {"s"}}, session.Granted{Code: "c", State: "s"}},
		"granted no state": {url.Values{"code": {"c"}}, session.Granted{Code: "c"}},
		"denied":           {url.Values{"error": {"access_denied"}, "error_description": {"User said no"}}, session.Denied{Error: "access_denied", Description: "User said no"}},
		"error wins":       {url.Values{"error": {"server_error"}, "code": {"c"}}, session.Denied{Error: "server_error"}},
		"malformed":        {url.Values{"state": {"s"}}, session.Malformed{Reason: "No authorization code received"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, session.ParseOutcome(tc.query))
		})
	}
}

func TestBeginSignIn(t *testing.T) {
	f := newFixture(t, nil)
	var gotState string
	f.provider.EXPECT().AuthCodeURL(gomock.Any()).DoAndReturn(func(state string) string {
		gotState = state
		return "https://idp.example.com/oauth2/authorize?state=" + url.QueryEscape(state)
	}).Times(2)

	signIn := f.manager.BeginSignIn("/reports")
	require.Contains(t, signIn.URL, "https://idp.example.com/oauth2/authorize")
	decoded, ok := callbackstate.Decode(gotState)
	require.True(t, ok)
	require.Equal(t, "/reports", decoded.ReturnTo)
	require.Equal(t, signIn.State.Nonce, decoded.Nonce)

	signIn = f.manager.BeginSignIn("https://evil.example/")
	require.Equal(t, session.DefaultReturnPath, signIn.State.ReturnTo)
}

func TestCompleteAuthorization_ProviderDenied(t *testing.T) {
	f := newFixture(t, nil)
	b := newBrowser()
	store, rec, _ := b.open(f.opener)

	_, err := f.manager.CompleteAuthorization(context.Background(), store,
		session.ParseOutcome(url.Values{"error": {"access_denied"}, "error_description": {"User cancelled"}}), "")

	var authErr *session.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, autherrors.ErrProviderDenied)
	require.Equal(t, "access_denied", authErr.Code)
	require.Equal(t, "User cancelled", authErr.Description)
	require.Empty(t, rec.Result().Cookies())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Exchanges.WithLabelValues(metrics.ResultDenied)))
}

func TestCompleteAuthorization_Malformed(t *testing.T) {
	f := newFixture(t, nil)
	store, _, _ := newBrowser().open(f.opener)
	_, err := f.manager.CompleteAuthorization(context.Background(), store, session.ParseOutcome(url.Values{}), "")
	require.ErrorIs(t, err, autherrors.ErrMalformedState)
}

func TestCompleteAuthorization_NoRefreshToken(t *testing.T) {
	f := newFixture(t, nil)
	b := newBrowser()
	f.provider.EXPECT().ExchangeCode(gomock.Any(), "code-1", redirectURI).Return(tokenSet(t, "at1", nil), nil)

	store, _, commit := b.open(f.opener)
	returnTo, err := f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1"}, "")
	require.NoError(t, err)
	require.Equal(t, "/dashboard", returnTo)
	commit()

	st := f.status(t, b)
	require.True(t, st.Authenticated)
	require.True(t, st.HasAccessToken)
	require.True(t, st.HasIDToken)
	require.False(t, st.HasRefreshToken)
	require.NotNil(t, st.TokenInfo)
	require.Equal(t, "access", *st.TokenInfo.TokenUse)
}

func TestCompleteAuthorization_ReturnPath(t *testing.T) {
	tests := map[string]struct {
		state string
		nonce string
		want  string
	}{
		"decoded return path": {callbackstate.Encode(callbackstate.State{ReturnTo: "/reports?id=1", Nonce: "n1"}), "n1", "/reports?id=1"},
		"no nonce cookie":     {callbackstate.Encode(callbackstate.State{ReturnTo: "/reports", Nonce: "n1"}), "", "/reports"},
		"undecodable state":   {"%%%garbage", "n1", "/dashboard"},
		"off-site return":     {callbackstate.Encode(callbackstate.State{ReturnTo: "//evil.example", Nonce: "n1"}), "n1", "/dashboard"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.provider.EXPECT().ExchangeCode(gomock.Any(), "code-1", redirectURI).Return(tokenSet(t, "at1", strPtr("rt1")), nil)
			store, _, _ := newBrowser().open(f.opener)
			got, err := f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1", State: tc.state}, tc.nonce)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCompleteAuthorization_NonceMismatch(t *testing.T) {
	f := newFixture(t, nil)
	store, rec, _ := newBrowser().open(f.opener)
	state := callbackstate.Encode(callbackstate.State{ReturnTo: "/reports", Nonce: "attacker"})

	_, err := f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1", State: state}, "mine")
	require.ErrorIs(t, err, autherrors.ErrMalformedState)
	require.Empty(t, rec.Result().Cookies())
}

func TestCompleteAuthorization_IssuedStateNeedsItsCookie(t *testing.T) {
	f := newFixture(t, nil)
	f.provider.EXPECT().AuthCodeURL(gomock.Any()).Return("https://idp.example.com/oauth2/authorize")
	issued := callbackstate.Encode(f.manager.BeginSignIn("/reports").State)

	store, rec, _ := newBrowser().open(f.opener)
	_, err := f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1", State: issued}, "")

	var authErr *session.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, autherrors.ErrMalformedState)
	require.Equal(t, session.ErrorInvalidState, authErr.Code)
	require.Empty(t, rec.Result().Cookies())
}

func TestCompleteAuthorization_AtMostOnce(t *testing.T) {
	t.Run("redelivery to the same browser", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.provider.EXPECT().ExchangeCode(gomock.Any(), "code-1", redirectURI).Return(tokenSet(t, "at1", strPtr("rt1")), nil).Times(1)

		store, _, commit := b.open(f.opener)
		_, err := f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1"}, "")
		require.NoError(t, err)
		commit()

		store, _, _ = b.open(f.opener)
		returnTo, err := f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1"}, "")
		require.NoError(t, err)
		require.Equal(t, "/dashboard", returnTo)
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Exchanges.WithLabelValues(metrics.ResultDuplicate)))
	})

	t.Run("replay from another browser", func(t *testing.T) {
		f := newFixture(t, nil)
		f.provider.EXPECT().ExchangeCode(gomock.Any(), "code-1", redirectURI).Return(tokenSet(t, "at1", nil), nil).Times(1)

		store, _, _ := newBrowser().open(f.opener)
		_, err := f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1"}, "")
		require.NoError(t, err)

		store, rec, _ := newBrowser().open(f.opener)
		_, err = f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1"}, "")
		require.ErrorIs(t, err, autherrors.ErrCodeAlreadyUsed)
		require.Empty(t, rec.Result().Cookies())
	})

	t.Run("failed exchange is not retried", func(t *testing.T) {
		f := newFixture(t, nil)
		f.provider.EXPECT().ExchangeCode(gomock.Any(), "code-1", redirectURI).
			Return(tokens.TokenSet{}, errors.New("invalid_grant")).Times(1)

		store, rec, _ := newBrowser().open(f.opener)
		_, err := f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1"}, "")
		var authErr *session.AuthorizationError
		require.ErrorAs(t, err, &authErr)
		require.ErrorIs(t, err, autherrors.ErrExchangeFailed)
		require.Equal(t, session.ErrorTokenExchangeFailed, authErr.Code)
		require.NotContains(t, authErr.Description, "invalid_grant")
		require.Empty(t, rec.Result().Cookies())

		store, _, _ = newBrowser().open(f.opener)
		_, err = f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1"}, "")
		require.ErrorIs(t, err, autherrors.ErrCodeAlreadyUsed)
	})

	t.Run("concurrent delivery", func(t *testing.T) {
		f := newFixture(t, nil)
		f.provider.EXPECT().ExchangeCode(gomock.Any(), "code-1", redirectURI).
			DoAndReturn(func(context.Context, string, string) (tokens.TokenSet, error) {
				time.Sleep(20 * time.Millisecond)
				return tokenSet(t, "at1", nil), nil
			}).Times(1)

		const deliveries = 8
		errs := make(chan error, deliveries)
		for i := 0; i < deliveries; i++ {
			go func() {
				store, _, _ := newBrowser().open(f.opener)
				_, err := f.manager.CompleteAuthorization(context.Background(), store, session.Granted{Code: "code-1"}, "")
				errs <- err
			}()
		}

		successes := 0
		for i := 0; i < deliveries; i++ {
			if err := <-errs; err != nil {
				require.ErrorIs(t, err, autherrors.ErrCodeAlreadyUsed)
				continue
			}
			successes++
		}
		require.GreaterOrEqual(t, successes, 1)
	})
}

func TestRefresh(t *testing.T) {
	t.Run("keeps refresh token when not rotated", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.signIn(t, b, strPtr("rt1"))
		f.provider.EXPECT().Refresh(gomock.Any(), "rt1").Return(tokenSet(t, "at2", nil), nil)

		store, _, commit := b.open(f.opener)
		ts, err := f.manager.Refresh(context.Background(), store)
		require.NoError(t, err)
		require.Equal(t, 3600, ts.ExpiresIn)
		commit()

		st := f.status(t, b)
		require.True(t, st.Authenticated)
		require.True(t, st.HasRefreshToken)
		require.Equal(t, "rt1", b.cookies[tokenstore.CookieRefreshToken])
	})

	t.Run("rotated refresh token replaces the old one", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.signIn(t, b, strPtr("rt1"))
		f.provider.EXPECT().Refresh(gomock.Any(), "rt1").Return(tokenSet(t, "at2", strPtr("rt2")), nil)

		store, _, commit := b.open(f.opener)
		_, err := f.manager.Refresh(context.Background(), store)
		require.NoError(t, err)
		commit()
		require.Equal(t, "rt2", b.cookies[tokenstore.CookieRefreshToken])
	})

	t.Run("failure clears everything", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.signIn(t, b, strPtr("rt1"))
		f.provider.EXPECT().Refresh(gomock.Any(), "rt1").Return(tokens.TokenSet{}, errors.New("invalid_grant")).Times(1)

		store, _, commit := b.open(f.opener)
		_, err := f.manager.Refresh(context.Background(), store)
		require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
		commit()

		require.Equal(t, session.Status{}, f.status(t, b))
		require.Empty(t, b.cookies)
	})

	t.Run("no refresh token", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.signIn(t, b, nil)

		store, _, commit := b.open(f.opener)
		_, err := f.manager.Refresh(context.Background(), store)
		require.ErrorIs(t, err, autherrors.ErrNoRefreshToken)
		commit()
		require.False(t, f.status(t, b).Authenticated)
	})
}

func TestRefresh_ConcurrentCallersShareOneProviderCall(t *testing.T) {
	f := newFixture(t, tokenstore.NewServerStoreOpener(sessionrepo.NewInMemoryRepo(), tokenstore.CookieOptions{}))
	b := newBrowser()
	f.signIn(t, b, strPtr("rt1"))

	started := make(chan struct{})
	release := make(chan struct{})
	f.provider.EXPECT().Refresh(gomock.Any(), "rt1").
		DoAndReturn(func(context.Context, string) (tokens.TokenSet, error) {
			close(started)
			<-release
			return tokenSet(t, "at2", nil), nil
		}).Times(1)

	const callers = 5
	stores := make([]tokenstore.Store, callers)
	for i := range stores {
		stores[i], _, _ = b.open(f.opener)
		_, err := stores[i].Get(context.Background())
		require.NoError(t, err)
	}

	errs := make(chan error, callers)
	for _, store := range stores {
		go func() {
			_, err := f.manager.Refresh(context.Background(), store)
			errs <- err
		}()
	}
	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs)
	}
	require.Equal(t, float64(callers-1), testutil.ToFloat64(f.metrics.RefreshCoalesced))
	require.True(t, f.status(t, b).Authenticated)
}

func TestRefresh_LateRequestWithRotatedToken(t *testing.T) {
	t.Run("reuses the rotation instead of signing out", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.signIn(t, b, strPtr("rt1"))
		f.provider.EXPECT().Refresh(gomock.Any(), "rt1").Return(tokenSet(t, "at2", strPtr("rt2")), nil).Times(1)

		// Both requests left the browser before either response arrived.
		storeA, _, commitA := b.open(f.opener)
		storeB, _, commitB := b.open(f.opener)

		_, err := f.manager.Refresh(context.Background(), storeA)
		require.NoError(t, err)
		_, err = f.manager.Refresh(context.Background(), storeB)
		require.NoError(t, err)
		commitA()
		commitB()

		require.Equal(t, "rt2", b.cookies[tokenstore.CookieRefreshToken])
		require.True(t, f.status(t, b).Authenticated)
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshCoalesced))
	})

	t.Run("unrotated token goes back to the provider", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.signIn(t, b, strPtr("rt1"))
		f.provider.EXPECT().Refresh(gomock.Any(), "rt1").Return(tokenSet(t, "at2", nil), nil).Times(2)

		for range 2 {
			store, _, commit := b.open(f.opener)
			_, err := f.manager.Refresh(context.Background(), store)
			require.NoError(t, err)
			commit()
		}
		require.Zero(t, testutil.ToFloat64(f.metrics.RefreshCoalesced))
	})

	t.Run("no reuse without a grace window", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		provider := mocks.NewMockProvider(ctrl)
		provider.EXPECT().RedirectURI().Return(redirectURI).AnyTimes()
		f := &fixture{
			provider: provider,
			manager:  session.NewManager(provider, session.WithRotationGrace(0)),
			opener:   tokenstore.NewCookieStoreOpener(tokenstore.CookieOptions{}),
		}
		b := newBrowser()
		f.signIn(t, b, strPtr("rt1"))
		gomock.InOrder(
			provider.EXPECT().Refresh(gomock.Any(), "rt1").Return(tokenSet(t, "at2", strPtr("rt2")), nil),
			provider.EXPECT().Refresh(gomock.Any(), "rt1").Return(tokens.TokenSet{}, errors.New("invalid_grant")),
		)

		storeA, _, _ := b.open(f.opener)
		storeB, _, _ := b.open(f.opener)
		_, err := f.manager.Refresh(context.Background(), storeA)
		require.NoError(t, err)
		_, err = f.manager.Refresh(context.Background(), storeB)
		require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
	})
}

func TestRefresh_CancelledCallerWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	b := newBrowser()
	f.signIn(t, b, strPtr("rt1"))

	release := make(chan struct{})
	started := make(chan struct{})
	finished := make(chan struct{})
	f.provider.EXPECT().Refresh(gomock.Any(), "rt1").
		DoAndReturn(func(ctx context.Context, _ string) (tokens.TokenSet, error) {
			defer close(finished)
			close(started)
			<-release
			// the provider call outlives the caller
			require.NoError(t, ctx.Err())
			return tokens.TokenSet{}, errors.New("invalid_grant")
		})

	ctx, cancel := context.WithCancel(context.Background())
	store, rec, _ := b.open(f.opener)
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Refresh(ctx, store)
		done <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	close(release)
	<-finished

	require.Empty(t, rec.Result().Cookies())
	require.True(t, f.status(t, b).Authenticated)
}

func TestSignOut(t *testing.T) {
	t.Run("sso", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.signIn(t, b, strPtr("rt1"))
		f.provider.EXPECT().LogoutURL("https://app.example.com/").Return("https://idp.example.com/logout?client_id=c&logout_uri=https%3A%2F%2Fapp.example.com%2F")

		store, _, commit := b.open(f.opener)
		redirect, err := f.manager.SignOut(context.Background(), store, true, "https://app.example.com/")
		require.NoError(t, err)
		require.Contains(t, redirect, "/logout?")
		commit()

		require.Empty(t, b.cookies)
		require.Equal(t, session.Status{}, f.status(t, b))
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SignOuts.WithLabelValues(session.SignOutSSO)))
	})

	t.Run("local", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.signIn(t, b, strPtr("rt1"))

		store, _, commit := b.open(f.opener)
		redirect, err := f.manager.SignOut(context.Background(), store, false, "")
		require.NoError(t, err)
		require.Empty(t, redirect)
		commit()
		require.Empty(t, b.cookies)
	})
}

func TestUserClaims(t *testing.T) {
	t.Run("userinfo takes precedence", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.signIn(t, b, nil)
		f.provider.EXPECT().FetchUserInfo(gomock.Any(), gomock.Any()).
			Return(claims.View{"sub": "user-1", "email": "info@example.com"}, nil)

		store, _, _ := b.open(f.opener)
		uc, err := f.manager.UserClaims(context.Background(), store)
		require.NoError(t, err)
		require.Equal(t, session.SourceUserInfo, uc.Source)
		require.Equal(t, "info@example.com", uc.User.Email())
		require.Equal(t, "From ID", uc.User.Name())
	})

	t.Run("falls back to id token", func(t *testing.T) {
		f := newFixture(t, nil)
		b := newBrowser()
		f.signIn(t, b, nil)
		f.provider.EXPECT().FetchUserInfo(gomock.Any(), gomock.Any()).Return(nil, autherrors.ErrStaleToken)

		store, _, _ := b.open(f.opener)
		uc, err := f.manager.UserClaims(context.Background(), store)
		require.NoError(t, err)
		require.Equal(t, session.SourceIDToken, uc.Source)
		require.Equal(t, "id@example.com", uc.User.Email())
	})

	t.Run("neither source", func(t *testing.T) {
		f := newFixture(t, nil)
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: tokenstore.CookieAccessToken, Value: "opaque"})
		r.AddCookie(&http.Cookie{Name: tokenstore.CookieIDToken, Value: "not-a-jwt"})
		f.provider.EXPECT().FetchUserInfo(gomock.Any(), "opaque").Return(nil, autherrors.ErrStaleToken)

		_, err := f.manager.UserClaims(context.Background(), f.opener.Open(httptest.NewRecorder(), r))
		require.ErrorIs(t, err, autherrors.ErrStaleToken)
	})

	t.Run("not signed in", func(t *testing.T) {
		f := newFixture(t, nil)
		store, _, _ := newBrowser().open(f.opener)
		_, err := f.manager.UserClaims(context.Background(), store)
		require.ErrorIs(t, err, autherrors.ErrNotAuthenticated)
	})
}

func TestBearerTokenAndValidate(t *testing.T) {
	f := newFixture(t, nil)
	b := newBrowser()

	store, _, _ := b.open(f.opener)
	_, err := f.manager.BearerToken(context.Background(), store)
	require.ErrorIs(t, err, autherrors.ErrNotAuthenticated)
	require.ErrorIs(t, f.manager.Validate(context.Background(), store), autherrors.ErrNotAuthenticated)

	f.signIn(t, b, nil)
	store, _, _ = b.open(f.opener)
	token, err := f.manager.BearerToken(context.Background(), store)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	f.provider.EXPECT().Introspect(gomock.Any(), token).Return(true, nil)
	require.NoError(t, f.manager.Validate(context.Background(), store))

	f.provider.EXPECT().Introspect(gomock.Any(), token).Return(false, nil)
	require.ErrorIs(t, f.manager.Validate(context.Background(), store), autherrors.ErrStaleToken)
}

func TestTransitions(t *testing.T) {
	require.True(t, session.CanTransition(session.StateAnonymous, session.StateExchanging))
	require.True(t, session.CanTransition(session.StateExchanging, session.StateAuthenticated))
	require.True(t, session.CanTransition(session.StateRefreshing, session.StateAnonymous))
	require.False(t, session.CanTransition(session.StateFailed, session.StateAuthenticated))
	require.False(t, session.CanTransition(session.StateAnonymous, session.StateAuthenticated))
	require.False(t, session.CanTransition(session.StateExchanging, session.StateRefreshing))
	require.Equal(t, "refreshing", session.StateRefreshing.String())
}
