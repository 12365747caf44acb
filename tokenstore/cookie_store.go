package tokenstore

import (
	"context"
	"net/http"
	"sync"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/tokens"
)

// CookieStoreOpener opens CookieStores.
type CookieStoreOpener struct {
	Options CookieOptions
}

// NewCookieStoreOpener returns an Opener for cookie-held sessions.
func NewCookieStoreOpener(opts CookieOptions) *CookieStoreOpener {
	return &CookieStoreOpener{Options: opts}
}

func (o *CookieStoreOpener) Open(w http.ResponseWriter, r *http.Request) Store {
	return &CookieStore{opts: o.Options, w: w, r: r}
}

// CookieStore keeps the tokens in the browser. Writes go to Set-Cookie
// headers and to an in-request view so later reads see them.
//
// The generation only guards writes within one request; across requests the
// browser keeps whichever Set-Cookie arrives last.
type CookieStore struct {
	opts CookieOptions
	w    http.ResponseWriter
	r    *http.Request

	mu     sync.Mutex
	loaded bool
	cur    Session
}

func (s *CookieStore) load() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.cur = Session{
		AccessToken:  cookieValue(s.r, CookieAccessToken),
		IDToken:      cookieValue(s.r, CookieIDToken),
		RefreshToken: cookieValue(s.r, CookieRefreshToken),
		Flag:         HasAuthenticatedFlag(s.r),
	}
	s.cur.Key = refreshKey(s.cur.RefreshToken)
}

func (s *CookieStore) Get(_ context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	return s.cur, nil
}

func (s *CookieStore) Put(_ context.Context, ts tokens.TokenSet) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	age := maxAge(ts.ExpiresIn)
	s.opts.set(s.w, s.r, CookieAccessToken, ts.AccessToken, age, true)
	s.opts.set(s.w, s.r, CookieIDToken, ts.IDToken, age, true)
	if ts.HasRefreshToken() {
		s.opts.set(s.w, s.r, CookieRefreshToken, ts.RefreshTokenValue(), s.opts.refreshMaxAge(), true)
	} else if s.cur.RefreshToken != "" {
		s.opts.remove(s.w, s.r, CookieRefreshToken, true)
	}
	s.opts.set(s.w, s.r, CookieAuthenticated, "true", age, false)

	s.cur = Session{
		AccessToken:  ts.AccessToken,
		IDToken:      ts.IDToken,
		RefreshToken: ts.RefreshTokenValue(),
		Flag:         true,
		Generation:   s.cur.Generation + 1,
	}
	s.cur.Key = refreshKey(s.cur.RefreshToken)
	return s.cur, nil
}

func (s *CookieStore) Rotate(_ context.Context, prev Session, ts tokens.TokenSet) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	if s.cur.Generation != prev.Generation {
		return s.cur, autherrors.ErrStaleSession
	}

	age := maxAge(ts.ExpiresIn)
	s.opts.set(s.w, s.r, CookieAccessToken, ts.AccessToken, age, true)
	s.opts.set(s.w, s.r, CookieIDToken, ts.IDToken, age, true)
	refreshToken := prev.RefreshToken
	if ts.HasRefreshToken() {
		refreshToken = ts.RefreshTokenValue()
		s.opts.set(s.w, s.r, CookieRefreshToken, refreshToken, s.opts.refreshMaxAge(), true)
	}
	s.opts.set(s.w, s.r, CookieAuthenticated, "true", age, false)

	// Key stays the same so callers coalesced on it keep matching.
	s.cur = Session{
		AccessToken:  ts.AccessToken,
		IDToken:      ts.IDToken,
		RefreshToken: refreshToken,
		Flag:         true,
		Generation:   s.cur.Generation + 1,
		Key:          s.cur.Key,
	}
	if s.cur.Key == "" {
		s.cur.Key = refreshKey(refreshToken)
	}
	return s.cur, nil
}

func (s *CookieStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	s.clear()
	return nil
}

func (s *CookieStore) clear() {
	s.opts.remove(s.w, s.r, CookieAccessToken, true)
	s.opts.remove(s.w, s.r, CookieIDToken, true)
	s.opts.remove(s.w, s.r, CookieRefreshToken, true)
	s.opts.remove(s.w, s.r, CookieAuthenticated, false)
	s.cur = Session{Generation: s.cur.Generation + 1}
}

func (s *CookieStore) Expire(_ context.Context, prev Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()

	if s.cur.Generation != prev.Generation {
		return nil
	}
	s.clear()
	return nil
}
