package tokenstore

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/jrsteele09/go-auth-session/tokenstore/sessionrepo"
)

// ServerStoreOpener opens ServerStores over a shared repository.
type ServerStoreOpener struct {
	repo    sessionrepo.Repo
	options CookieOptions
	now     func() time.Time
	newID   func() string
}

// NewServerStoreOpener returns an Opener for server-held sessions.
func NewServerStoreOpener(repo sessionrepo.Repo, opts CookieOptions) *ServerStoreOpener {
	return &ServerStoreOpener{
		repo:    repo,
		options: opts,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (o *ServerStoreOpener) Open(w http.ResponseWriter, r *http.Request) Store {
	return &ServerStore{opener: o, w: w, r: r}
}

// ServerStore keeps tokens server-side. The browser only holds an HttpOnly
// session id and the authenticated flag. Every write is a single
// compare-and-swap of the whole record.
type ServerStore struct {
	opener *ServerStoreOpener
	w      http.ResponseWriter
	r      *http.Request

	mu     sync.Mutex
	loaded bool
	id     string
	cur    Session
}

func (s *ServerStore) load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	s.id = cookieValue(s.r, CookieSessionID)
	if err := s.reload(ctx); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

func (s *ServerStore) reload(ctx context.Context) error {
	s.cur = Session{}
	if s.id == "" {
		return nil
	}
	rec, err := s.opener.repo.Get(ctx, s.id)
	if autherrors.Is(err, autherrors.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return autherrors.Wrapf(err, "[tokenstore ServerStore] loading session")
	}
	s.cur = sessionFromRecord(s.id, rec.Live(s.opener.now()))
	return nil
}

func sessionFromRecord(id string, rec sessionrepo.Record) Session {
	return Session{
		AccessToken:  rec.AccessToken,
		IDToken:      rec.IDToken,
		RefreshToken: rec.RefreshToken,
		Flag:         true,
		Generation:   rec.Generation,
		Key:          id,
	}
}

func (s *ServerStore) expiry(now time.Time, seconds int) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds) * time.Second)
}

func (s *ServerStore) writeCookies(rec sessionrepo.Record, expiresIn int) {
	opts := s.opener.options
	age := maxAge(expiresIn)
	idAge := age
	if rec.RefreshToken != "" {
		idAge = opts.refreshMaxAge()
	}
	opts.set(s.w, s.r, CookieSessionID, s.id, idAge, true)
	opts.set(s.w, s.r, CookieAuthenticated, "true", age, false)
}

func (s *ServerStore) Get(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return Session{}, err
	}
	return s.cur, nil
}

// Put mints a new session id for every sign-in and drops the old record.
func (s *ServerStore) Put(ctx context.Context, ts tokens.TokenSet) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return Session{}, err
	}

	now := s.opener.now()
	rec := sessionrepo.Record{
		AccessToken:     ts.AccessToken,
		IDToken:         ts.IDToken,
		RefreshToken:    ts.RefreshTokenValue(),
		AccessExpiresAt: s.expiry(now, ts.ExpiresIn),
		IDExpiresAt:     s.expiry(now, ts.ExpiresIn),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if rec.RefreshToken != "" {
		rec.RefreshExpiresAt = now.Add(time.Duration(s.opener.options.refreshMaxAge()) * time.Second)
	}

	oldID := s.id
	newID := s.opener.newID()
	if err := s.opener.repo.CompareAndSwap(ctx, newID, 0, &rec); err != nil {
		return Session{}, autherrors.Wrapf(err, "[tokenstore ServerStore] creating session")
	}
	if oldID != "" {
		if err := s.opener.repo.Delete(ctx, oldID); err != nil {
			return Session{}, autherrors.Wrapf(err, "[tokenstore ServerStore] dropping previous session")
		}
	}

	s.id = newID
	rec.Generation = 1
	s.writeCookies(rec, ts.ExpiresIn)
	s.cur = sessionFromRecord(newID, rec)
	return s.cur, nil
}

func (s *ServerStore) Rotate(ctx context.Context, prev Session, ts tokens.TokenSet) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return Session{}, err
	}
	if prev.Key == "" || prev.Key != s.id {
		return s.cur, autherrors.ErrStaleSession
	}

	current, err := s.opener.repo.Get(ctx, s.id)
	if err != nil {
		if autherrors.Is(err, autherrors.ErrSessionNotFound) {
			return Session{}, autherrors.ErrStaleSession
		}
		return Session{}, autherrors.Wrapf(err, "[tokenstore ServerStore] loading session")
	}
	if current.Generation != prev.Generation {
		if err := s.reload(ctx); err != nil {
			return Session{}, err
		}
		return s.cur, autherrors.ErrStaleSession
	}

	now := s.opener.now()
	next := current
	next.AccessToken = ts.AccessToken
	next.IDToken = ts.IDToken
	next.AccessExpiresAt = s.expiry(now, ts.ExpiresIn)
	next.IDExpiresAt = s.expiry(now, ts.ExpiresIn)
	next.UpdatedAt = now
	if ts.HasRefreshToken() {
		next.RefreshToken = ts.RefreshTokenValue()
		next.RefreshExpiresAt = now.Add(time.Duration(s.opener.options.refreshMaxAge()) * time.Second)
	}

	if err := s.opener.repo.CompareAndSwap(ctx, s.id, prev.Generation, &next); err != nil {
		if autherrors.Is(err, autherrors.ErrStaleSession) {
			if rerr := s.reload(ctx); rerr != nil {
				return Session{}, rerr
			}
			return s.cur, err
		}
		return Session{}, autherrors.Wrapf(err, "[tokenstore ServerStore] rotating session")
	}

	next.Generation = prev.Generation + 1
	s.writeCookies(next, ts.ExpiresIn)
	s.cur = sessionFromRecord(s.id, next)
	return s.cur, nil
}

func (s *ServerStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return err
	}

	s.removeCookies()
	if s.id != "" {
		if err := s.opener.repo.Delete(ctx, s.id); err != nil {
			return autherrors.Wrapf(err, "[tokenstore ServerStore] deleting session")
		}
	}
	s.id = ""
	s.cur = Session{}
	return nil
}

func (s *ServerStore) removeCookies() {
	s.opener.options.remove(s.w, s.r, CookieSessionID, true)
	s.opener.options.remove(s.w, s.r, CookieAuthenticated, false)
}

func (s *ServerStore) Expire(ctx context.Context, prev Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return err
	}
	if prev.Key == "" {
		// Nothing server-side; drop a dangling session id cookie.
		if s.cur.Key == "" {
			s.removeCookies()
		}
		return nil
	}
	if prev.Key != s.id {
		return nil
	}

	err := s.opener.repo.CompareAndSwap(ctx, s.id, prev.Generation, nil)
	if autherrors.Is(err, autherrors.ErrStaleSession) {
		return nil
	}
	if err != nil {
		return autherrors.Wrapf(err, "[tokenstore ServerStore] expiring session")
	}
	s.removeCookies()
	s.id = ""
	s.cur = Session{}
	return nil
}
