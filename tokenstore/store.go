// Package tokenstore holds the tokens of one browser session.
//
// Two backends exist: CookieStore keeps every token in HttpOnly cookies,
// ServerStore keeps them in a sessionrepo.Repo behind an opaque session id.
// Both expose the same request-scoped Store.
package tokenstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/jrsteele09/go-auth-session/tokens"
)

// Session is a snapshot of the stored tokens.
type Session struct {
	AccessToken  string
	IDToken      string
	RefreshToken string

	// Flag is the script readable authenticated marker.
	Flag bool

	// Generation identifies this snapshot for Rotate and Expire.
	Generation uint64

	// Key identifies the browser session for refresh coalescing; empty when
	// there is nothing to refresh.
	Key string
}

// Status is the presence view of a Session.
type Status struct {
	Authenticated   bool
	HasAccessToken  bool
	HasIDToken      bool
	HasRefreshToken bool
}

// Authenticated requires the flag and both the access and ID token.
func (s Session) Authenticated() bool {
	return s.Flag && s.AccessToken != "" && s.IDToken != ""
}

// Status reports which tokens are present.
func (s Session) Status() Status {
	return Status{
		Authenticated:   s.Authenticated(),
		HasAccessToken:  s.AccessToken != "",
		HasIDToken:      s.IDToken != "",
		HasRefreshToken: s.RefreshToken != "",
	}
}

// Store is the token store of one request.
//
// Put replaces the whole session with a fresh token set. Rotate applies a
// refresh result on top of prev, keeping the prior refresh token when the
// provider did not rotate it; it fails with ErrStaleSession if a newer
// session was written since prev was read. Clear removes everything.
// Expire clears only if prev is still the current session.
type Store interface {
	Get(ctx context.Context) (Session, error)
	Put(ctx context.Context, ts tokens.TokenSet) (Session, error)
	Rotate(ctx context.Context, prev Session, ts tokens.TokenSet) (Session, error)
	Clear(ctx context.Context) error
	Expire(ctx context.Context, prev Session) error
}

// Opener binds a Store to a request and its response.
type Opener interface {
	Open(w http.ResponseWriter, r *http.Request) Store
}

func refreshKey(refreshToken string) string {
	if refreshToken == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(refreshToken))
	return "rt:" + hex.EncodeToString(sum[:12])
}
