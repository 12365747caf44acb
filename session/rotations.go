package session

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/tokens"
)

// DefaultRotationGrace is how long a rotated refresh result is handed to
// requests still carrying the refresh token it replaced.
const DefaultRotationGrace = 30 * time.Second

// rotations remembers refresh results that rotated the refresh token,
// keyed by the digest of the token they redeemed. A request that read its
// session before the rotation landed in the browser reuses the result
// instead of presenting a token the provider has already retired.
type rotations struct {
	mu      sync.Mutex
	entries map[string]rotation
	grace   time.Duration
	now     func() time.Time
}

type rotation struct {
	ts      tokens.TokenSet
	expires time.Time
}

func newRotations(grace time.Duration) *rotations {
	return &rotations{
		entries: make(map[string]rotation),
		grace:   grace,
		now:     time.Now,
	}
}

func (r *rotations) get(key string) (tokens.TokenSet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || !r.now().Before(e.expires) {
		return tokens.TokenSet{}, false
	}
	return e.ts, true
}

// put records ts for the redeemed token key; expired entries are dropped on the way.
func (r *rotations) put(key string, ts tokens.TokenSet) {
	if r.grace <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, e := range r.entries {
		if !now.Before(e.expires) {
			delete(r.entries, k)
		}
	}
	r.entries[key] = rotation{ts: ts, expires: now.Add(r.grace)}
}
