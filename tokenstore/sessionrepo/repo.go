// Package sessionrepo persists server-side session records keyed by the
// opaque session id carried in the browser cookie.
package sessionrepo

import (
	"context"
	"time"
)

// Record is the server-side half of a browser session. A zero expiry means
// the token lives as long as the record.
type Record struct {
	AccessToken  string `json:"access_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`

	AccessExpiresAt  time.Time `json:"access_expires_at,omitzero"`
	IDExpiresAt      time.Time `json:"id_expires_at,omitzero"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Generation increases by one on every successful CompareAndSwap.
	Generation uint64 `json:"generation"`
}

// ExpiresAt is when the last token in the record lapses, zero if never.
func (r Record) ExpiresAt() time.Time {
	if r.hasTokenWithoutExpiry() {
		return time.Time{}
	}
	var latest time.Time
	for _, t := range []time.Time{r.AccessExpiresAt, r.IDExpiresAt, r.RefreshExpiresAt} {
		if t.After(latest) {
			latest = t
		}
	}
	return latest
}

func (r Record) hasTokenWithoutExpiry() bool {
	return (r.AccessToken != "" && r.AccessExpiresAt.IsZero()) ||
		(r.IDToken != "" && r.IDExpiresAt.IsZero()) ||
		(r.RefreshToken != "" && r.RefreshExpiresAt.IsZero())
}

// Expired reports whether every token in the record has lapsed at now.
func (r Record) Expired(now time.Time) bool {
	exp := r.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// Live returns r with lapsed tokens removed.
func (r Record) Live(now time.Time) Record {
	if !r.AccessExpiresAt.IsZero() && !now.Before(r.AccessExpiresAt) {
		r.AccessToken = ""
	}
	if !r.IDExpiresAt.IsZero() && !now.Before(r.IDExpiresAt) {
		r.IDToken = ""
	}
	if !r.RefreshExpiresAt.IsZero() && !now.Before(r.RefreshExpiresAt) {
		r.RefreshToken = ""
	}
	return r
}

// Repo stores session records.
//
// Get returns ErrSessionNotFound for unknown or expired ids.
// CompareAndSwap replaces the record only when its current generation equals
// expected (a missing record has generation 0) and stores next with
// Generation expected+1; a nil next deletes. A mismatch is ErrStaleSession.
type Repo interface {
	Get(ctx context.Context, id string) (Record, error)
	CompareAndSwap(ctx context.Context, id string, expected uint64, next *Record) error
	Delete(ctx context.Context, id string) error
}
