package session

import (
	"context"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// Sign out modes, used as the metrics label.
const (
	SignOutLocal = "local"
	SignOutSSO   = "sso"
)

// SignOut clears the session. With sso it also returns the provider logout
// URL the browser should visit to end the provider session, coming back to
// logoutURI. The local session is cleared before anything else.
func (m *Manager) SignOut(ctx context.Context, store Store, sso bool, logoutURI string) (string, error) {
	prev, err := store.Get(ctx)
	if err != nil {
		return "", autherrors.Wrapf(err, "[session SignOut] reading session")
	}
	a := m.newAttempt("sign_out", stateOf(prev))

	if err := store.Clear(ctx); err != nil {
		return "", autherrors.Wrapf(err, "[session SignOut] clearing session")
	}
	if err := a.to(StateAnonymous); err != nil {
		return "", err
	}

	if !sso {
		m.metrics.IncSignOut(SignOutLocal)
		return "", nil
	}
	m.metrics.IncSignOut(SignOutSSO)
	return m.provider.LogoutURL(logoutURI), nil
}
