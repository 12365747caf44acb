package session

import (
	"context"

	"github.com/jrsteele09/go-auth-session/claims"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// Status is the token-opaque view of a session that client code may see.
type Status struct {
	Authenticated   bool              `json:"authenticated"`
	HasAccessToken  bool              `json:"hasAccessToken"`
	HasIDToken      bool              `json:"hasIdToken"`
	HasRefreshToken bool              `json:"hasRefreshToken"`
	TokenInfo       *claims.TokenInfo `json:"tokenInfo"`
}

// Status reports token presence and, when the access token is a JWT, its
// expiry and scope. Decoding is for display only.
func (m *Manager) Status(ctx context.Context, store Store) (Status, error) {
	sess, err := store.Get(ctx)
	if err != nil {
		return Status{}, autherrors.Wrapf(err, "[session Status] reading session")
	}
	st := sess.Status()
	out := Status{
		Authenticated:   st.Authenticated,
		HasAccessToken:  st.HasAccessToken,
		HasIDToken:      st.HasIDToken,
		HasRefreshToken: st.HasRefreshToken,
	}
	if sess.AccessToken != "" {
		if info, ok := claims.InfoFromToken(sess.AccessToken); ok {
			out.TokenInfo = info
		}
	}
	return out, nil
}

// BearerToken hands the access token to the caller for API calls.
func (m *Manager) BearerToken(ctx context.Context, store Store) (string, error) {
	sess, err := store.Get(ctx)
	if err != nil {
		return "", autherrors.Wrapf(err, "[session BearerToken] reading session")
	}
	if sess.AccessToken == "" {
		return "", autherrors.ErrNotAuthenticated
	}
	return sess.AccessToken, nil
}

// Validate asks the provider whether the stored access token is still
// accepted. Returns ErrNotAuthenticated without a token and ErrStaleToken
// when the provider rejects it.
func (m *Manager) Validate(ctx context.Context, store Store) error {
	token, err := m.BearerToken(ctx, store)
	if err != nil {
		return err
	}
	valid, err := m.provider.Introspect(ctx, token)
	if err != nil {
		return autherrors.Wrapf(err, "[session Validate] introspecting token")
	}
	if !valid {
		return autherrors.ErrStaleToken
	}
	return nil
}

// Claims sources.
const (
	SourceUserInfo = "userinfo_endpoint"
	SourceIDToken  = "id_token"
)

// UserClaims is the profile of the signed-in user and where it came from.
type UserClaims struct {
	User   claims.View `json:"user"`
	Source string      `json:"source"`
}

// UserClaims fetches the profile from the user-info endpoint, layered over
// the ID token claims. If the endpoint fails the ID token claims are returned
// alone; if those cannot be decoded either, the user-info error is returned.
func (m *Manager) UserClaims(ctx context.Context, store Store) (UserClaims, error) {
	sess, err := store.Get(ctx)
	if err != nil {
		return UserClaims{}, autherrors.Wrapf(err, "[session UserClaims] reading session")
	}
	if sess.AccessToken == "" || sess.IDToken == "" {
		return UserClaims{}, autherrors.ErrNotAuthenticated
	}

	idClaims, idOK := claims.Decode(sess.IDToken)

	info, err := m.provider.FetchUserInfo(ctx, sess.AccessToken)
	if err == nil {
		var base claims.View
		if idOK {
			base = claims.FromClaims(idClaims)
		}
		return UserClaims{User: claims.Merge(base, info), Source: SourceUserInfo}, nil
	}

	m.log.Warn().Err(err).Msg("userinfo failed, falling back to id token claims")
	if idOK {
		return UserClaims{User: claims.FromClaims(idClaims), Source: SourceIDToken}, nil
	}
	return UserClaims{}, autherrors.Wrapf(err, "[session UserClaims] fetching user info")
}
