package tokens

import (
	"time"

	"github.com/jrsteele09/go-auth-session/internal/utils"
	"github.com/rs/zerolog"
)

// Redacted is what a TokenSet prints as.
const Redacted = "[REDACTED: token_set]"

// TokenSet is the token endpoint response of the identity provider (RFC 6749 §5.1).
// Returned from both the authorization_code and refresh_token grants and
// consumed once into the session store.
type TokenSet struct {
	// AccessToken is the bearer credential for resource APIs.
	// Lifespan: expires_in seconds.
	AccessToken string `json:"access_token"`

	// IDToken carries the identity claims of the subject.
	// Same lifetime as the access token.
	IDToken string `json:"id_token"`

	// RefreshToken is only present when the provider issued or rotated one.
	// On refresh, absence means the previous refresh token stays valid.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// TokenType is "Bearer" for every provider we talk to.
	TokenType string `json:"token_type"`

	// ExpiresIn is the access and ID token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`

	// Scope is the space separated list of granted scopes, when the provider reports it.
	Scope *string `json:"scope,omitempty"`
}

// HasRefreshToken reports whether a non-empty refresh token was issued.
func (t TokenSet) HasRefreshToken() bool {
	return t.RefreshToken != nil && *t.RefreshToken != ""
}

// RefreshTokenValue returns the refresh token or "".
func (t TokenSet) RefreshTokenValue() string {
	return utils.Value(t.RefreshToken)
}

// Lifetime is ExpiresIn as a duration. Zero when the provider did not say.
func (t TokenSet) Lifetime() time.Duration {
	if t.ExpiresIn <= 0 {
		return 0
	}
	return time.Duration(t.ExpiresIn) * time.Second
}

// String will redact the tokens
func (t TokenSet) String() string {
	return Redacted
}

// MarshalZerologObject logs the shape of the set, never the token values.
func (t TokenSet) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("access_token", t.AccessToken != "").
		Bool("id_token", t.IDToken != "").
		Bool("refresh_token", t.HasRefreshToken()).
		Str("token_type", t.TokenType).
		Int("expires_in", t.ExpiresIn)
	if t.Scope != nil {
		e.Str("scope", *t.Scope)
	}
}
