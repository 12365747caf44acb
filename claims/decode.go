// Package claims decodes JWT payloads for display purposes.
//
// Nothing in this package verifies a signature, issuer or audience. Decoded
// claims populate a View when the user-info endpoint is unavailable and feed
// expiry/scope display; they must never be used to make a trust decision.
package claims

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/internal/utils"
)

// Claims is a decoded, unverified JWT payload.
type Claims = jwtlib.MapClaims

var parser = jwtlib.NewParser(jwtlib.WithPaddingAllowed())

// Decode splits a compact JWT and parses its payload.
// It returns false for anything that is not three segments with a JSON object payload.
func Decode(raw string) (Claims, bool) {
	if raw == "" {
		return nil, false
	}

	claims := Claims{}
	_, _, err := parser.ParseUnverified(raw, claims)
	// An unknown alg only matters to verification; the payload is already decoded.
	if err != nil && !errors.Is(err, jwtlib.ErrTokenUnverifiable) {
		return nil, false
	}
	return claims, true
}

// TokenInfo is the display-only summary of an access token.
type TokenInfo struct {
	ExpiresAt *time.Time `json:"expiresAt"`
	IssuedAt  *time.Time `json:"issuedAt"`
	Scope     *string    `json:"scope"`
	TokenUse  *string    `json:"tokenUse"`
}

// InfoFromToken decodes raw and extracts exp, iat, scope and token_use.
func InfoFromToken(raw string) (*TokenInfo, bool) {
	c, ok := Decode(raw)
	if !ok {
		return nil, false
	}
	return InfoFromClaims(c), true
}

// InfoFromClaims extracts exp, iat, scope and token_use from decoded claims.
func InfoFromClaims(c Claims) *TokenInfo {
	info := &TokenInfo{}

	if exp, err := c.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = utils.Ptr(exp.UTC())
	}
	if iat, err := c.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = utils.Ptr(iat.UTC())
	}
	if scope, ok := c["scope"].(string); ok && scope != "" {
		info.Scope = &scope
	}
	if use, ok := c["token_use"].(string); ok && use != "" {
		info.TokenUse = &use
	}
	return info
}
