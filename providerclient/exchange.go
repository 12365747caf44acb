package providerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-session/tokens"
	"github.com/tidwall/gjson"
)

const maxTokenResponseBytes = 1 << 20

// ExchangeCode redeems an authorization code (authorization_code grant).
// The redirect_uri sent must equal the one used on the authorize leg.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (tokens.TokenSet, error) {
	if redirectURI == "" {
		redirectURI = c.cfg.RedirectURI
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	ts, err := c.postToken(ctx, OpExchangeCode, form)
	if err != nil {
		return tokens.TokenSet{}, err
	}
	if !ts.HasRefreshToken() {
		c.log.Warn().Msg("code exchange returned no refresh token")
	}
	return ts, nil
}

// Refresh redeems a refresh token (refresh_token grant). The returned set
// has a nil RefreshToken when the provider did not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (tokens.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.postToken(ctx, OpRefresh, form)
}

// postToken performs a token endpoint call with HTTP Basic client
// authentication; client_id is repeated in the body for providers that
// require it there. A body carrying "error" is a failure whatever the status.
func (c *Client) postToken(ctx context.Context, op string, form url.Values) (tokens.TokenSet, error) {
	defer c.observe(op, time.Now())

	form.Set("client_id", c.cfg.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauth.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokens.TokenSet{}, &ProviderError{Op: op, Code: CodeServerError, Description: "building token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Err(err).Str("op", op).Msg("token endpoint unreachable")
		return tokens.TokenSet{}, &ProviderError{Op: op, Code: CodeServerError, Description: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return tokens.TokenSet{}, &ProviderError{Op: op, StatusCode: resp.StatusCode, Code: CodeServerError, Description: "reading token response", Err: err}
	}

	if gjson.ValidBytes(body) {
		if e := gjson.GetBytes(body, "error"); e.Exists() {
			perr := &ProviderError{
				Op:          op,
				StatusCode:  resp.StatusCode,
				Code:        e.String(),
				Description: gjson.GetBytes(body, "error_description").String(),
			}
			c.log.Warn().Str("op", op).Int("status", resp.StatusCode).Str("error", perr.Code).Msg("token endpoint returned an error")
			return tokens.TokenSet{}, perr
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("token endpoint returned a non-success status")
		return tokens.TokenSet{}, &ProviderError{
			Op:          op,
			StatusCode:  resp.StatusCode,
			Code:        failureCode(op),
			Description: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	var ts tokens.TokenSet
	if err := json.Unmarshal(body, &ts); err != nil {
		return tokens.TokenSet{}, &ProviderError{Op: op, StatusCode: resp.StatusCode, Code: CodeInvalidTokenResponse, Description: "token response is not a token set", Err: err}
	}
	if ts.AccessToken == "" || ts.IDToken == "" {
		return tokens.TokenSet{}, &ProviderError{Op: op, StatusCode: resp.StatusCode, Code: CodeInvalidTokenResponse, Description: "token response lacks access_token or id_token"}
	}
	if ts.RefreshToken != nil && *ts.RefreshToken == "" {
		ts.RefreshToken = nil
	}

	c.log.Debug().Str("op", op).Object("tokens", ts).Msg("token endpoint call succeeded")
	return ts, nil
}

func failureCode(op string) string {
	if op == OpRefresh {
		return CodeTokenRefreshFailed
	}
	return CodeTokenExchangeFailed
}
