package providerclient

import (
	"context"
	"io"
	"net/http"
	"time"
)

// Introspect asks the provider whether accessToken is still accepted by
// presenting it to the user-info endpoint. A rejection is (false, nil);
// only a provider that cannot be reached is an error.
func (c *Client) Introspect(ctx context.Context, accessToken string) (bool, error) {
	defer c.observe(OpIntrospect, time.Now())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PathUserInfo, nil)
	if err != nil {
		return false, &ProviderError{Op: OpIntrospect, Code: CodeServerError, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Err(err).Msg("introspection request failed")
		return false, &ProviderError{Op: OpIntrospect, Code: CodeServerError, Description: "userinfo endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxTokenResponseBytes))

	return resp.StatusCode >= 200 && resp.StatusCode <= 299, nil
}
