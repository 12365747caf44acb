package providerclient

import (
	"context"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-session/claims"
	"golang.org/x/oauth2"
)

// statusRecorder remembers the status of the last response it carried so
// failures reported by go-oidc as plain errors can still be classified.
type statusRecorder struct {
	base   http.RoundTripper
	status int
}

func (s *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.base.RoundTrip(req)
	if resp != nil {
		s.status = resp.StatusCode
	}
	return resp, err
}

func (c *Client) recordingClient() (*http.Client, *statusRecorder) {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	rec := &statusRecorder{base: base}
	return &http.Client{Transport: rec, Timeout: c.httpClient.Timeout}, rec
}

// FetchUserInfo returns the profile claims of the access token's subject.
// A 401 or 403 from the provider unwraps to ErrStaleToken.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (claims.View, error) {
	defer c.observe(OpUserInfo, time.Now())

	hc, rec := c.recordingClient()
	ctx = oidc.ClientContext(ctx, hc)

	ui, err := c.oidc.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		perr := &ProviderError{Op: OpUserInfo, StatusCode: rec.status, Code: CodeUserInfoFailed, Err: err}
		if rec.status == 0 {
			perr.Code = CodeServerError
		}
		c.log.Warn().Err(err).Int("status", rec.status).Msg("userinfo request failed")
		return nil, perr
	}

	var view claims.View
	if err := ui.Claims(&view); err != nil {
		return nil, &ProviderError{Op: OpUserInfo, StatusCode: rec.status, Code: CodeUserInfoFailed, Description: "userinfo response is not a claims object", Err: err}
	}
	return view, nil
}
