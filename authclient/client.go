// Package authclient talks to the session service from the client side and
// keeps a framework-agnostic view of whether the user is signed in.
package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/tokenstore"
	"github.com/tidwall/gjson"
)

// Auth API paths, relative to the service base URL.
const (
	PathLogin   = "/api/auth/login"
	PathLogout  = "/api/auth/logout"
	PathRefresh = "/api/auth/refresh"
	PathStatus  = "/api/auth/status"
	PathToken   = "/api/auth/token"
	PathUser    = "/api/auth/user"
)

// ErrUnauthorized is returned when the service answers 401.
var ErrUnauthorized = autherrors.New("unauthorized")

const maxBodyBytes = 1 << 20

// APIError is a non-2xx answer from the session service.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("auth api: status %d", e.StatusCode)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client calls the session service with a cookie jar standing in for the browser.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient uses hc for every call. A jar is added when hc has none.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, autherrors.Wrapf(autherrors.ErrConfiguration, "[authclient NewClient] invalid base URL %q", baseURL)
	}
	c := &Client{baseURL: u, http: cleanhttp.DefaultPooledClient()}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, autherrors.Wrapf(err, "[authclient NewClient] creating cookie jar")
		}
		c.http.Jar = jar
	}
	return c, nil
}

// HasAuthenticatedFlag reads the script visible flag cookie. It says
// nothing about whether the tokens behind it are still accepted.
func (c *Client) HasAuthenticatedFlag() bool {
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		if ck.Name == tokenstore.CookieAuthenticated {
			return ck.Value == "true"
		}
	}
	return false
}

// LoginURL is where to navigate to start a sign-in that comes back to returnTo.
func (c *Client) LoginURL(returnTo string) string {
	u := c.endpoint(PathLogin)
	if returnTo != "" {
		u += "?" + url.Values{"returnTo": {returnTo}}.Encode()
	}
	return u
}

func (c *Client) Status(ctx context.Context) (session.Status, error) {
	var st session.Status
	err := c.call(ctx, http.MethodGet, PathStatus, &st)
	return st, err
}

func (c *Client) User(ctx context.Context) (session.UserClaims, error) {
	var u session.UserClaims
	err := c.call(ctx, http.MethodGet, PathUser, &u)
	return u, err
}

func (c *Client) Token(ctx context.Context) (string, error) {
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.call(ctx, http.MethodGet, PathToken, &body); err != nil {
		return "", err
	}
	return body.AccessToken, nil
}

// Validate asks the service to check the token with the provider.
// A rejected or missing token is (false, nil).
func (c *Client) Validate(ctx context.Context) (bool, error) {
	var body struct {
		Valid bool `json:"valid"`
	}
	err := c.call(ctx, http.MethodPost, PathToken, &body)
	if autherrors.Is(err, ErrUnauthorized) {
		return false, nil
	}
	return body.Valid, err
}

// Refresh rotates the stored tokens and returns the new lifetime in seconds.
// On ErrUnauthorized the service has already cleared the session.
func (c *Client) Refresh(ctx context.Context) (int, error) {
	var body struct {
		ExpiresIn int `json:"expires_in"`
	}
	err := c.call(ctx, http.MethodPost, PathRefresh, &body)
	return body.ExpiresIn, err
}

// SignOut clears the session. With sso the provider logout URL to navigate to is returned.
func (c *Client) SignOut(ctx context.Context, sso bool) (string, error) {
	path := PathLogout
	if sso {
		path += "?sso=true"
	}
	var body struct {
		Redirect string `json:"redirect"`
	}
	err := c.call(ctx, http.MethodPost, path, &body)
	return body.Redirect, err
}

// Do sends req with the client's transport and cookies.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) call(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), nil)
	if err != nil {
		return autherrors.Wrapf(err, "[authclient] building %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return autherrors.Wrapf(err, "[authclient] %s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return autherrors.Wrapf(err, "[authclient] reading %s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        gjson.GetBytes(raw, "error").String(),
			Description: gjson.GetBytes(raw, "error_description").String(),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return autherrors.Wrapf(err, "[authclient] decoding %s %s", method, path)
	}
	return nil
}
