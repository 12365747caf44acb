// Package callbackstate encodes the OAuth2 state parameter.
//
// The state carries the path to return to after sign-in and a nonce that
// binds the provider redirect back to the browser that started it. It is
// opaque to the provider and consumed once by the redirect handler.
package callbackstate

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// State is the decoded payload of the state parameter.
type State struct {
	ReturnTo string `json:"returnTo"`
	Nonce    string `json:"nonce"`

	// Issued marks a state minted by this service. Its nonce must come back
	// in the browser's state cookie.
	Issued bool `json:"issued,omitempty"`
}

// New creates an issued State for returnTo with a fresh random nonce.
func New(returnTo string) State {
	return State{
		ReturnTo: returnTo,
		Nonce:    uuid.NewString(),
		Issued:   true,
	}
}

// Encode serialises s as padded standard base64 JSON, the same shape
// browser code produces with btoa(JSON.stringify(...)).
func Encode(s State) string {
	b, _ := json.Marshal(s)
	return base64.StdEncoding.EncodeToString(b)
}

var encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// Decode parses an encoded state. Anything that is not base64 JSON
// carrying a nonce yields false; it never panics on hostile input.
func Decode(raw string) (State, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return State{}, false
	}

	for _, enc := range encodings {
		b, err := enc.DecodeString(raw)
		if err != nil {
			continue
		}
		var s State
		if err := json.Unmarshal(b, &s); err != nil || s.Nonce == "" {
			return State{}, false
		}
		return s, true
	}
	return State{}, false
}

// SafeReturnPath returns p when it is a local absolute path, otherwise fallback.
// Scheme-relative ("//evil.example"), absolute URLs and backslash tricks are rejected
// so the state parameter cannot turn the callback into an open redirect.
func SafeReturnPath(p, fallback string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, `\`) {
		return fallback
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return p
}
