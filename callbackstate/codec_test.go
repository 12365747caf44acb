package callbackstate_test

import (
	"encoding/base64"
	"testing"

	"github.com/jrsteele09/go-auth-session/callbackstate"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, returnTo := range []string{"/dashboard", "/reports?id=7&tab=a+b", "/", ""} {
		s := callbackstate.New(returnTo)
		require.NotEmpty(t, s.Nonce)

		decoded, ok := callbackstate.Decode(callbackstate.Encode(s))
		require.True(t, ok)
		require.Equal(t, returnTo, decoded.ReturnTo)
		require.Equal(t, s.Nonce, decoded.Nonce)
		require.True(t, decoded.Issued)
	}
}

func TestNew_NoncesDiffer(t *testing.T) {
	require.NotEqual(t, callbackstate.New("/").Nonce, callbackstate.New("/").Nonce)
}

func TestDecode_AcceptsBrowserEncodings(t *testing.T) {
	payload := []byte(`{"returnTo":"/settings","nonce":"k3j2h"}`)
	for name, enc := range map[string]*base64.Encoding{
		"std":     base64.StdEncoding,
		"raw std": base64.RawStdEncoding,
		"url":     base64.URLEncoding,
		"raw url": base64.RawURLEncoding,
	} {
		t.Run(name, func(t *testing.T) {
			s, ok := callbackstate.Decode(enc.EncodeToString(payload))
			require.True(t, ok)
			require.Equal(t, "/settings", s.ReturnTo)
			require.Equal(t, "k3j2h", s.Nonce)
			require.False(t, s.Issued)
		})
	}
}

func TestDecode_GarbageYieldsNoState(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"%%%not-base64%%%",
		base64.StdEncoding.EncodeToString([]byte("not json")),
		base64.StdEncoding.EncodeToString([]byte(`["array"]`)),
		base64.StdEncoding.EncodeToString([]byte(`{"returnTo":12}`)),
		base64.StdEncoding.EncodeToString([]byte(`null`)),
		base64.StdEncoding.EncodeToString([]byte(`{}`)),
		base64.StdEncoding.EncodeToString([]byte(`{"returnTo":"/settings","nonce":""}`)),
		string([]byte{0xff, 0xfe, 0x00}),
	} {
		s, ok := callbackstate.Decode(raw)
		require.False(t, ok, raw)
		require.Equal(t, callbackstate.State{}, s)
	}
}

func TestSafeReturnPath(t *testing.T) {
	tests := map[string]string{
		"/dashboard":              "/dashboard",
		"/a/b?c=d#e":              "/a/b?c=d#e",
		"":                        "/fallback",
		"dashboard":               "/fallback",
		"//evil.example.com/path": "/fallback",
		"https://evil.example":    "/fallback",
		`/\evil.example`:          "/fallback",
		"javascript:alert(1)":     "/fallback",
	}
	for in, want := range tests {
		require.Equal(t, want, callbackstate.SafeReturnPath(in, "/fallback"), in)
	}
}
