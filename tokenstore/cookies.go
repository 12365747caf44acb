package tokenstore

import (
	"net/http"
	"time"
)

// Cookie names. Only CookieAuthenticated is readable by browser script.
const (
	CookieAccessToken   = "access_token"
	CookieIDToken       = "id_token"
	CookieRefreshToken  = "refresh_token"
	CookieAuthenticated = "authenticated"
	CookieSessionID     = "session_id"
)

// DefaultRefreshMaxAge is the refresh cookie lifetime when none is configured.
const DefaultRefreshMaxAge = 30 * 24 * time.Hour

// CookieOptions controls the attributes of every cookie the stores write.
type CookieOptions struct {
	// Secure is used as-is when SecureFixed, otherwise it follows the request scheme.
	Secure        bool
	SecureFixed   bool
	RefreshMaxAge time.Duration
}

func (o CookieOptions) refreshMaxAge() int {
	if o.RefreshMaxAge <= 0 {
		return int(DefaultRefreshMaxAge.Seconds())
	}
	return int(o.RefreshMaxAge.Seconds())
}

func (o CookieOptions) secure(r *http.Request) bool {
	if o.SecureFixed {
		return o.Secure
	}
	return Scheme(r) == "https"
}

// Scheme is the scheme the browser used, honouring X-Forwarded-Proto.
func Scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

// maxAge converts a token lifetime in seconds to a cookie Max-Age.
// Unknown lifetimes become session cookies.
func maxAge(expiresIn int) int {
	if expiresIn <= 0 {
		return 0
	}
	return expiresIn
}

func (o CookieOptions) set(w http.ResponseWriter, r *http.Request, name, value string, age int, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   o.secure(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   age,
	})
}

func (o CookieOptions) remove(w http.ResponseWriter, r *http.Request, name string, httpOnly bool) {
	o.set(w, r, name, "", -1, httpOnly)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// HasAuthenticatedFlag reports whether the script readable flag cookie is set.
func HasAuthenticatedFlag(r *http.Request) bool {
	return cookieValue(r, CookieAuthenticated) == "true"
}
