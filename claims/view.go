package claims

import "github.com/jrsteele09/go-auth-session/internal/utils"

// Standard OIDC claim names the UI reads.
const (
	ClaimSubject             = "sub"
	ClaimEmail               = "email"
	ClaimEmailVerified       = "email_verified"
	ClaimName                = "name"
	ClaimPreferredUsername   = "preferred_username"
	ClaimGivenName           = "given_name"
	ClaimFamilyName          = "family_name"
	ClaimPhoneNumber         = "phone_number"
	ClaimPhoneNumberVerified = "phone_number_verified"

	// ClaimGroups is Cognito's group membership list.
	ClaimGroups = "cognito:groups"
)

// View is the read-only projection of the signed-in user handed to the UI.
// Unknown claims pass through untouched. It never holds raw tokens.
type View map[string]any

func (v View) Subject() string           { return v.str(ClaimSubject) }
func (v View) Email() string             { return v.str(ClaimEmail) }
func (v View) EmailVerified() bool       { return v.flag(ClaimEmailVerified) }
func (v View) Name() string              { return v.str(ClaimName) }
func (v View) PreferredUsername() string { return v.str(ClaimPreferredUsername) }
func (v View) GivenName() string         { return v.str(ClaimGivenName) }
func (v View) FamilyName() string        { return v.str(ClaimFamilyName) }
func (v View) PhoneNumber() string       { return v.str(ClaimPhoneNumber) }
func (v View) PhoneNumberVerified() bool { return v.flag(ClaimPhoneNumberVerified) }

// Groups lists the user's groups; non-string entries are skipped.
func (v View) Groups() []string {
	switch g := v[ClaimGroups].(type) {
	case []string:
		return g
	case []any:
		return utils.ToStringSlice(g)
	}
	return nil
}

func (v View) str(key string) string {
	s, _ := v[key].(string)
	return s
}

// Cognito sends the verification flags as "true"/"false" strings from userinfo.
func (v View) flag(key string) bool {
	switch b := v[key].(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

// FromClaims copies decoded claims into a View.
func FromClaims(c Claims) View {
	if c == nil {
		return nil
	}
	v := make(View, len(c))
	for k, val := range c {
		v[k] = val
	}
	return v
}

// Merge returns base overlaid with overlay; overlay wins on overlapping keys.
// Neither input is modified.
func Merge(base, overlay View) View {
	out := make(View, len(base)+len(overlay))
	for k, val := range base {
		out[k] = val
	}
	for k, val := range overlay {
		out[k] = val
	}
	return out
}
