package server

import (
	"encoding/json"
	"net/http"
)

// Response messages
const (
	msgInternalError     = "Internal server error"
	msgNotAuthenticated  = "Not authenticated"
	msgLoggedOut         = "Logged out successfully"
	msgNoRefreshToken    = "No refresh token available"
	msgRefreshFailed     = "Failed to refresh tokens"
	msgNoToken           = "No token found"
	msgTokenValid        = "Token is valid"
	msgTokenInvalid      = "Token is invalid or expired"
	msgUserInfoFailed    = "Failed to fetch user information"
	msgExchangeFailed    = "Failed to exchange authorization code for tokens"
	codeServerError      = "server_error"
	codeTokenRefreshFail = "token_refresh_failed"
)

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type signOutResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

type refreshResponse struct {
	Success   bool `json:"success"`
	ExpiresIn int  `json:"expires_in"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
