package dto

type TokenResponse struct {
	Token string `json:"token"`
	// TokenType is "login" for a completed authentication or "mfa_token"
	// when a second factor is still pending.
	TokenType string `json:"tokenType"`
	// MFAMethod names the pending second factor when TokenType is
	// "mfa_token".
	MFAMethod string `json:"mfaMethod,omitempty"`
	ExpiresIn int64  `json:"expiresIn,omitempty"`
}

type APITokenRequest struct {
	Name string `json:"name"`
}
