package domain

// ============================================================
// Admin auth: Request / Response types
// ============================================================

// TokenRequest is the body for POST /v1/auth/token.
type TokenRequest struct {
	Password string `json:"password"`
}

// TokenResponse is the body for 200 from POST /v1/auth/token.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}
