package types

// Config holds all configuration values for the authorization server.
type Config struct {
	Port           string
	Host           string
	DatabaseDSN    string
	SessionKey     string
	SigningKey     string
	LoginURL       string
	PermissionsURL string
}

// OAuthError represents an OAuth 2.0 error response body.
type OAuthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// TokenResponse is the token endpoint success body. JWT carries the
// optional claims-enrichment token layered on by the permissions
// decorator; it is absent when enrichment is disabled or skipped.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	JWT          string `json:"jwt,omitempty"`
}

// AuthRequest represents an incoming authorization request.
type AuthRequest struct {
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
}

// ValidateRequest is the body of POST /oauth/validate.
type ValidateRequest struct {
	Token string `json:"token"`
}

// ValidateResponse is the body returned by POST /oauth/validate. The
// endpoint always answers 200; validity is conveyed here only.
type ValidateResponse struct {
	Valid bool `json:"valid"`
}

// LoginRequest is the body of the session login endpoint standing in
// for the external login UI.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
