package types

import "net/http"

// Error is an OAuth 2.0 protocol error carrying the HTTP status to
// respond with. The status is never serialized; the wire shape matches
// OAuthError.
type Error struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

// InvalidClient indicates client authentication failure.
func InvalidClient(description string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "invalid_client", Description: description}
}

// InvalidGrant indicates an expired, consumed, or unknown code or token,
// or bad resource-owner credentials.
func InvalidGrant(description string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "invalid_grant", Description: description}
}

// InvalidRequest indicates a malformed request or missing required fields.
func InvalidRequest(description string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "invalid_request", Description: description}
}

// UnauthorizedClient indicates the grant type is not permitted for the
// authenticated client.
func UnauthorizedClient(description string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "unauthorized_client", Description: description}
}

// UnsupportedGrantType indicates an unknown grant_type value.
func UnsupportedGrantType() *Error {
	return &Error{
		Status:      http.StatusBadRequest,
		Code:        "unsupported_grant_type",
		Description: "The grant type is not supported by this authorization server",
	}
}

// UnsupportedResponseType indicates an unknown response_type value.
func UnsupportedResponseType() *Error {
	return &Error{
		Status:      http.StatusBadRequest,
		Code:        "unsupported_response_type",
		Description: "Only the 'code' response type is supported",
	}
}

// ServerError masks store-layer failures with a redacted message. Raw
// database error text must never reach the caller.
func ServerError() *Error {
	return &Error{Status: http.StatusBadRequest, Code: "invalid_request", Description: "The request could not be processed"}
}
