// Package validate implements token validation: the POST
// /oauth/validate endpoint and the bearer middleware that protects
// downstream resources.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/brighthive/authserver/pkg/handlerutils"
	"github.com/brighthive/authserver/pkg/types"
)

// Store is the credential store surface token validation needs.
type Store interface {
	GetTokenByAccess(accessToken string) (*types.Token, error)
}

type Handler struct {
	db Store
}

// NewHandler creates the validation endpoint handler.
func NewHandler(db Store) http.Handler {
	return &Handler{
		db: db,
	}
}

// isValid reports whether the bearer token gates access: found, not
// revoked, not expired. Callers cannot distinguish which condition
// failed.
func (p *Handler) isValid(token string) bool {
	data, err := p.db.GetTokenByAccess(token)
	if err != nil {
		return false
	}
	return !data.Revoked && !data.IsAccessTokenExpired()
}

// ServeHTTP answers POST /oauth/validate. The response is always 200;
// an unknown token is a negative answer, not an error.
func (p *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body types.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handlerutils.JSON(w, http.StatusOK, types.ValidateResponse{Valid: false})
		return
	}

	handlerutils.JSON(w, http.StatusOK, types.ValidateResponse{Valid: p.isValid(body.Token)})
}

type tokenKey struct{}

// WithTokenValidation gates a protected resource on a bearer token.
// No route in this server uses it; it is the integration point for
// downstream resource handlers, which wrap themselves with it and read
// the validated token via GetToken.
func (p *Handler) WithTokenValidation(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
			unauthorized(w, "Invalid Authorization header format, expected 'Bearer TOKEN'")
			return
		}

		token, err := p.db.GetTokenByAccess(parts[1])
		if err != nil || token.Revoked || token.IsAccessTokenExpired() {
			unauthorized(w, "Invalid or expired token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), tokenKey{}, token)))
	}
}

// GetToken returns the validated token attached by WithTokenValidation.
func GetToken(r *http.Request) *types.Token {
	token, _ := r.Context().Value(tokenKey{}).(*types.Token)
	return token
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate",
		fmt.Sprintf(`Bearer error="invalid_token", error_description=%q`, description))
	handlerutils.JSON(w, http.StatusUnauthorized, types.OAuthError{
		Error:            "invalid_token",
		ErrorDescription: description,
	})
}
