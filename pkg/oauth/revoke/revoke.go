// Package revoke implements the RFC 7009 revocation endpoint.
package revoke

import (
	"errors"
	"log"
	"net/http"

	"github.com/brighthive/authserver/pkg/db"
	"github.com/brighthive/authserver/pkg/handlerutils"
	"github.com/brighthive/authserver/pkg/oauth/clientauth"
	"github.com/brighthive/authserver/pkg/oauth/request"
	"github.com/brighthive/authserver/pkg/types"
)

// Store is the credential store surface the revocation endpoint needs.
type Store interface {
	clientauth.ClientGetter
	GetTokenByAccess(accessToken string) (*types.Token, error)
	GetTokenByRefresh(refreshToken string) (*types.Token, error)
	FindToken(value string) (*types.Token, error)
	RevokeToken(value string) error
}

type Handler struct {
	db Store
}

func NewHandler(db Store) http.Handler {
	return &Handler{
		db: db,
	}
}

func (p *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := request.New(r)
	if err != nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Invalid request body",
		})
		return
	}

	client, _, oerr := clientauth.Authenticate(p.db, req)
	if oerr != nil {
		handlerutils.JSON(w, oerr.Status, oerr)
		return
	}

	token := req.Value("token")
	if token == "" {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Token parameter is required",
		})
		return
	}

	// The hint narrows the lookup; a wrong hint falls back to both.
	hint := req.Value("token_type_hint")
	var tokenData *types.Token
	var lookupErr error
	switch hint {
	case "refresh_token":
		tokenData, lookupErr = p.db.GetTokenByRefresh(token)
	case "access_token":
		tokenData, lookupErr = p.db.GetTokenByAccess(token)
	default:
		hint = ""
		tokenData, lookupErr = p.db.FindToken(token)
	}
	if hint != "" && errors.Is(lookupErr, db.ErrNotFound) {
		tokenData, lookupErr = p.db.FindToken(token)
	}

	if lookupErr != nil {
		if errors.Is(lookupErr, db.ErrNotFound) {
			// Revoking a token that was never issued is a no-op success.
			w.WriteHeader(http.StatusOK)
			return
		}
		oerr := types.ServerError()
		handlerutils.JSON(w, oerr.Status, oerr)
		return
	}

	if tokenData.ClientID != client.ClientID {
		// Only the owning client may revoke. RFC 7009 still answers
		// 200 so the caller cannot probe other clients' tokens.
		log.Printf("Revocation attempt by wrong client: token belongs to %s, requested by %s",
			tokenData.ClientID, client.ClientID)
		w.WriteHeader(http.StatusOK)
		return
	}

	// Revoking twice is a no-op success.
	if err := p.db.RevokeToken(tokenData.AccessToken); err != nil && !errors.Is(err, db.ErrNotFound) {
		log.Printf("Failed to revoke token: %v", err)
	}

	w.WriteHeader(http.StatusOK)
}
