// Package token implements the token endpoint. It normalizes the raw
// request, authenticates the client, dispatches to the grant handler,
// and optionally layers an enrichment JWT onto the response.
package token

import (
	"context"
	"net/http"

	"github.com/brighthive/authserver/pkg/handlerutils"
	"github.com/brighthive/authserver/pkg/oauth/clientauth"
	"github.com/brighthive/authserver/pkg/oauth/grants"
	"github.com/brighthive/authserver/pkg/oauth/request"
	"github.com/brighthive/authserver/pkg/types"
)

// Store is the credential store surface the token endpoint needs.
type Store interface {
	clientauth.ClientGetter
	grants.Store
}

// Enricher decorates a successful grant result, typically by attaching
// the signed permissions claim. It must be best-effort: a failing
// enricher leaves the result untouched and never fails issuance.
type Enricher interface {
	Enrich(ctx context.Context, result *grants.Result)
}

type Handler struct {
	db       Store
	registry *grants.Registry
	enricher Enricher
}

// NewHandler creates the token endpoint handler. enricher may be nil
// when claims enrichment is disabled.
func NewHandler(db Store, enricher Enricher) http.Handler {
	return &Handler{
		db:       db,
		registry: grants.NewRegistry(db),
		enricher: enricher,
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

	// Authentication failure takes precedence over request-shape
	// validation: an invalid client learns nothing about whether its
	// request would otherwise have been accepted.
	client, authMethod, oerr := clientauth.Authenticate(p.db, req)
	if oerr != nil {
		handlerutils.JSON(w, oerr.Status, oerr)
		return
	}

	result, oerr := p.registry.Handle(req.Value("grant_type"), authMethod, client, req)
	if oerr != nil {
		handlerutils.JSON(w, oerr.Status, oerr)
		return
	}

	if p.enricher != nil {
		p.enricher.Enrich(r.Context(), result)
	}

	handlerutils.JSON(w, http.StatusOK, result.Response)
}
