package token

import (
	"context"
	"log"

	"github.com/brighthive/authserver/pkg/claims"
	"github.com/brighthive/authserver/pkg/oauth/grants"
	"github.com/brighthive/authserver/pkg/permissions"
)

// ClaimsEnricher layers a signed permissions claim onto token
// responses. The core grant path emits the bare token; this decorator
// keeps the network dependency out of it.
type ClaimsEnricher struct {
	permissions *permissions.Client
	signer      *claims.Signer
}

// NewClaimsEnricher builds the enrichment decorator.
func NewClaimsEnricher(permissionsClient *permissions.Client, signer *claims.Signer) *ClaimsEnricher {
	return &ClaimsEnricher{
		permissions: permissionsClient,
		signer:      signer,
	}
}

// Enrich attaches the jwt field derived from the issued access token,
// the user's person identifier, and the permissions lookup. Upstream
// failure falls back to an empty permissions set; enrichment never
// fails token issuance.
func (e *ClaimsEnricher) Enrich(ctx context.Context, result *grants.Result) {
	if result.User == nil || result.User.PersonID == "" {
		return
	}

	perms, err := e.permissions.UserPermissions(ctx, result.User.PersonID)
	if err != nil {
		log.Printf("Warning: permissions lookup failed for person %s: %v", result.User.PersonID, err)
		perms = map[string]any{}
	}

	custom := map[string]any{
		"brighthive-access-token": result.Response.AccessToken,
	}
	for k, v := range perms {
		custom[k] = v
	}

	signed, err := e.signer.Sign(custom)
	if err != nil {
		log.Printf("Warning: failed to sign enrichment claims: %v", err)
		return
	}
	result.Response.JWT = signed
}
