// Package clientauth validates a presented client identity and secret
// using one of the supported token endpoint authentication methods:
// client_secret_basic, client_secret_post, client_secret_json, and
// none for public clients.
package clientauth

import (
	"errors"

	"github.com/brighthive/authserver/pkg/db"
	"github.com/brighthive/authserver/pkg/oauth/request"
	"github.com/brighthive/authserver/pkg/types"
)

// ClientGetter looks up a client by its public identifier.
type ClientGetter interface {
	GetClient(clientID string) (*types.Client, error)
}

// DetectMethod returns the authentication method the request actually
// used, judged by where it carried credentials.
func DetectMethod(req *request.Request) string {
	if _, _, ok := req.BasicAuth(); ok {
		return types.AuthMethodBasic
	}
	if req.HasJSONBody() && req.JSONValue("client_secret") != "" {
		return types.AuthMethodJSON
	}
	if req.FormValue("client_secret") != "" {
		return types.AuthMethodPost
	}
	return types.AuthMethodNone
}

// credentials extracts the claimed client identifier and secret for
// the given method.
func credentials(req *request.Request, method string) (string, string) {
	switch method {
	case types.AuthMethodBasic:
		id, secret, _ := req.BasicAuth()
		return id, secret
	case types.AuthMethodJSON:
		return req.JSONValue("client_id"), req.JSONValue("client_secret")
	case types.AuthMethodPost:
		return req.FormValue("client_id"), req.FormValue("client_secret")
	default:
		return req.Value("client_id"), ""
	}
}

// Authenticate resolves and validates the requesting client. It returns
// the client and the authentication method used, or invalid_client.
// Every failure mode maps to the same error so the response does not
// reveal whether the client exists.
//
// A client declared with method "none" authenticates by identifier
// alone; any presented secret is never accepted as a credential. All
// other clients must present their secret via their declared method
// exactly.
func Authenticate(store ClientGetter, req *request.Request) (*types.Client, string, *types.Error) {
	method := DetectMethod(req)
	clientID, clientSecret := credentials(req, method)
	if clientID == "" {
		// The method detection keys on the secret; the identifier may
		// still ride elsewhere in the request.
		clientID = req.Value("client_id")
	}
	if clientID == "" {
		return nil, "", types.InvalidClient("Client ID is required")
	}

	client, err := store.GetClient(clientID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, "", types.InvalidClient("Client authentication failed")
		}
		return nil, "", types.ServerError()
	}

	if client.IsPublic() {
		return client, types.AuthMethodNone, nil
	}

	if !client.CheckTokenEndpointAuthMethod(method) {
		return nil, "", types.InvalidClient("Client authentication failed")
	}
	if !client.CheckClientSecret(clientSecret) {
		return nil, "", types.InvalidClient("Client authentication failed")
	}

	return client, method, nil
}
