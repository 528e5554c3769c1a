// Package grants implements one handler per OAuth 2.0 grant type and
// the registry that dispatches token requests to them.
package grants

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"log"
	"slices"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/brighthive/authserver/pkg/db"
	"github.com/brighthive/authserver/pkg/encryption"
	"github.com/brighthive/authserver/pkg/oauth/request"
	"github.com/brighthive/authserver/pkg/types"
)

// Store is the credential store surface the grant handlers need.
type Store interface {
	ConsumeAuthCode(code, clientID string) (*types.AuthorizationCode, error)
	GetUser(id string) (*types.User, error)
	GetUserByUsername(username string) (*types.User, error)
	GetTokenByRefresh(refreshToken string) (*types.Token, error)
	SaveToken(token *types.Token) error
	RevokeToken(value string) error
}

// Access token lifetimes in seconds, per grant type.
var tokenLifetimes = map[string]int64{
	"authorization_code": 864000,
	"password":           864000,
	"client_credentials": 300,
	"refresh_token":      864000,
}

// Result carries the minted token pair, the response body, and the
// resource owner the token was issued for. User is nil for grants with
// no end user, such as client_credentials.
type Result struct {
	Token    *types.Token
	User     *types.User
	Response *types.TokenResponse
}

type grantFunc func(client *types.Client, req *request.Request) (*Result, *types.Error)

type grant struct {
	handle grantFunc

	// authMethods are the token endpoint authentication methods
	// eligible for this grant.
	authMethods []string
}

// Registry maps grant_type values to their handlers. Dispatch of an
// unknown grant type yields unsupported_grant_type.
type Registry struct {
	store  Store
	grants map[string]grant
}

// NewRegistry builds the grant dispatch table over the given store.
func NewRegistry(store Store) *Registry {
	r := &Registry{store: store}
	r.grants = map[string]grant{
		"authorization_code": {
			handle:      r.authorizationCode,
			authMethods: []string{types.AuthMethodBasic, types.AuthMethodPost, types.AuthMethodNone},
		},
		"client_credentials": {
			// Machine-to-machine only; credentials arrive in the JSON body.
			handle:      r.clientCredentials,
			authMethods: []string{types.AuthMethodJSON},
		},
		"password": {
			handle:      r.password,
			authMethods: []string{types.AuthMethodBasic, types.AuthMethodPost},
		},
		"refresh_token": {
			handle:      r.refreshToken,
			authMethods: []string{types.AuthMethodBasic, types.AuthMethodPost, types.AuthMethodNone},
		},
	}
	return r
}

// Handle dispatches a token request to the handler for grantType. The
// caller has already authenticated the client; authMethod is the method
// it authenticated with.
func (r *Registry) Handle(grantType, authMethod string, client *types.Client, req *request.Request) (*Result, *types.Error) {
	g, ok := r.grants[grantType]
	if !ok {
		return nil, types.UnsupportedGrantType()
	}
	if !slices.Contains(g.authMethods, authMethod) {
		return nil, types.InvalidClient("Client authentication method is not allowed for this grant type")
	}
	if !client.CheckGrantType(grantType) {
		return nil, types.UnauthorizedClient("The client is not authorized to use this grant type")
	}
	return g.handle(client, req)
}

// mint creates, persists, and serializes a token pair.
func (r *Registry) mint(grantType string, client *types.Client, user *types.User, scope string, withRefresh bool) (*Result, *types.Error) {
	token := &types.Token{
		ClientID:    client.ClientID,
		TokenType:   "Bearer",
		AccessToken: encryption.GenerateRandomString(32),
		Scope:       scope,
		IssuedAt:    time.Now().Unix(),
		ExpiresIn:   tokenLifetimes[grantType],
	}
	if user != nil {
		token.UserID = user.ID
	}
	if withRefresh {
		token.RefreshToken = encryption.GenerateRandomString(32)
	}

	if err := r.store.SaveToken(token); err != nil {
		return nil, types.ServerError()
	}

	return &Result{
		Token: token,
		User:  user,
		Response: &types.TokenResponse{
			AccessToken:  token.AccessToken,
			TokenType:    token.TokenType,
			ExpiresIn:    token.ExpiresIn,
			RefreshToken: token.RefreshToken,
			Scope:        token.Scope,
		},
	}, nil
}

// authorizationCode redeems a single-use authorization code for a token
// pair. The code is consumed before any further validation so that a
// later failure cannot leave it redeemable.
func (r *Registry) authorizationCode(client *types.Client, req *request.Request) (*Result, *types.Error) {
	code := req.Value("code")
	if code == "" {
		return nil, types.InvalidRequest("Missing required parameter: code")
	}

	item, err := r.store.ConsumeAuthCode(code, client.ClientID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, types.InvalidGrant("Authorization code is invalid or has expired")
		}
		return nil, types.ServerError()
	}

	if redirectURI := req.Value("redirect_uri"); item.RedirectURI != "" && redirectURI != item.RedirectURI {
		return nil, types.InvalidGrant("redirect_uri does not match the authorization request")
	}

	// Verify PKCE only when a challenge was bound at issuance time.
	if item.CodeChallenge != "" {
		if oerr := verifyCodeChallenge(item, req.Value("code_verifier")); oerr != nil {
			return nil, oerr
		}
	}

	user, err := r.store.GetUser(item.UserID)
	if err != nil {
		return nil, types.InvalidGrant("Authorization code is invalid or has expired")
	}

	return r.mint("authorization_code", client, user, item.Scope, true)
}

func verifyCodeChallenge(item *types.AuthorizationCode, verifier string) *types.Error {
	if verifier == "" {
		return types.InvalidRequest("Missing required parameter: code_verifier")
	}

	calculated := verifier
	if item.CodeChallengeMethod == "S256" {
		hash := sha256.Sum256([]byte(verifier))
		calculated = base64.RawURLEncoding.EncodeToString(hash[:])
	}
	if calculated != item.CodeChallenge {
		return types.InvalidGrant("Invalid code_verifier")
	}
	return nil
}

// clientCredentials issues a short-lived token against the client's own
// permitted scope. There is no end user and no refresh token.
func (r *Registry) clientCredentials(client *types.Client, req *request.Request) (*Result, *types.Error) {
	scope := req.Value("scope")
	if scope == "" {
		scope = client.Scope
	}
	return r.mint("client_credentials", client, nil, scope, false)
}

// password authenticates the resource owner directly. Legacy, internal
// use only.
func (r *Registry) password(client *types.Client, req *request.Request) (*Result, *types.Error) {
	username := req.Value("username")
	password := req.Value("password")
	if username == "" || password == "" {
		return nil, types.InvalidRequest("Missing required parameters: username, password")
	}

	user, err := r.store.GetUserByUsername(username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, types.InvalidGrant("Invalid username or password")
		}
		return nil, types.ServerError()
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, types.InvalidGrant("Invalid username or password")
	}

	scope := req.Value("scope")
	if scope == "" {
		scope = client.Scope
	}
	return r.mint("password", client, user, scope, true)
}

// refreshToken rotates a token pair. The prior pair is revoked so its
// refresh window cannot be extended by repeated rotation.
func (r *Registry) refreshToken(client *types.Client, req *request.Request) (*Result, *types.Error) {
	value := req.Value("refresh_token")
	if value == "" {
		return nil, types.InvalidRequest("Missing required parameter: refresh_token")
	}

	old, err := r.store.GetTokenByRefresh(value)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, types.InvalidGrant("Refresh token is invalid")
		}
		return nil, types.ServerError()
	}
	if old.Revoked || old.IsRefreshTokenExpired() {
		return nil, types.InvalidGrant("Refresh token is invalid")
	}
	if old.ClientID != client.ClientID {
		return nil, types.InvalidGrant("Refresh token does not belong to the requesting client")
	}

	user, err := r.store.GetUser(old.UserID)
	if err != nil {
		return nil, types.InvalidGrant("Refresh token is invalid")
	}

	result, oerr := r.mint("refresh_token", client, user, old.Scope, true)
	if oerr != nil {
		return nil, oerr
	}

	// The old pair is superseded. If revocation fails the new pair is
	// already persisted and the old one still ages out of its window.
	if err := r.store.RevokeToken(old.AccessToken); err != nil {
		log.Printf("Failed to revoke superseded token: %v", err)
	}
	return result, nil
}
