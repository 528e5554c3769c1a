// Package authorize implements the authorization endpoint: it drives
// the user-facing consent decision from an incoming authorization
// request to either an authorization code redirect or an error.
package authorize

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brighthive/authserver/pkg/db"
	"github.com/brighthive/authserver/pkg/encryption"
	"github.com/brighthive/authserver/pkg/handlerutils"
	"github.com/brighthive/authserver/pkg/types"
)

// Store is the credential store surface the authorization endpoint needs.
type Store interface {
	GetClient(clientID string) (*types.Client, error)
	GetUser(id string) (*types.User, error)
	CreateAuthCode(code *types.AuthorizationCode) error
	ClientAuthorized(userID, clientID string) (bool, error)
	SaveClientAuthorization(userID, clientID string) error
}

// Sessions is the one-shot session the external login page establishes.
// The HTTP layer reads it; handlers receive the user explicitly.
type Sessions interface {
	CurrentUser(r *http.Request) (string, bool)
	Clear(w http.ResponseWriter, r *http.Request)
}

type Handler struct {
	db       Store
	sessions Sessions
	loginURL string
}

// NewHandler creates the authorization endpoint handler. loginURL is
// where unauthenticated users are sent to establish a session.
func NewHandler(db Store, sessions Sessions, loginURL string) http.Handler {
	return &Handler{
		db:       db,
		sessions: sessions,
		loginURL: loginURL,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)
	if user == nil {
		h.redirectToLogin(w, r)
		return
	}

	authReq := parseAuthRequest(r)
	client, redirectURI, oerr := h.validateRequest(authReq)
	if oerr != nil {
		h.respondError(w, r, authReq, redirectURI, oerr)
		return
	}

	if r.Method == http.MethodGet {
		authorized, err := h.db.ClientAuthorized(user.ID, client.ClientID)
		if err != nil {
			h.respondError(w, r, authReq, redirectURI, types.ServerError())
			return
		}
		if authorized {
			// Prior consent on record: skip the consent UI entirely.
			h.finish(w, r, client, authReq, redirectURI, user)
			return
		}
		h.renderConsent(w, user, client, authReq, "")
		return
	}

	if err := r.ParseForm(); err != nil {
		h.respondError(w, r, authReq, redirectURI, types.InvalidRequest("Failed to parse form data"))
		return
	}
	if r.PostFormValue("consent") == "" {
		// Consent must be explicit; never proceed on a bare POST.
		h.renderConsent(w, user, client, authReq,
			"Please read and agree to the below statement to continue.")
		return
	}

	if err := h.db.SaveClientAuthorization(user.ID, client.ClientID); err != nil {
		h.respondError(w, r, authReq, redirectURI, types.ServerError())
		return
	}
	h.finish(w, r, client, authReq, redirectURI, user)
}

func (h *Handler) currentUser(r *http.Request) *types.User {
	userID, ok := h.sessions.CurrentUser(r)
	if !ok {
		return nil
	}
	user, err := h.db.GetUser(userID)
	if err != nil {
		return nil
	}
	return user
}

// redirectToLogin sends the user to the external login page, carrying
// the client identifier and the URL to return to after login.
func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := handlerutils.GetBaseURL(r) + r.URL.RequestURI()
	login, err := url.Parse(h.loginURL)
	if err != nil {
		handlerutils.JSON(w, http.StatusBadRequest, types.OAuthError{
			Error:            "invalid_request",
			ErrorDescription: "Login page is not configured",
		})
		return
	}
	q := login.Query()
	q.Set("client_id", r.URL.Query().Get("client_id"))
	q.Set("return_to", returnTo)
	login.RawQuery = q.Encode()
	http.Redirect(w, r, login.String(), http.StatusFound)
}

// parseAuthRequest reads the authorization request from the query
// string; consent POSTs carry the original request there too.
func parseAuthRequest(r *http.Request) *types.AuthRequest {
	q := r.URL.Query()
	return &types.AuthRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
}

// validateRequest checks the pending authorization request against the
// known client, redirect URIs, and response types. It returns the
// resolved redirect URI once it can be trusted, so later errors can be
// delivered by redirect.
func (h *Handler) validateRequest(authReq *types.AuthRequest) (*types.Client, string, *types.Error) {
	if authReq.ClientID == "" {
		return nil, "", types.InvalidRequest("Missing required parameter: client_id")
	}

	client, err := h.db.GetClient(authReq.ClientID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, "", types.InvalidClient("Client not found")
		}
		return nil, "", types.ServerError()
	}

	redirectURI := authReq.RedirectURI
	if redirectURI == "" {
		redirectURI = client.DefaultRedirectURI()
	}
	if redirectURI == "" || !client.CheckRedirectURI(redirectURI) {
		// An unregistered redirect target can never receive errors.
		return client, "", types.InvalidRequest("Invalid redirect URI")
	}

	if authReq.ResponseType != "code" || !client.CheckResponseType(authReq.ResponseType) {
		return client, redirectURI, types.UnsupportedResponseType()
	}

	if authReq.Scope == "" {
		authReq.Scope = client.Scope
	}

	return client, redirectURI, nil
}

// finish issues the authorization code and redirects back to the
// client. The session is cleared strictly before the redirect is
// constructed: the authorization endpoint is a one-shot use of it.
func (h *Handler) finish(w http.ResponseWriter, r *http.Request, client *types.Client, authReq *types.AuthRequest, redirectURI string, user *types.User) {
	code := &types.AuthorizationCode{
		Code:                encryption.GenerateRandomString(36),
		ClientID:            client.ClientID,
		RedirectURI:         authReq.RedirectURI,
		ResponseType:        authReq.ResponseType,
		Scope:               authReq.Scope,
		UserID:              user.ID,
		AuthTime:            time.Now().Unix(),
		CodeChallenge:       authReq.CodeChallenge,
		CodeChallengeMethod: authReq.CodeChallengeMethod,
	}
	if err := h.db.CreateAuthCode(code); err != nil {
		h.respondError(w, r, authReq, redirectURI, types.ServerError())
		return
	}

	h.sessions.Clear(w, r)

	target, _ := url.Parse(redirectURI)
	q := target.Query()
	q.Set("code", code.Code)
	if authReq.State != "" {
		q.Set("state", authReq.State)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// respondError delivers the error by redirect when a trusted redirect
// target is established, and inline otherwise.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, authReq *types.AuthRequest, redirectURI string, oerr *types.Error) {
	if redirectURI == "" {
		handlerutils.JSON(w, oerr.Status, oerr)
		return
	}

	target, err := url.Parse(redirectURI)
	if err != nil {
		handlerutils.JSON(w, oerr.Status, oerr)
		return
	}
	q := target.Query()
	q.Set("error", oerr.Code)
	q.Set("error_description", oerr.Description)
	if authReq.State != "" {
		q.Set("state", authReq.State)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *Handler) renderConsent(w http.ResponseWriter, user *types.User, client *types.Client, authReq *types.AuthRequest, errorMessage string) {
	data := consentPageData{
		User:   user,
		Client: client,
		Scopes: strings.Fields(authReq.Scope),
		Error:  errorMessage,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if errorMessage != "" {
		w.WriteHeader(http.StatusBadRequest)
	}
	if err := consentTemplate.Execute(w, data); err != nil {
		handlerutils.JSON(w, http.StatusInternalServerError, types.OAuthError{
			Error:            "server_error",
			ErrorDescription: "Failed to render consent page",
		})
	}
}

type consentPageData struct {
	User   *types.User
	Client *types.Client
	Scopes []string
	Error  string
}

// consentPageTemplate is the HTML template for the consent prompt. The
// form posts back to the same URL so the authorization request rides
// along in the query string.
const consentPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Authorize {{.Client.ClientName}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
            margin: 0;
            padding: 0;
            height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            background: white;
            color: #333;
        }
        .content {
            max-width: 480px;
            line-height: 1.6;
        }
        .error {
            color: #b00020;
        }
        button {
            padding: 8px 16px;
        }
    </style>
</head>
<body>
    <div class="content">
        <h1>Authorize {{.Client.ClientName}}</h1>
        {{if .Error}}<p class="error">{{.Error}}</p>{{end}}
        <p>{{.User.Firstname}} {{.User.Lastname}}, the application
        <strong>{{.Client.ClientName}}</strong> is requesting permission to
        act on your behalf{{if .Scopes}} with the following scopes:{{end}}</p>
        {{if .Scopes}}
        <ul>
            {{range .Scopes}}<li>{{.}}</li>{{end}}
        </ul>
        {{end}}
        <form method="post">
            <label>
                <input type="checkbox" name="consent" value="agreed">
                I have read and agree to the above statement.
            </label>
            <p><button type="submit">Authorize</button></p>
        </form>
    </div>
</body>
</html>`

var consentTemplate = template.Must(template.New("consent").Parse(consentPageTemplate))
