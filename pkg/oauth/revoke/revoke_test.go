package revoke

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brighthive/authserver/pkg/db"
	"github.com/brighthive/authserver/pkg/types"
)

func newTestStore(t *testing.T) *db.Store {
	t.Helper()

	store, err := db.New(filepath.Join(t.TempDir(), "revoke_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func seedClient(t *testing.T, store *db.Store, clientID, secret string) {
	t.Helper()

	require.NoError(t, store.CreateClient(&types.Client{
		ID:                      uuid.NewString(),
		ClientID:                clientID,
		ClientSecret:            secret,
		TokenEndpointAuthMethod: types.AuthMethodPost,
	}))
}

func revokeRequest(t *testing.T, handler http.Handler, values url.Values) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest("POST", "/oauth/revoke", strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestRevoke(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)
	seedClient(t, store, "owner", "owner-secret")

	require.NoError(t, store.SaveToken(&types.Token{
		ClientID:     "owner",
		AccessToken:  "revoke-access",
		RefreshToken: "revoke-refresh",
		ExpiresIn:    3600,
	}))

	w := revokeRequest(t, handler, url.Values{
		"client_id":     {"owner"},
		"client_secret": {"owner-secret"},
		"token":         {"revoke-access"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	token, err := store.GetTokenByAccess("revoke-access")
	require.NoError(t, err)
	assert.True(t, token.Revoked)
}

func TestRevokeByRefreshWithHint(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)
	seedClient(t, store, "owner", "owner-secret")

	require.NoError(t, store.SaveToken(&types.Token{
		ClientID:     "owner",
		AccessToken:  "hint-access",
		RefreshToken: "hint-refresh",
		ExpiresIn:    3600,
	}))

	w := revokeRequest(t, handler, url.Values{
		"client_id":       {"owner"},
		"client_secret":   {"owner-secret"},
		"token":           {"hint-refresh"},
		"token_type_hint": {"refresh_token"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	token, err := store.GetTokenByAccess("hint-access")
	require.NoError(t, err)
	assert.True(t, token.Revoked)
}

func TestRevokeUnknownTokenIsNoOpSuccess(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)
	seedClient(t, store, "owner", "owner-secret")

	w := revokeRequest(t, handler, url.Values{
		"client_id":     {"owner"},
		"client_secret": {"owner-secret"},
		"token":         {"never-issued"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRevokeIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)
	seedClient(t, store, "owner", "owner-secret")

	require.NoError(t, store.SaveToken(&types.Token{
		ClientID:    "owner",
		AccessToken: "twice-access",
		ExpiresIn:   3600,
	}))

	values := url.Values{
		"client_id":     {"owner"},
		"client_secret": {"owner-secret"},
		"token":         {"twice-access"},
	}
	assert.Equal(t, http.StatusOK, revokeRequest(t, handler, values).Code)
	assert.Equal(t, http.StatusOK, revokeRequest(t, handler, values).Code)

	token, err := store.GetTokenByAccess("twice-access")
	require.NoError(t, err)
	assert.True(t, token.Revoked)
}

func TestRevokeRequiresToken(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)
	seedClient(t, store, "owner", "owner-secret")

	w := revokeRequest(t, handler, url.Values{
		"client_id":     {"owner"},
		"client_secret": {"owner-secret"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestRevokeRequiresAuthentication(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)
	seedClient(t, store, "owner", "owner-secret")

	w := revokeRequest(t, handler, url.Values{
		"client_id":     {"owner"},
		"client_secret": {"wrong"},
		"token":         {"anything"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_client")
}

func TestRevokeWithWrongHintFallsBack(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)
	seedClient(t, store, "owner", "owner-secret")

	require.NoError(t, store.SaveToken(&types.Token{
		ClientID:     "owner",
		AccessToken:  "mislabeled-access",
		RefreshToken: "mislabeled-refresh",
		ExpiresIn:    3600,
	}))

	// The access token value with a refresh_token hint: the hinted
	// lookup misses, the fallback still finds the pair, and the owner
	// may revoke it.
	w := revokeRequest(t, handler, url.Values{
		"client_id":       {"owner"},
		"client_secret":   {"owner-secret"},
		"token":           {"mislabeled-access"},
		"token_type_hint": {"refresh_token"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	token, err := store.GetTokenByAccess("mislabeled-access")
	require.NoError(t, err)
	assert.True(t, token.Revoked)
}

func TestRevokeForeignTokenWithWrongHintLeavesItAlone(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)
	seedClient(t, store, "owner", "owner-secret")
	seedClient(t, store, "intruder", "intruder-secret")

	require.NoError(t, store.SaveToken(&types.Token{
		ClientID:     "owner",
		AccessToken:  "hinted-foreign-access",
		RefreshToken: "hinted-foreign-refresh",
		ExpiresIn:    3600,
	}))

	// A wrong hint must not route around the ownership check: the
	// hinted lookup misses, but the pair still belongs to someone else.
	w := revokeRequest(t, handler, url.Values{
		"client_id":       {"intruder"},
		"client_secret":   {"intruder-secret"},
		"token":           {"hinted-foreign-access"},
		"token_type_hint": {"refresh_token"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	token, err := store.GetTokenByAccess("hinted-foreign-access")
	require.NoError(t, err)
	assert.False(t, token.Revoked)
}

func TestRevokeForeignTokenLeavesItAlone(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)
	seedClient(t, store, "owner", "owner-secret")
	seedClient(t, store, "intruder", "intruder-secret")

	require.NoError(t, store.SaveToken(&types.Token{
		ClientID:    "owner",
		AccessToken: "foreign-access",
		ExpiresIn:   3600,
	}))

	w := revokeRequest(t, handler, url.Values{
		"client_id":     {"intruder"},
		"client_secret": {"intruder-secret"},
		"token":         {"foreign-access"},
	})
	// Still 200, but the token survives.
	require.Equal(t, http.StatusOK, w.Code)

	token, err := store.GetTokenByAccess("foreign-access")
	require.NoError(t, err)
	assert.False(t, token.Revoked)
}
