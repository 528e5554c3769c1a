package validate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brighthive/authserver/pkg/db"
	"github.com/brighthive/authserver/pkg/types"
)

func newTestStore(t *testing.T) *db.Store {
	t.Helper()

	store, err := db.New(filepath.Join(t.TempDir(), "validate_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func validateToken(t *testing.T, handler http.Handler, token string) (int, types.ValidateResponse) {
	t.Helper()

	r := httptest.NewRequest("POST", "/oauth/validate", strings.NewReader(`{"token":"`+token+`"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	var resp types.ValidateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestValidateEndpoint(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)

	require.NoError(t, store.SaveToken(&types.Token{
		ClientID: "c", AccessToken: "live-token", ExpiresIn: 3600,
	}))
	require.NoError(t, store.SaveToken(&types.Token{
		ClientID: "c", AccessToken: "expired-token", ExpiresIn: 3600,
		IssuedAt: time.Now().Unix() - 3600,
	}))
	require.NoError(t, store.SaveToken(&types.Token{
		ClientID: "c", AccessToken: "revoked-token", ExpiresIn: 3600,
	}))
	require.NoError(t, store.RevokeToken("revoked-token"))

	t.Run("Valid", func(t *testing.T) {
		code, resp := validateToken(t, handler, "live-token")
		assert.Equal(t, http.StatusOK, code)
		assert.True(t, resp.Valid)
	})

	// Absent, expired, and revoked all answer the same way.
	for _, token := range []string{"never-issued", "expired-token", "revoked-token"} {
		t.Run(token, func(t *testing.T) {
			code, resp := validateToken(t, handler, token)
			assert.Equal(t, http.StatusOK, code)
			assert.False(t, resp.Valid)
		})
	}

	t.Run("MalformedBody", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/oauth/validate", strings.NewReader(`{`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp types.ValidateResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Valid)
	})
}

func TestRevocationFlipsValidation(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store)

	require.NoError(t, store.SaveToken(&types.Token{
		ClientID: "c", AccessToken: "flip-token", ExpiresIn: 3600,
	}))

	_, resp := validateToken(t, handler, "flip-token")
	assert.True(t, resp.Valid)

	require.NoError(t, store.RevokeToken("flip-token"))
	_, resp = validateToken(t, handler, "flip-token")
	assert.False(t, resp.Valid)

	// Idempotent: revoking again changes nothing.
	require.NoError(t, store.RevokeToken("flip-token"))
	_, resp = validateToken(t, handler, "flip-token")
	assert.False(t, resp.Valid)
}

func TestWithTokenValidation(t *testing.T) {
	store := newTestStore(t)
	handler := NewHandler(store).(*Handler)

	require.NoError(t, store.SaveToken(&types.Token{
		ClientID: "c", UserID: "u", AccessToken: "bearer-token", ExpiresIn: 3600,
	}))

	protected := handler.WithTokenValidation(func(w http.ResponseWriter, r *http.Request) {
		token := GetToken(r)
		require.NotNil(t, token)
		assert.Equal(t, "u", token.UserID)
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("Authorized", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/protected", nil)
		r.Header.Set("Authorization", "Bearer bearer-token")
		w := httptest.NewRecorder()
		protected(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("MissingHeader", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/protected", nil)
		w := httptest.NewRecorder()
		protected(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Header().Get("WWW-Authenticate"), "invalid_token")
	})

	t.Run("UnknownToken", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/protected", nil)
		r.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		protected(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
