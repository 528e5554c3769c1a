package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCookie(t *testing.T, m *Manager, userID string) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "http://localhost:8080/login", nil)
	require.NoError(t, m.SetUser(w, r, userID))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestSessionRoundtrip(t *testing.T) {
	m := NewManager([]byte("session-test-key"))
	cookie := setCookie(t, m, "user-1")

	assert.Equal(t, CookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, int(Lifetime.Seconds()), cookie.MaxAge)
	// Local development over plain HTTP.
	assert.False(t, cookie.Secure)
	assert.Empty(t, cookie.Domain)

	r := httptest.NewRequest("GET", "/oauth/authorize", nil)
	r.AddCookie(cookie)

	userID, ok := m.CurrentUser(r)
	require.True(t, ok)
	assert.Equal(t, "user-1", userID)
}

func TestNoCookie(t *testing.T) {
	m := NewManager([]byte("session-test-key"))

	_, ok := m.CurrentUser(httptest.NewRequest("GET", "/", nil))
	assert.False(t, ok)
}

func TestTamperedCookieRejected(t *testing.T) {
	m := NewManager([]byte("session-test-key"))
	forger := NewManager([]byte("attacker-key"))

	cookie := setCookie(t, forger, "user-1")
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookie)

	_, ok := m.CurrentUser(r)
	assert.False(t, ok)
}

func TestMangledCookieRejected(t *testing.T) {
	m := NewManager([]byte("session-test-key"))
	cookie := setCookie(t, m, "user-1")
	cookie.Value = cookie.Value + "x"

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookie)

	_, ok := m.CurrentUser(r)
	assert.False(t, ok)
}

func TestSecureAttributes(t *testing.T) {
	m := NewManager([]byte("session-test-key"))

	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "https://auth.example.com/login", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	require.NoError(t, m.SetUser(w, r, "user-1"))

	cookie := w.Result().Cookies()[0]
	assert.True(t, cookie.Secure)
	assert.Equal(t, "auth.example.com", cookie.Domain)
}

func TestClear(t *testing.T) {
	m := NewManager([]byte("session-test-key"))

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "http://localhost:8080/oauth/authorize", nil)
	m.Clear(w, r)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}
