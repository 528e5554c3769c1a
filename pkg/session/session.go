package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName is the session cookie set by the login endpoint and
	// consumed once by the authorization endpoint.
	CookieName = "authserver_session"

	// Lifetime bounds how long a login is usable before the user must
	// authenticate again.
	Lifetime = time.Hour
)

// Claims are the signed session cookie contents.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Manager signs and verifies the session cookie carrying the current
// authenticated user. The HTTP layer is the only consumer; request
// handlers receive the user as an explicit parameter.
type Manager struct {
	signingKey []byte
}

// NewManager creates a session manager with the given HMAC signing key.
func NewManager(signingKey []byte) *Manager {
	return &Manager{signingKey: signingKey}
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if r.Header.Get("X-Forwarded-Proto") == "https" {
		return true
	}
	return false
}

func cookieDomain(r *http.Request) string {
	host := r.Host
	if colonIndex := strings.Index(host, ":"); colonIndex != -1 {
		host = host[:colonIndex]
	}
	// For localhost, leave the domain unset so cookies work locally.
	if host == "localhost" || host == "127.0.0.1" {
		return ""
	}
	return host
}

// SetUser records the authenticated user in a signed session cookie.
func (m *Manager) SetUser(w http.ResponseWriter, r *http.Request, userID string) error {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(Lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return fmt.Errorf("failed to sign session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Domain:   cookieDomain(r),
		MaxAge:   int(Lifetime.Seconds()),
		Secure:   isSecureRequest(r),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// CurrentUser returns the user recorded in the session cookie, if the
// cookie is present, well-signed, and unexpired.
func (m *Manager) CurrentUser(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.signingKey, nil
	})
	if err != nil {
		return "", false
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}

// Clear expires the session cookie. The authorization endpoint calls
// it immediately before building the redirect, since the authorized
// user no longer needs the authserver UI.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Domain:   cookieDomain(r),
		MaxAge:   -1,
		Secure:   isSecureRequest(r),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
