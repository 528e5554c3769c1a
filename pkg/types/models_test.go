package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenExpiry(t *testing.T) {
	now := time.Now().Unix()

	t.Run("FreshToken", func(t *testing.T) {
		token := &Token{IssuedAt: now, ExpiresIn: 864000}
		assert.False(t, token.IsAccessTokenExpired())
		assert.False(t, token.IsRefreshTokenExpired())
	})

	t.Run("ExpiredAccessToken", func(t *testing.T) {
		token := &Token{IssuedAt: now - 865000, ExpiresIn: 864000}
		assert.True(t, token.IsAccessTokenExpired())
	})

	t.Run("BoundaryIsExpired", func(t *testing.T) {
		// Exact equality resolves as expired.
		token := &Token{IssuedAt: now - 3600, ExpiresIn: 3600}
		assert.True(t, token.IsAccessTokenExpired())
	})

	t.Run("RefreshWindowIsDouble", func(t *testing.T) {
		token := &Token{IssuedAt: now - 5000, ExpiresIn: 3600}
		assert.True(t, token.IsAccessTokenExpired())
		assert.False(t, token.IsRefreshTokenExpired())

		token = &Token{IssuedAt: now - 7200, ExpiresIn: 3600}
		assert.True(t, token.IsRefreshTokenExpired())
	})
}

func TestAuthCodeExpiry(t *testing.T) {
	now := time.Now().Unix()

	code := &AuthorizationCode{AuthTime: now}
	assert.False(t, code.IsExpired())

	code = &AuthorizationCode{AuthTime: now - AuthCodeLifetime}
	assert.True(t, code.IsExpired())
}

func TestClientSecretCheck(t *testing.T) {
	client := &Client{ClientSecret: "s3cret"}

	assert.True(t, client.CheckClientSecret("s3cret"))
	assert.False(t, client.CheckClientSecret("S3CRET"))
	assert.False(t, client.CheckClientSecret(""))

	// A client with no stored secret rejects everything presented.
	disabled := &Client{}
	assert.False(t, disabled.CheckClientSecret("s3cret"))
	assert.False(t, disabled.CheckClientSecret(""))
}

func TestClientChecks(t *testing.T) {
	client := &Client{
		TokenEndpointAuthMethod: AuthMethodPost,
		GrantTypes:              StringSlice{"authorization_code", "refresh_token"},
		ResponseTypes:           StringSlice{"code"},
		RedirectUris:            StringSlice{"https://app.example.com/callback", "https://app.example.com/alt"},
	}

	assert.True(t, client.CheckTokenEndpointAuthMethod(AuthMethodPost))
	assert.False(t, client.CheckTokenEndpointAuthMethod(AuthMethodBasic))
	assert.False(t, client.IsPublic())

	assert.True(t, client.CheckGrantType("authorization_code"))
	assert.False(t, client.CheckGrantType("client_credentials"))

	assert.True(t, client.CheckResponseType("code"))
	assert.False(t, client.CheckResponseType("token"))

	assert.True(t, client.CheckRedirectURI("https://app.example.com/alt"))
	assert.False(t, client.CheckRedirectURI("https://evil.example.com/callback"))
	assert.Equal(t, "https://app.example.com/callback", client.DefaultRedirectURI())

	public := &Client{TokenEndpointAuthMethod: AuthMethodNone}
	assert.True(t, public.IsPublic())
	assert.Equal(t, "", public.DefaultRedirectURI())
}
