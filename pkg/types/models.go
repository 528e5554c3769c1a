package types

import (
	"crypto/subtle"
	"slices"
	"time"
)

// Token endpoint authentication methods.
const (
	AuthMethodNone  = "none"
	AuthMethodBasic = "client_secret_basic"
	AuthMethodPost  = "client_secret_post"
	AuthMethodJSON  = "client_secret_json"
)

// AuthCodeLifetime is the authorization code TTL in seconds. A code
// older than this is treated as absent.
const AuthCodeLifetime = 600

// User is a registered resource owner. PersonID is the external person
// identifier the permissions service keys on.
type User struct {
	ID           string    `gorm:"primaryKey"`
	Username     string    `gorm:"size:40;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:255"`
	PersonID     string    `gorm:"size:48;index"`
	Firstname    string    `gorm:"size:40"`
	Lastname     string    `gorm:"size:40"`
	Organization string    `gorm:"size:120"`
	EmailAddress string    `gorm:"size:40"`
	DateCreated  time.Time `gorm:"autoCreateTime"`
}

func (User) TableName() string { return "users" }

// Client is a registered OAuth 2.0 principal. An empty ClientSecret
// means the client has no usable secret: either a public client
// authenticating with method "none", or a confidential client whose
// secret was deleted to disable it.
type Client struct {
	ID                      string      `gorm:"primaryKey"`
	UserID                  string      `gorm:"index"`
	ClientID                string      `gorm:"size:48;index"`
	ClientSecret            string      `gorm:"size:120"`
	IssuedAt                int64       `gorm:"not null"`
	RedirectUris            StringSlice `gorm:"type:text"`
	GrantTypes              StringSlice `gorm:"type:text"`
	ResponseTypes           StringSlice `gorm:"type:text"`
	Scope                   string      `gorm:"type:text"`
	TokenEndpointAuthMethod string      `gorm:"size:48"`
	ClientName              string      `gorm:"size:100"`
	ClientURI               string      `gorm:"type:text"`
	LogoURI                 string      `gorm:"type:text"`
	TosURI                  string      `gorm:"type:text"`
	PolicyURI               string      `gorm:"type:text"`
	Contacts                StringSlice `gorm:"type:text"`
}

func (Client) TableName() string { return "oauth2_clients" }

// IsPublic reports whether the client authenticates with method "none".
func (c *Client) IsPublic() bool {
	return c.TokenEndpointAuthMethod == AuthMethodNone
}

// CheckTokenEndpointAuthMethod reports whether the client is declared
// to authenticate with the given method.
func (c *Client) CheckTokenEndpointAuthMethod(method string) bool {
	return c.TokenEndpointAuthMethod == method
}

// CheckClientSecret compares a presented secret against the stored one
// in constant time. A client with no stored secret rejects every
// presented secret.
func (c *Client) CheckClientSecret(secret string) bool {
	if c.ClientSecret == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.ClientSecret), []byte(secret)) == 1
}

// CheckGrantType reports whether the client may use the given grant type.
func (c *Client) CheckGrantType(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// CheckResponseType reports whether the client may use the given
// response type.
func (c *Client) CheckResponseType(responseType string) bool {
	return slices.Contains(c.ResponseTypes, responseType)
}

// CheckRedirectURI reports whether the URI is registered for the client.
func (c *Client) CheckRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectUris, uri)
}

// DefaultRedirectURI returns the first registered redirect URI, or ""
// when none are registered.
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectUris) == 0 {
		return ""
	}
	return c.RedirectUris[0]
}

// AuthorizationCode is a single-use proof of user consent. Redemption
// reads and deletes the row in one step; see db.Store.ConsumeAuthCode.
type AuthorizationCode struct {
	ID                  uint   `gorm:"primaryKey"`
	Code                string `gorm:"size:120;uniqueIndex;not null"`
	ClientID            string `gorm:"size:48;index"`
	RedirectURI         string `gorm:"type:text"`
	ResponseType        string `gorm:"type:text"`
	Scope               string `gorm:"type:text"`
	UserID              string `gorm:"index"`
	AuthTime            int64  `gorm:"not null"`
	CodeChallenge       string `gorm:"type:text"`
	CodeChallengeMethod string `gorm:"size:48"`
}

func (AuthorizationCode) TableName() string { return "oauth2_authorization_codes" }

// IsExpired reports whether the code has outlived AuthCodeLifetime.
func (c *AuthorizationCode) IsExpired() bool {
	return time.Now().Unix() >= c.AuthTime+AuthCodeLifetime
}

// Token is an access/refresh token pair. The refresh window is double
// the access-token lifetime.
type Token struct {
	ID           uint   `gorm:"primaryKey"`
	ClientID     string `gorm:"size:48;index"`
	UserID       string `gorm:"index"`
	TokenType    string `gorm:"size:40"`
	AccessToken  string `gorm:"size:255;uniqueIndex;not null"`
	RefreshToken string `gorm:"size:255;index"`
	Scope        string `gorm:"type:text"`
	Revoked      bool   `gorm:"default:false"`
	IssuedAt     int64  `gorm:"not null"`
	ExpiresIn    int64  `gorm:"not null"`
}

func (Token) TableName() string { return "oauth2_tokens" }

// IsAccessTokenExpired reports whether the access token has expired.
// The boundary resolves as expired at exact equality.
func (t *Token) IsAccessTokenExpired() bool {
	return time.Now().Unix() >= t.IssuedAt+t.ExpiresIn
}

// IsRefreshTokenExpired reports whether the refresh token has expired.
func (t *Token) IsRefreshTokenExpired() bool {
	return time.Now().Unix() >= t.IssuedAt+2*t.ExpiresIn
}

// AuthorizedClient records that a user has granted a client consent,
// so the consent screen is skipped on later authorization requests.
type AuthorizedClient struct {
	UserID     string `gorm:"primaryKey"`
	ClientID   string `gorm:"primaryKey;size:48"`
	Authorized bool   `gorm:"default:false"`
}

func (AuthorizedClient) TableName() string { return "authorized_clients" }
