package claims

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer identifies this service in the claims envelope.
	Issuer = "brighthive-authserver"

	// Lifetime is the TTL of both the enrichment JWT and the
	// service-to-service token. Kept short: these tokens cross service
	// boundaries on every hop.
	Lifetime = 15 * time.Minute
)

// DefaultAudience lists the platform services that accept tokens
// issued by this server.
var DefaultAudience = []string{
	"brighthive-data-trust-manager",
	"brighthive-data-catalog-manager",
	"brighthive-governance-api",
	"brighthive-permissions-service",
	"brighthive-data-uploader-service",
	"brighthive-authserver",
}

// Signer issues HS256 JWTs wrapped in the shared claims envelope:
// issuer, audience list, issued-at, and expiry, with caller-supplied
// claims merged on top.
type Signer struct {
	key      []byte
	audience []string
}

// NewSigner creates a signer with the given HMAC key and the default
// platform audience.
func NewSigner(key []byte) *Signer {
	return &Signer{key: key, audience: DefaultAudience}
}

// Sign issues a JWT carrying the envelope plus the given custom claims.
func (s *Signer) Sign(custom map[string]any) (string, error) {
	now := time.Now()
	envelope := jwt.MapClaims{
		"iss": Issuer,
		"aud": s.audience,
		"iat": now.Unix(),
		"exp": now.Add(Lifetime).Unix(),
	}
	for k, v := range custom {
		envelope[k] = v
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, envelope).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign claims: %w", err)
	}
	return signed, nil
}

// ServiceToken issues a bare-envelope token for service-to-service
// calls, such as the permissions lookup.
func (s *Signer) ServiceToken() (string, error) {
	return s.Sign(nil)
}

// Parse verifies a token issued by Sign and returns its claims.
func (s *Signer) Parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse claims token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid claims token")
	}
	return mapClaims, nil
}
