package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brighthive/authserver/pkg/claims"
)

// DefaultTimeout bounds the outbound permissions lookup. The token
// endpoint must not block on a slow upstream.
const DefaultTimeout = 5 * time.Second

// Client calls the external permissions service, authenticating with a
// self-issued service token.
type Client struct {
	baseURL    string
	signer     *claims.Signer
	httpClient *http.Client
}

// New creates a permissions client for the given service base URL.
func New(baseURL string, signer *claims.Signer) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		signer:  signer,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// UserPermissions fetches the platform permissions for the given
// external person identifier. The upstream wraps its payload in a
// "response" envelope.
func (c *Client) UserPermissions(ctx context.Context, personID string) (map[string]any, error) {
	serviceToken, err := c.signer.ServiceToken()
	if err != nil {
		return nil, fmt.Errorf("failed to issue service token: %w", err)
	}

	url := fmt.Sprintf("%s/users/%s/permissions", c.baseURL, personID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build permissions request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+serviceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("permissions request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("permissions service returned status %d", resp.StatusCode)
	}

	var body struct {
		Response map[string]any `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode permissions response: %w", err)
	}

	return body.Response, nil
}
