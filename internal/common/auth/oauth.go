// internal/common/auth/oauth.go
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	httpclient "crm-sync/internal/common/http"
)

// TokenProvider supplies a bearer token for record store requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider backed by a fixed token (dev setups).
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("no token configured")
	}
	return string(t), nil
}

// TokenResponse holds the response from the OAuth token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// OAuthClient obtains access tokens for the hosted record store via the
// client credentials flow, caching each token until expiry.
type OAuthClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *httpclient.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewOAuthClient creates a client credentials token source.
func NewOAuthClient(tokenURL, clientID, clientSecret string) *OAuthClient {
	return &OAuthClient{
		tokenURL:     strings.TrimSuffix(tokenURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpclient.NewClient(30 * time.Second),
	}
}

// Token returns a valid access token, refreshing when the cached one has
// expired. A 30 second skew keeps tokens from expiring mid-request.
func (c *OAuthClient) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.tokenExpiry.After(time.Now().Add(30*time.Second)) {
		return c.accessToken, nil
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	return c.accessToken, nil
}
