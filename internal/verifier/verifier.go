// Package verifier talks to the external agent-verification provider that
// vouches for shared-secret API keys.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrInvalidKey means the provider recognized the request but rejected
	// the credential.
	ErrInvalidKey = errors.New("invalid api key")
	// ErrUnavailable means the provider could not be reached or errored;
	// the credential is NOT treated as verified.
	ErrUnavailable = errors.New("verification provider unavailable")
)

// Identity is the provider's answer for a valid key.
type Identity struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a provider client with a bounded request timeout. Calls are
// never retried here; a failed verification fails the caller's request.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// VerifyKey asks the provider whether the shared-secret key is valid and,
// if so, who it belongs to.
func (c *Client) VerifyKey(ctx context.Context, apiKey string) (Identity, error) {
	body, _ := json.Marshal(map[string]string{"key": apiKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var ident Identity
		if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
			return Identity{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
		if ident.Name == "" {
			return Identity{}, fmt.Errorf("%w: empty identity", ErrUnavailable)
		}
		return ident, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Identity{}, ErrInvalidKey
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Identity{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(b))
	}
}
