package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnauthorized is returned for tokens the identity service rejects.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier resolves a bearer token to the owning user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (uuid.UUID, error)
}

// Client talks to the external identity service.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// SetTestTransport points the client at a test server.
func (c *Client) SetTestTransport(baseURL string) {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

type verifyResponse struct {
	UserID string `json:"user_id"`
}

// Verify calls the identity service's token check. Any non-200 answer is
// an authorization failure, surfaced immediately with no retry.
func (c *Client) Verify(ctx context.Context, token string) (uuid.UUID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/verify", nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return uuid.Nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return uuid.Nil, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return uuid.Nil, fmt.Errorf("decode verify response: %w", err)
	}
	id, err := uuid.Parse(vr.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id from identity service: %w", err)
	}
	return id, nil
}
