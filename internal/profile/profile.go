package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the slice of the user record the intake flow cares about.
type Profile struct {
	FirstName string `json:"first_name"`
	Language  string `json:"language"`
}

// Source resolves a user id to a profile. Implemented by Client; the
// orchestrator tolerates lookup failures by proceeding without a profile.
type Source interface {
	Get(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

// Client reads profiles from the external profile service through an
// injected TTL cache.
type Client struct {
	baseURL string
	client  *http.Client
	cache   *Cache
}

func NewClient(baseURL string, cache *Cache) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
	}
}

// SetTestTransport points the client at a test server.
func (c *Client) SetTestTransport(baseURL string) {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

func (c *Client) Get(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	if p, ok := c.cache.Get(userID); ok {
		return p, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/profiles/%s", c.baseURL, userID), nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile service returned %d", resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	c.cache.Put(userID, &p)
	return &p, nil
}
