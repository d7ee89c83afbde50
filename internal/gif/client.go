// Package gif looks up GIF metadata from the configured provider.
// Lookups are best-effort: callers treat any failure as "no longer
// available" and render a placeholder.
package gif

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const lookupTimeout = 5 * time.Second

// Meta is the subset of provider metadata the chat UI needs.
type Meta struct {
	ID         string
	URL        string
	PreviewURL string
}

// Client queries the GIF provider's "gifs by id" endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a provider client from configuration.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: lookupTimeout},
	}
}

// Lookup fetches metadata for a single GIF id.
func (c *Client) Lookup(ctx context.Context, id string) (*Meta, error) {
	if id == "" {
		return nil, fmt.Errorf("gif: empty id")
	}

	query := url.Values{}
	query.Set("ids", id)
	query.Set("key", c.apiKey)
	query.Set("media_filter", "gif,tinygif")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/posts?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gif: create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gif: lookup %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gif: lookup %s: status %d", id, resp.StatusCode)
	}

	var payload struct {
		Results []struct {
			ID           string `json:"id"`
			MediaFormats map[string]struct {
				URL string `json:"url"`
			} `json:"media_formats"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("gif: decode response: %w", err)
	}
	if len(payload.Results) == 0 {
		return nil, fmt.Errorf("gif: id %s not found", id)
	}

	result := payload.Results[0]
	meta := &Meta{ID: result.ID}
	if f, ok := result.MediaFormats["gif"]; ok {
		meta.URL = f.URL
	}
	if f, ok := result.MediaFormats["tinygif"]; ok {
		meta.PreviewURL = f.URL
	}
	if meta.URL == "" && meta.PreviewURL == "" {
		return nil, fmt.Errorf("gif: id %s has no playable format", id)
	}
	return meta, nil
}

// Resolve implements message.GifResolver.
func (c *Client) Resolve(ctx context.Context, id string) (string, error) {
	meta, err := c.Lookup(ctx, id)
	if err != nil {
		return "", err
	}
	if meta.URL != "" {
		return meta.URL, nil
	}
	return meta.PreviewURL, nil
}
