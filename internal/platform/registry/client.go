// Package registry is the REST client for the collection registry service,
// which tracks per-collection and per-creator sale counters. Updates are
// best-effort post-settlement notifications.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

// Client is the REST client for the collection registry API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new registry client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// RecordSale reports one settled sale against a collection.
func (c *Client) RecordSale(ctx context.Context, collectionID string, salePrice int64) error {
	payload, err := json.Marshal(map[string]any{
		"sale_price": salePrice,
	})
	if err != nil {
		return fmt.Errorf("registry: encode sale: %w", err)
	}

	path := c.baseURL + "/collections/" + url.PathEscape(collectionID) + "/sales"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("registry: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry: record sale: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("registry: record sale for %s: unexpected status %d", collectionID, resp.StatusCode)
	}
	return nil
}

var _ domain.CollectionRegistry = (*Client)(nil)
