// Package storefront is the REST client for the external storefront catalog,
// the source of truth for asset display metadata. The engine treats it as
// best-effort: a failed fetch degrades to cached or placeholder metadata.
package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blockmart/marketd/internal/domain"
)

// Client is the REST client for the storefront catalog API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new storefront client.
//
// baseURL is the API root, e.g. "https://store.example.com/api/v1".
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// catalogAsset is the storefront's wire representation of an asset.
type catalogAsset struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ImageURL     string `json:"image_url"`
	CollectionID string `json:"collection_id"`
	Creator      string `json:"creator"`
}

func (a catalogAsset) toDomain() domain.Asset {
	return domain.Asset{
		ID:           a.ID,
		Name:         a.Name,
		ImageURL:     a.ImageURL,
		CollectionID: a.CollectionID,
		Creator:      a.Creator,
	}
}

// FetchCatalog returns the full asset catalog.
func (c *Client) FetchCatalog(ctx context.Context) ([]domain.Asset, error) {
	body, err := c.get(ctx, "/assets")
	if err != nil {
		return nil, fmt.Errorf("storefront: fetch catalog: %w", err)
	}

	var resp struct {
		Assets []catalogAsset `json:"assets"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("storefront: decode catalog: %w", err)
	}

	assets := make([]domain.Asset, 0, len(resp.Assets))
	for _, a := range resp.Assets {
		assets = append(assets, a.toDomain())
	}
	return assets, nil
}

// FetchAsset returns a single asset by ID.
func (c *Client) FetchAsset(ctx context.Context, id string) (domain.Asset, error) {
	body, err := c.get(ctx, "/assets/"+url.PathEscape(id))
	if err != nil {
		return domain.Asset{}, fmt.Errorf("storefront: fetch asset %s: %w", id, err)
	}

	var resp struct {
		Asset catalogAsset `json:"asset"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Asset{}, fmt.Errorf("storefront: decode asset: %w", err)
	}
	return resp.Asset.toDomain(), nil
}

// get performs an authenticated GET request and returns the response body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body))
	}
	return body, nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

var _ domain.CatalogClient = (*Client)(nil)
