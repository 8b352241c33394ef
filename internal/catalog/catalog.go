// Package catalog is the client of the external listing catalog. The relay
// only reads listing metadata to label incoming calls.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrListingNotFound is returned when the catalog has no such listing.
var ErrListingNotFound = errors.New("listing not found")

// Listing is the subset of catalog data the relay uses.
type Listing struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Seller string `json:"seller"`
	Price  string `json:"price,omitempty"`
}

// Catalog looks up listings by id.
type Catalog interface {
	GetListing(ctx context.Context, id string) (*Listing, error)
}

// HTTPCatalog talks to the catalog service over HTTP.
type HTTPCatalog struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPCatalog creates a catalog client. It returns nil when baseURL is
// empty; callers treat a nil Catalog as "no enrichment".
func NewHTTPCatalog(baseURL string, timeout time.Duration) *HTTPCatalog {
	if baseURL == "" {
		return nil
	}
	return &HTTPCatalog{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetListing fetches GET {base}/listings/{id}.
func (c *HTTPCatalog) GetListing(ctx context.Context, id string) (*Listing, error) {
	if c == nil {
		return nil, ErrListingNotFound
	}
	endpoint := c.baseURL + "/listings/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrListingNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, string(body))
	}

	var listing Listing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}
	if listing.ID == "" {
		listing.ID = id
	}
	return &listing, nil
}
