// Package catalog talks to the remote product catalog service. The terminal
// treats the remote list as the source of truth and replaces its local set
// wholesale on each sync.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mizpos/terminal/internal/domain"
)

// Client fetches the full remote product list. Implementations must return
// either the complete set or an error; partial lists would corrupt the
// clear-then-insert replace.
type Client interface {
	FetchProducts(ctx context.Context) ([]domain.RemoteProduct, error)
}

type HTTPClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, apiToken string) *HTTPClient {
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type productListResponse struct {
	Products []domain.RemoteProduct `json:"products"`
}

func (c *HTTPClient) FetchProducts(ctx context.Context) ([]domain.RemoteProduct, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch products: catalog service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload productListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode product list: %w", err)
	}
	return payload.Products, nil
}
