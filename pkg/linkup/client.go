// Package linkup provides the search-with-answer collaborator: a thin client
// for the Linkup sourced-answer search API.
package linkup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://api.linkup.so/v1"
	defaultDepth   = "standard"
)

// Client performs Linkup searches.
type Client interface {
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// SearchRequest is the request body for POST /search.
type SearchRequest struct {
	Query      string `json:"q"`
	Depth      string `json:"depth"`
	OutputType string `json:"outputType"`
}

// SearchResponse is the sourced-answer response.
type SearchResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Source is one cited source backing the answer.
type Source struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Linkup API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	body, err := json.Marshal(SearchRequest{
		Query:      query,
		Depth:      defaultDepth,
		OutputType: "sourcedAnswer",
	})
	if err != nil {
		return nil, eris.Wrap(err, "linkup: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "linkup: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "linkup: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "linkup: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("linkup: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "linkup: unmarshal response")
	}

	return &result, nil
}
