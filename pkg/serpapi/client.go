// Package serpapi provides the places-search collaborator: a thin client for
// the SerpAPI Google Maps engine.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://serpapi.com"

// Client performs SerpAPI Google Maps searches.
type Client interface {
	SearchMaps(ctx context.Context, query string, lat, lng, radiusMeters float64) ([]Business, error)
}

// Business is one local business returned by the maps engine.
type Business struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Website     string   `json:"website,omitempty"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Type        string   `json:"type,omitempty"`
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

// NewClient creates a SerpAPI client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// radiusToZoom maps a search radius to the maps zoom level SerpAPI expects.
// The engine has no radius parameter; zoom is the closest approximation and
// results still need a post-hoc distance filter.
var radiusToZoom = []struct {
	maxMeters float64
	zoom      int
}{
	{500, 18},
	{1_500, 16},
	{3_000, 15},
	{5_000, 14},
	{10_000, 13},
	{20_000, 12},
}

// ZoomForRadius returns the zoom level for a radius in meters.
func ZoomForRadius(radiusMeters float64) int {
	for _, rz := range radiusToZoom {
		if radiusMeters <= rz.maxMeters {
			return rz.zoom
		}
	}
	return 11
}

type searchResponse struct {
	LocalResults []localResult `json:"local_results"`
}

type localResult struct {
	Title          string   `json:"title"`
	Address        string   `json:"address"`
	Rating         *float64 `json:"rating"`
	Reviews        *int     `json:"reviews"`
	Phone          string   `json:"phone"`
	Website        string   `json:"website"`
	Type           string   `json:"type"`
	GPSCoordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"gps_coordinates"`
}

func (c *httpClient) SearchMaps(ctx context.Context, query string, lat, lng, radiusMeters float64) ([]Business, error) {
	params := url.Values{}
	params.Set("engine", "google_maps")
	params.Set("q", query)
	params.Set("ll", fmt.Sprintf("@%g,%g,%dz", lat, lng, ZoomForRadius(radiusMeters)))
	params.Set("type", "search")
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "serpapi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("serpapi: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result searchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "serpapi: unmarshal response")
	}

	businesses := make([]Business, 0, len(result.LocalResults))
	for _, place := range result.LocalResults {
		if place.GPSCoordinates.Latitude == 0 && place.GPSCoordinates.Longitude == 0 {
			continue
		}
		businesses = append(businesses, Business{
			Name:        place.Title,
			Address:     place.Address,
			Rating:      place.Rating,
			ReviewCount: place.Reviews,
			Phone:       place.Phone,
			Website:     place.Website,
			Latitude:    place.GPSCoordinates.Latitude,
			Longitude:   place.GPSCoordinates.Longitude,
			Type:        place.Type,
		})
	}

	return businesses, nil
}
