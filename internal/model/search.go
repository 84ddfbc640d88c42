package model

// PriceStats summarizes the prices collected across nearby providers. All
// figures are computed from each provider's lowest positive-priced observation
// after outlier filtering.
type PriceStats struct {
	AvgPrice    float64 `json:"avg_price"`
	MinPrice    float64 `json:"min_price"`
	MaxPrice    float64 `json:"max_price"`
	MedianPrice float64 `json:"median_price"`
	Currency    string  `json:"currency"`
	SampleSize  int     `json:"sample_size"`
}

// SearchRequest is a resolved search: a free-text query plus a center point
// and radius in meters.
type SearchRequest struct {
	Query        string  `json:"query"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// SearchResponse is the full result of one search pass.
type SearchResponse struct {
	Query               string               `json:"query"`
	CondensedName       string               `json:"condensed_name,omitempty"`
	MatchedServiceTypes []MatchedServiceType `json:"matched_service_types"`
	Results             []ProviderWithPrices `json:"results"`
	DiscoveryTriggered  bool                 `json:"discovery_triggered"`
	PriceStats          *PriceStats          `json:"price_stats,omitempty"`
	ScrapingInProgress  bool                 `json:"scraping_in_progress"`
}
