package model

import "time"

// SourceType identifies how a price observation was obtained.
type SourceType string

const (
	SourceScrape    SourceType = "scrape"     // structured page scan
	SourceManual    SourceType = "manual"     // entered by hand
	SourceReceipt   SourceType = "receipt"    // parsed from a receipt
	SourceQuote     SourceType = "quote"      // email reply to an inquiry
	SourceLLMScrape SourceType = "llm_scrape" // LLM extraction from page text
	SourceLinkup    SourceType = "linkup"     // web-search extraction
)

// Observation is one recorded price data point tied to a provider and a
// service type. Observations are append-only: they are never updated.
// A price of 0 is a sentinel for "provider responded, no price found".
type Observation struct {
	ID          string     `json:"id"`
	ProviderID  string     `json:"provider_id"`
	ServiceType string     `json:"service_type"`
	Category    string     `json:"category"`
	Price       float64    `json:"price"`
	Currency    string     `json:"currency"`
	SourceType  SourceType `json:"source_type"`
	SourceURL   string     `json:"source_url,omitempty"`
	ReplyText   string     `json:"reply_text,omitempty"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	ObservedAt  time.Time  `json:"observed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ObservationSummary is the trimmed observation view attached to search results.
type ObservationSummary struct {
	ServiceType string     `json:"service_type"`
	Price       float64    `json:"price"`
	Currency    string     `json:"currency"`
	SourceType  SourceType `json:"source_type"`
	ObservedAt  time.Time  `json:"observed_at"`
}
