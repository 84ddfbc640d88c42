package model

import "time"

// Provider is a local business that offers one or more service types.
// Created by direct registration or by discovery upsert keyed on (name, address);
// never deleted by the pipeline. The location is immutable once set.
type Provider struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	Rating      *float64  `json:"rating,omitempty"`
	ReviewCount *int      `json:"review_count,omitempty"`
	Description string    `json:"description,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	Website     string    `json:"website,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProviderWithPrices is a provider decorated with search-time context:
// distance from the search point, matching observations, and inquiry state.
type ProviderWithPrices struct {
	Provider
	DistanceMeters float64              `json:"distance_meters"`
	Observations   []ObservationSummary `json:"observations"`
	CategoryLabel  string               `json:"category_label,omitempty"`
	InquiryStatus  string               `json:"inquiry_status,omitempty"`
}

// HasPrices reports whether the provider carries at least one observation.
func (p *ProviderWithPrices) HasPrices() bool {
	return len(p.Observations) > 0
}

// LowestPrice returns the smallest positive observed price, or 0 when the
// provider has no positive-priced observations.
func (p *ProviderWithPrices) LowestPrice() (price float64, currency string) {
	for _, o := range p.Observations {
		if o.Price <= 0 {
			continue
		}
		if price == 0 || o.Price < price {
			price = o.Price
			currency = o.Currency
		}
	}
	return price, currency
}
