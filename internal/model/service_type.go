// Package model defines the core domain types for the price discovery pipeline.
package model

import "time"

// ServiceType is a canonical, slug-identified kind of service (e.g. "tire change").
// Created on the first successful resolution of a new canonical name and immutable
// afterwards, except for embedding backfill.
type ServiceType struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// MatchSource identifies which search path produced a service-type match.
type MatchSource string

const (
	MatchSourceText   MatchSource = "text"
	MatchSourceVector MatchSource = "vector"
)

// MatchedServiceType is a scored service-type candidate for a search query.
type MatchedServiceType struct {
	Slug        string      `json:"slug"`
	Name        string      `json:"name"`
	MatchSource MatchSource `json:"match_source"`
	Score       float64     `json:"score"`
}
