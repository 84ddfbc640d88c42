// Package store persists service types, providers, price observations and
// inquiries, with geospatial and similarity search on top.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/rateright/rateright/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// MaxSearchResults caps every provider search to keep responses bounded.
const MaxSearchResults = 50

// Store defines the persistence interface for the price pipeline.
type Store interface {
	// Service types
	GetServiceType(ctx context.Context, slug string) (*model.ServiceType, error)
	CreateServiceType(ctx context.Context, st *model.ServiceType) error
	SearchServiceTypesText(ctx context.Context, query string, limit int, minScore float64) ([]model.MatchedServiceType, error)
	SearchServiceTypesVector(ctx context.Context, embedding []float32, limit int, minScore float64) ([]model.MatchedServiceType, error)
	ListServiceTypesMissingEmbedding(ctx context.Context, limit int) ([]model.ServiceType, error)
	UpdateServiceTypeEmbedding(ctx context.Context, slug string, embedding []float32) error
	ServiceTypeNames(ctx context.Context, slugs []string) (map[string]string, error)

	// Providers
	UpsertProvider(ctx context.Context, p *model.Provider) (id string, created bool, err error)
	GetProvidersByIDs(ctx context.Context, ids []string) ([]model.Provider, error)
	FindProvidersWithPrices(ctx context.Context, slugs []string, lat, lng, radiusMeters float64) ([]model.ProviderWithPrices, error)
	FindProvidersByCategory(ctx context.Context, slugs []string, lat, lng, radiusMeters float64) ([]model.ProviderWithPrices, error)
	FindProvidersNear(ctx context.Context, ids []string, lat, lng float64, radiusMeters *float64) ([]model.ProviderWithPrices, error)

	// Observations
	InsertObservation(ctx context.Context, o *model.Observation) error

	// Inquiries
	CreateInquiry(ctx context.Context, inq *model.Inquiry) error
	GetActiveInquiry(ctx context.Context, providerID, serviceType string) (*model.Inquiry, error)
	ListPendingInquiries(ctx context.Context) ([]model.Inquiry, error)
	MarkInquiryReplied(ctx context.Context, id, replyBody string, price *float64, currency string, repliedAt time.Time) error
	UpdateInquiryStatus(ctx context.Context, id string, status model.InquiryStatus) error
	InquiryStatusesByProvider(ctx context.Context, providerIDs []string) (map[string]model.InquiryStatus, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
