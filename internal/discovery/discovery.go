// Package discovery finds new providers through the external places search
// when a search turns up nothing locally.
package discovery

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rateright/rateright/internal/geo"
	"github.com/rateright/rateright/internal/intent"
	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/pkg/openai"
	"github.com/rateright/rateright/pkg/serpapi"
)

// Registry is the slice of the store discovery writes to.
type Registry interface {
	GetServiceType(ctx context.Context, slug string) (*model.ServiceType, error)
	CreateServiceType(ctx context.Context, st *model.ServiceType) error
	UpsertProvider(ctx context.Context, p *model.Provider) (string, bool, error)
}

// Discoverer upserts providers found by the places-search collaborator.
type Discoverer struct {
	registry Registry
	places   serpapi.Client
	embedder openai.Client
	log      *zap.Logger
}

// NewDiscoverer creates a Discoverer. The places client may be nil when no
// API credential is configured; Discover then returns nothing. The embedding
// client is optional and only used when coining new service types.
func NewDiscoverer(registry Registry, places serpapi.Client, embedder openai.Client) *Discoverer {
	return &Discoverer{
		registry: registry,
		places:   places,
		embedder: embedder,
		log:      zap.L().With(zap.String("component", "discovery")),
	}
}

var titleCaser = cases.Title(language.English)

// Discover searches the places collaborator for businesses matching the
// query, filters them to the requested radius, and upserts each as a
// provider keyed on (name, address). Returns the touched provider IDs.
// All external failures are swallowed: discovery fails open with an empty
// result, never an error.
func (d *Discoverer) Discover(ctx context.Context, query string, slugs []string, lat, lng, radiusMeters float64, condensedName string) []string {
	if d.places == nil {
		d.log.Warn("discovery skipped, no places API credential")
		return nil
	}

	var name, slug string
	if len(slugs) > 0 {
		slug = slugs[0]
		name = titleCaser.String(strings.ReplaceAll(slug, "_", " "))
	} else {
		name = condensedName
		if name == "" {
			name = titleCaser.String(strings.ToLower(strings.TrimSpace(query)))
		}
		slug = intent.Slugify(name)
	}
	d.ensureServiceType(ctx, name, slug)

	businesses, err := d.places.SearchMaps(ctx, query, lat, lng, radiusMeters)
	if err != nil {
		d.log.Error("places search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	if len(businesses) == 0 {
		d.log.Info("places search returned no results", zap.String("query", query))
		return nil
	}

	// The engine's radius is approximate; enforce the real one.
	before := len(businesses)
	within := businesses[:0]
	for _, b := range businesses {
		if geo.Haversine(lat, lng, b.Latitude, b.Longitude) <= radiusMeters {
			within = append(within, b)
		}
	}
	businesses = within
	d.log.Info("places search complete",
		zap.String("query", query),
		zap.Int("returned", before),
		zap.Int("within_radius", len(businesses)),
	)

	var providerIDs []string
	for _, biz := range businesses {
		if biz.Name == "" {
			continue
		}
		p := &model.Provider{
			Name:        biz.Name,
			Category:    slug,
			Latitude:    biz.Latitude,
			Longitude:   biz.Longitude,
			Address:     biz.Address,
			Rating:      biz.Rating,
			ReviewCount: biz.ReviewCount,
			Description: biz.Type,
			Phone:       biz.Phone,
			Website:     biz.Website,
		}
		id, _, err := d.registry.UpsertProvider(ctx, p)
		if err != nil {
			d.log.Warn("provider upsert failed", zap.String("name", biz.Name), zap.Error(err))
			continue
		}
		providerIDs = append(providerIDs, id)
	}
	return providerIDs
}

// ensureServiceType creates the service type for a coined slug if it does
// not exist yet, embedding it when the embedding client is configured.
func (d *Discoverer) ensureServiceType(ctx context.Context, name, slug string) {
	if _, err := d.registry.GetServiceType(ctx, slug); err == nil {
		return
	}

	category := intent.CategoryFromSlug(slug)
	st := &model.ServiceType{
		Slug:        slug,
		Name:        name,
		Category:    category,
		Description: "Auto-discovered: " + name,
	}
	if d.embedder != nil {
		text := strings.Join([]string{name, category, st.Description}, " ")
		if vectors, err := d.embedder.Embed(ctx, []string{text}); err != nil {
			d.log.Warn("embedding generation failed", zap.String("slug", slug), zap.Error(err))
		} else if len(vectors) > 0 {
			st.Embedding = vectors[0]
		}
	}
	if err := d.registry.CreateServiceType(ctx, st); err != nil {
		d.log.Warn("service type creation failed", zap.String("slug", slug), zap.Error(err))
		return
	}
	d.log.Info("created service type", zap.String("slug", slug), zap.String("name", name))
}
