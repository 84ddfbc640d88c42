package discovery

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/internal/store"
	"github.com/rateright/rateright/pkg/serpapi"
)

type fakeRegistry struct {
	types    map[string]*model.ServiceType
	created  []*model.ServiceType
	upserted []*model.Provider
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{types: map[string]*model.ServiceType{}}
}

func (f *fakeRegistry) GetServiceType(ctx context.Context, slug string) (*model.ServiceType, error) {
	if st, ok := f.types[slug]; ok {
		return st, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeRegistry) CreateServiceType(ctx context.Context, st *model.ServiceType) error {
	f.created = append(f.created, st)
	f.types[st.Slug] = st
	return nil
}

func (f *fakeRegistry) UpsertProvider(ctx context.Context, p *model.Provider) (string, bool, error) {
	p.ID = "prov-" + p.Name
	f.upserted = append(f.upserted, p)
	return p.ID, true, nil
}

type fakePlaces struct {
	businesses []serpapi.Business
	err        error
}

func (f *fakePlaces) SearchMaps(ctx context.Context, query string, lat, lng, radiusMeters float64) ([]serpapi.Business, error) {
	return f.businesses, f.err
}

func TestDiscover_NoClient(t *testing.T) {
	d := NewDiscoverer(newFakeRegistry(), nil, nil)
	ids := d.Discover(context.Background(), "tire change", nil, 51.5, -0.1, 5000, "")
	assert.Empty(t, ids)
}

func TestDiscover_FailsOpenOnSearchError(t *testing.T) {
	d := NewDiscoverer(newFakeRegistry(), &fakePlaces{err: eris.New("quota exceeded")}, nil)
	ids := d.Discover(context.Background(), "tire change", []string{"tire_change"}, 51.5, -0.1, 5000, "")
	assert.Empty(t, ids)
}

func TestDiscover_UpsertsWithinRadius(t *testing.T) {
	registry := newFakeRegistry()
	places := &fakePlaces{businesses: []serpapi.Business{
		{Name: "Near Garage", Address: "1 High St", Latitude: 51.5, Longitude: -0.1},
		{Name: "Far Garage", Address: "9 Remote Rd", Latitude: 52.5, Longitude: -0.1},
		{Name: "", Address: "no name", Latitude: 51.5, Longitude: -0.1},
	}}
	d := NewDiscoverer(registry, places, nil)

	ids := d.Discover(context.Background(), "tire change", []string{"tire_change"}, 51.5, -0.1, 5000, "")
	require.Len(t, ids, 1)
	require.Len(t, registry.upserted, 1)
	assert.Equal(t, "Near Garage", registry.upserted[0].Name)
	assert.Equal(t, "tire_change", registry.upserted[0].Category)
}

func TestDiscover_EnsuresServiceTypeFromSlug(t *testing.T) {
	registry := newFakeRegistry()
	d := NewDiscoverer(registry, &fakePlaces{}, nil)

	d.Discover(context.Background(), "tire change", []string{"tire_change"}, 51.5, -0.1, 5000, "")
	require.Len(t, registry.created, 1)
	assert.Equal(t, "tire_change", registry.created[0].Slug)
	assert.Equal(t, "Tire Change", registry.created[0].Name)
	assert.Equal(t, "tire", registry.created[0].Category)
	assert.Equal(t, "Auto-discovered: Tire Change", registry.created[0].Description)
}

func TestDiscover_CoinsSlugFromCondensedName(t *testing.T) {
	registry := newFakeRegistry()
	d := NewDiscoverer(registry, &fakePlaces{}, nil)

	d.Discover(context.Background(), "my tires are bald", nil, 51.5, -0.1, 5000, "Tire Replacement")
	require.Len(t, registry.created, 1)
	assert.Equal(t, "tire_replacement", registry.created[0].Slug)
}

func TestDiscover_ExistingServiceTypeNotRecreated(t *testing.T) {
	registry := newFakeRegistry()
	registry.types["tire_change"] = &model.ServiceType{Slug: "tire_change", Name: "Tire Change"}
	d := NewDiscoverer(registry, &fakePlaces{}, nil)

	d.Discover(context.Background(), "tire change", []string{"tire_change"}, 51.5, -0.1, 5000, "")
	assert.Empty(t, registry.created)
}
