package intent

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/internal/store"
	"github.com/rateright/rateright/pkg/anthropic"
)

type fakeCatalog struct {
	types   map[string]*model.ServiceType
	text    []model.MatchedServiceType
	vector  []model.MatchedServiceType
	textErr error
}

func (f *fakeCatalog) GetServiceType(ctx context.Context, slug string) (*model.ServiceType, error) {
	if st, ok := f.types[slug]; ok {
		return st, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeCatalog) SearchServiceTypesText(ctx context.Context, query string, limit int, minScore float64) ([]model.MatchedServiceType, error) {
	return f.text, f.textErr
}

func (f *fakeCatalog) SearchServiceTypesVector(ctx context.Context, embedding []float32, limit int, minScore float64) ([]model.MatchedServiceType, error) {
	return f.vector, nil
}

type fakeLLM struct {
	response string
	err      error
	lastReq  anthropic.MessageRequest
}

func (f *fakeLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: f.response}}}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "screen_repair_iphone_16", Slugify("Screen Repair iPhone 16"))
	assert.Equal(t, "car_oil_change", Slugify("  Car Oil-Change!  "))
	assert.Equal(t, "teeth_whitening", Slugify("Teeth Whitening"))
}

func TestCategoryFromSlug(t *testing.T) {
	assert.Equal(t, "screen", CategoryFromSlug("screen_repair"))
	assert.Equal(t, "plumbing", CategoryFromSlug("plumbing"))
}

func TestResolve_MergesAndValidates(t *testing.T) {
	catalog := &fakeCatalog{
		text: []model.MatchedServiceType{
			{Slug: "screen_repair", Name: "Screen Repair", MatchSource: model.MatchSourceText, Score: 0.4},
			{Slug: "galaxy_screen_repair", Name: "Galaxy Screen Repair", MatchSource: model.MatchSourceText, Score: 0.3},
		},
		vector: []model.MatchedServiceType{
			{Slug: "screen_repair", Name: "Screen Repair", MatchSource: model.MatchSourceVector, Score: 0.9},
		},
	}
	llm := &fakeLLM{response: `{"name": "Screen Repair iPhone 16", "relevant_slugs": ["screen_repair"]}`}

	r := NewResolver(catalog, llm, fakeEmbedder{}, ResolverOpts{Model: "test-model"})
	res, err := r.Resolve(context.Background(), "i need a new screen for my iphone 16")
	require.NoError(t, err)

	assert.Equal(t, "Screen Repair iPhone 16", res.CondensedName)
	assert.Equal(t, "screen_repair_iphone_16", res.CondensedSlug)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "screen_repair", res.Matches[0].Slug)
	// the vector score won the slug dedup
	assert.InDelta(t, 0.9, res.Matches[0].Score, 0.001)
}

func TestResolve_LLMFailureKeepsAllCandidates(t *testing.T) {
	catalog := &fakeCatalog{
		text: []model.MatchedServiceType{
			{Slug: "screen_repair", Name: "Screen Repair", MatchSource: model.MatchSourceText, Score: 0.4},
			{Slug: "oil_change", Name: "Oil Change", MatchSource: model.MatchSourceText, Score: 0.2},
		},
	}
	llm := &fakeLLM{err: eris.New("boom")}

	r := NewResolver(catalog, llm, nil, ResolverOpts{})
	res, err := r.Resolve(context.Background(), "screen repair")
	require.NoError(t, err)

	assert.Equal(t, "Screen Repair", res.CondensedName)
	assert.Len(t, res.Matches, 2)
}

func TestResolve_NoLLMClientTitleCases(t *testing.T) {
	r := NewResolver(&fakeCatalog{}, nil, nil, ResolverOpts{})
	res, err := r.Resolve(context.Background(), "  fix my leaky kitchen faucet ")
	require.NoError(t, err)
	assert.Equal(t, "Fix My Leaky Kitchen Faucet", res.CondensedName)
	assert.Empty(t, res.Matches)
}

func TestResolve_PrependsKnownCondensedSlug(t *testing.T) {
	catalog := &fakeCatalog{
		types: map[string]*model.ServiceType{
			"teeth_whitening": {Slug: "teeth_whitening", Name: "Teeth Whitening"},
		},
		text: []model.MatchedServiceType{
			{Slug: "dental_cleaning", Name: "Dental Cleaning", MatchSource: model.MatchSourceText, Score: 0.2},
		},
	}
	llm := &fakeLLM{response: `{"name": "Teeth Whitening", "relevant_slugs": ["dental_cleaning"]}`}

	r := NewResolver(catalog, llm, nil, ResolverOpts{})
	res, err := r.Resolve(context.Background(), "best teeth whitening near me")
	require.NoError(t, err)

	require.Len(t, res.Matches, 2)
	assert.Equal(t, "teeth_whitening", res.Matches[0].Slug)
	assert.InDelta(t, 1.0, res.Matches[0].Score, 0.001)
	assert.Equal(t, "dental_cleaning", res.Matches[1].Slug)
}

func TestResolve_UnknownCondensedSlugNotPrepended(t *testing.T) {
	llm := &fakeLLM{response: `{"name": "Hovercraft Detailing", "relevant_slugs": []}`}
	r := NewResolver(&fakeCatalog{}, llm, nil, ResolverOpts{})

	res, err := r.Resolve(context.Background(), "hovercraft detailing")
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, "hovercraft_detailing", res.CondensedSlug)
}

func TestResolve_FencedJSONResponse(t *testing.T) {
	llm := &fakeLLM{response: "```json\n{\"name\": \"Car Oil Change\", \"relevant_slugs\": []}\n```"}
	r := NewResolver(&fakeCatalog{}, llm, nil, ResolverOpts{})

	res, err := r.Resolve(context.Background(), "looking for someone to change oil in my car")
	require.NoError(t, err)
	assert.Equal(t, "Car Oil Change", res.CondensedName)
}
