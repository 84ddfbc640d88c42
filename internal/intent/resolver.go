// Package intent resolves a free-text query into a canonical service-type
// name and a validated list of matching service types.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/pkg/anthropic"
	"github.com/rateright/rateright/pkg/openai"
)

// Catalog is the slice of the store the resolver needs.
type Catalog interface {
	GetServiceType(ctx context.Context, slug string) (*model.ServiceType, error)
	SearchServiceTypesText(ctx context.Context, query string, limit int, minScore float64) ([]model.MatchedServiceType, error)
	SearchServiceTypesVector(ctx context.Context, embedding []float32, limit int, minScore float64) ([]model.MatchedServiceType, error)
}

const (
	matchLimit   = 10
	llmTimeout   = 10 * time.Second
	embedTimeout = 5 * time.Second
	llmMaxTokens = 200
)

const intentPrompt = `You are a service-type matching assistant. Given a user's search query and a list of existing service types, you must:
1. Extract a short, canonical service-type name (2-6 words) from the query. Remove filler words. Keep specific product/model identifiers.
2. Determine which existing service types (if any) are relevant to this query.

Matching rules:
- Different brands/models/product lines must NOT match (e.g. iPhone != Galaxy, BMW != Toyota).
- Generic types without a specific model (e.g. 'Screen Repair') DO match any specific query in that category.
- Types for the same brand family DO match (e.g. 'Galaxy Note 10' is relevant for a 'Galaxy' query).

Reply with ONLY a JSON object: {"name": "<condensed name>", "relevant_slugs": ["slug1", ...]}
If no existing types are relevant, return an empty array for relevant_slugs.`

// Resolution is the outcome of resolving one query.
type Resolution struct {
	CondensedName string
	CondensedSlug string
	Matches       []model.MatchedServiceType
}

// Slugs returns the matched slugs in order.
func (r *Resolution) Slugs() []string {
	out := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Slug
	}
	return out
}

// ResolverOpts configures the resolver.
type ResolverOpts struct {
	Model                string
	TextScoreThreshold   float64
	VectorScoreThreshold float64
}

// Resolver matches queries against known service types using lexical and
// semantic search, with an LLM pass to condense and validate.
type Resolver struct {
	store           Catalog
	llm             anthropic.Client
	embedder        openai.Client
	model           string
	textThreshold   float64
	vectorThreshold float64
	log             *zap.Logger
}

// NewResolver creates a Resolver. The LLM and embedding clients may be nil,
// in which case resolution degrades to lexical matching with a title-cased
// condensed name.
func NewResolver(s Catalog, llm anthropic.Client, embedder openai.Client, opts ResolverOpts) *Resolver {
	textThreshold := opts.TextScoreThreshold
	if textThreshold <= 0 {
		textThreshold = 0.10
	}
	vectorThreshold := opts.VectorScoreThreshold
	if vectorThreshold <= 0 {
		vectorThreshold = 0.75
	}
	return &Resolver{
		store:           s,
		llm:             llm,
		embedder:        embedder,
		model:           opts.Model,
		textThreshold:   textThreshold,
		vectorThreshold: vectorThreshold,
		log:             zap.L().With(zap.String("component", "intent")),
	}
}

// Resolve runs lexical and semantic matching concurrently, merges the
// candidates, and asks the LLM to condense the query and validate relevance.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Resolution, error) {
	var textMatches, vectorMatches []model.MatchedServiceType

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		textMatches, err = r.store.SearchServiceTypesText(gctx, query, matchLimit, r.textThreshold)
		return err
	})
	g.Go(func() error {
		vectorMatches = r.matchVector(gctx, query)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeMatches(textMatches, vectorMatches)
	condensed, validated := r.resolveWithLLM(ctx, query, merged)
	condensedSlug := Slugify(condensed)

	known := false
	for _, m := range validated {
		if m.Slug == condensedSlug {
			known = true
			break
		}
	}
	if !known {
		// A newly coined canonical name must be searchable even before the
		// validation pass recognizes it.
		if st, err := r.store.GetServiceType(ctx, condensedSlug); err == nil {
			validated = append([]model.MatchedServiceType{{
				Slug:        st.Slug,
				Name:        st.Name,
				MatchSource: model.MatchSourceText,
				Score:       1.0,
			}}, validated...)
		}
	}

	return &Resolution{
		CondensedName: condensed,
		CondensedSlug: condensedSlug,
		Matches:       validated,
	}, nil
}

// CondenseQuery returns just the canonical name for a query, used by
// discovery when no service types matched.
func (r *Resolver) CondenseQuery(ctx context.Context, query string) string {
	condensed, _ := r.resolveWithLLM(ctx, query, nil)
	return condensed
}

func (r *Resolver) matchVector(ctx context.Context, query string) []model.MatchedServiceType {
	if r.embedder == nil {
		r.log.Debug("vector match skipped, no embedding client")
		return nil
	}
	ectx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	vectors, err := r.embedder.Embed(ectx, []string{query})
	if err != nil || len(vectors) == 0 {
		r.log.Warn("query embedding failed, falling back to text-only", zap.Error(err))
		return nil
	}
	matches, err := r.store.SearchServiceTypesVector(ctx, vectors[0], matchLimit, r.vectorThreshold)
	if err != nil {
		r.log.Warn("vector search failed, falling back to text-only", zap.Error(err))
		return nil
	}
	return matches
}

// mergeMatches deduplicates by slug keeping the higher score, sorted by
// score descending.
func mergeMatches(text, vector []model.MatchedServiceType) []model.MatchedServiceType {
	bySlug := map[string]model.MatchedServiceType{}
	for _, m := range append(append([]model.MatchedServiceType{}, text...), vector...) {
		if existing, ok := bySlug[m.Slug]; !ok || m.Score > existing.Score {
			bySlug[m.Slug] = m
		}
	}
	out := make([]model.MatchedServiceType, 0, len(bySlug))
	for _, m := range bySlug {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// resolveWithLLM condenses the query and validates candidates in a single
// call. On any failure it falls back to a title-cased query with all
// candidates kept unfiltered.
func (r *Resolver) resolveWithLLM(ctx context.Context, query string, candidates []model.MatchedServiceType) (string, []model.MatchedServiceType) {
	if r.llm == nil {
		return fallbackName(query), candidates
	}

	bySlug := make(map[string]model.MatchedServiceType, len(candidates))
	var listing strings.Builder
	if len(candidates) > 0 {
		listing.WriteString("\nExisting service types:\n")
		for _, m := range candidates {
			bySlug[m.Slug] = m
			fmt.Fprintf(&listing, "- %s: %s\n", m.Slug, m.Name)
		}
	} else {
		listing.WriteString("\nNo existing service types to match against.")
	}

	lctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	temp := 0.0
	resp, err := r.llm.CreateMessage(lctx, anthropic.MessageRequest{
		Model:       r.model,
		MaxTokens:   llmMaxTokens,
		System:      intentPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf("User query: %q%s", query, listing.String())},
		},
	})
	if err != nil {
		r.log.Warn("intent resolution failed, using raw query", zap.Error(err))
		return fallbackName(query), candidates
	}

	var parsed struct {
		Name          string   `json:"name"`
		RelevantSlugs []string `json:"relevant_slugs"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &parsed); err != nil || strings.TrimSpace(parsed.Name) == "" {
		r.log.Warn("unparseable intent response, using raw query", zap.Error(err))
		return fallbackName(query), candidates
	}

	validated := make([]model.MatchedServiceType, 0, len(parsed.RelevantSlugs))
	for _, slug := range parsed.RelevantSlugs {
		if m, ok := bySlug[slug]; ok {
			validated = append(validated, m)
		}
	}
	r.log.Info("resolved intent",
		zap.String("query", query),
		zap.String("name", parsed.Name),
		zap.Int("kept", len(validated)),
		zap.Int("candidates", len(candidates)),
	)
	return strings.TrimSpace(parsed.Name), validated
}

var titleCaser = cases.Title(language.English)

func fallbackName(query string) string {
	return titleCaser.String(strings.ToLower(strings.TrimSpace(query)))
}

func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
