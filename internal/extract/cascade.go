// Package extract finds service prices on provider websites through a
// three-tier cascade: structured page scan, LLM page extraction, and
// web-search extraction behind a circuit breaker.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/internal/resilience"
	"github.com/rateright/rateright/pkg/anthropic"
	"github.com/rateright/rateright/pkg/linkup"
)

const (
	defaultTopLinks     = 3
	defaultTopSublinks  = 2
	defaultMinOverlap   = 2
	defaultMaxLLMText   = 8000
	llmExtractMaxTokens = 100
	llmExtractTimeout   = 20 * time.Second
	batchConcurrency    = 5
	defaultWebTimeout   = 15 * time.Second
	defaultWebCooldown  = 2 * time.Minute
)

const priceExtractPrompt = `You are a price extraction assistant. Given text scraped from a local service provider's website, extract the price for the specified service.

Rules:
- Return ONLY a JSON object: {"price": <number>, "currency_symbol": "<symbol>"}
- The currency_symbol must be one of: £, €, $
- Match SEMANTICALLY, not just literally. For example:
  "chain replacement" matches "chain fitting", "new chain", "chain install".
  "oil change" matches "oil & filter change", "engine oil service".
  "screen repair" matches "screen replacement", "display fix".
- If multiple prices match, return the most specific one for the query.
- If you truly cannot find any price related to the requested service, return: {"price": null}
- Do NOT guess or estimate — only extract prices explicitly stated on the page.`

// Hit is one successfully extracted price.
type Hit struct {
	PageURL    string
	Symbol     string
	Price      float64
	SourceType model.SourceType
}

// Currency maps the hit's currency symbol to its ISO code.
func (h *Hit) Currency() string {
	return model.CurrencyFromSymbol(h.Symbol)
}

// ObservationWriter is the slice of the store the cascade writes to.
type ObservationWriter interface {
	InsertObservation(ctx context.Context, o *model.Observation) error
}

// Opts configures the cascade.
type Opts struct {
	Model             string // LLM model for tier 2 and tier 3 extraction
	TopLinks          int
	TopSublinks       int
	MinOverlapForLLM  int
	MinOverlapForWeb  int
	MaxLLMTextChars   int
	RequestsPerSecond float64
	WebTimeout        time.Duration // tier-3 call timeout that trips the breaker
	WebCooldown       time.Duration
	ForceWebSearch    bool // skip tiers 1 and 2 entirely
	HTTPClient        *http.Client
}

// Cascade runs the extraction tiers for providers and records observations.
type Cascade struct {
	crawler        *crawler
	llm            anthropic.Client
	searcher       linkup.Client
	gate           *resilience.Gate
	writer         ObservationWriter
	model          string
	minOverlapLLM  int
	minOverlapWeb  int
	forceWebSearch bool
	log            *zap.Logger
}

// New creates a Cascade. The LLM and search clients may be nil; their tiers
// are then skipped.
func New(writer ObservationWriter, llm anthropic.Client, searcher linkup.Client, opts Opts) *Cascade {
	topLinks := opts.TopLinks
	if topLinks <= 0 {
		topLinks = defaultTopLinks
	}
	topSublinks := opts.TopSublinks
	if topSublinks <= 0 {
		topSublinks = defaultTopSublinks
	}
	minLLM := opts.MinOverlapForLLM
	if minLLM <= 0 {
		minLLM = defaultMinOverlap
	}
	minWeb := opts.MinOverlapForWeb
	if minWeb <= 0 {
		minWeb = defaultMinOverlap
	}
	maxText := opts.MaxLLMTextChars
	if maxText <= 0 {
		maxText = defaultMaxLLMText
	}
	webTimeout := opts.WebTimeout
	if webTimeout <= 0 {
		webTimeout = defaultWebTimeout
	}
	webCooldown := opts.WebCooldown
	if webCooldown <= 0 {
		webCooldown = defaultWebCooldown
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 12 * time.Second}
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Cascade{
		crawler: &crawler{
			client:      httpClient,
			limiter:     limiter,
			topLinks:    topLinks,
			topSublinks: topSublinks,
			maxLLMText:  maxText,
		},
		llm:            llm,
		searcher:       searcher,
		gate:           resilience.NewGate(webTimeout, webCooldown),
		writer:         writer,
		model:          opts.Model,
		minOverlapLLM:  minLLM,
		minOverlapWeb:  minWeb,
		forceWebSearch: opts.ForceWebSearch,
		log:            zap.L().With(zap.String("component", "extract")),
	}
}

// ExtractPrice runs the cascade for one provider website. A nil Hit with a
// nil error means no tier found a price.
func (c *Cascade) ExtractPrice(ctx context.Context, website, query, providerName string) (*Hit, error) {
	if website == "" {
		return nil, nil
	}

	if c.forceWebSearch {
		return c.webSearchPrice(ctx, query, providerName, website), nil
	}

	res := c.crawler.crawl(ctx, website, query)
	if res.Hit != nil {
		c.log.Info("structured scan hit",
			zap.String("url", res.HitURL),
			zap.Float64("price", res.Hit.Price))
		return &Hit{PageURL: res.HitURL, Symbol: res.Hit.Symbol, Price: res.Hit.Price, SourceType: model.SourceScrape}, nil
	}

	if res.Overlap < c.minOverlapLLM {
		c.log.Debug("skipping LLM and web tiers",
			zap.String("website", website),
			zap.Int("overlap", res.Overlap))
		return nil, nil
	}

	if res.Text != "" {
		if p := c.llmExtractPrice(ctx, res.Text, query, ""); p != nil {
			pageURL := res.PageURL
			if pageURL == "" {
				pageURL = website
			}
			c.log.Info("llm extraction hit", zap.String("url", pageURL), zap.Float64("price", p.Price))
			return &Hit{PageURL: pageURL, Symbol: p.Symbol, Price: p.Price, SourceType: model.SourceLLMScrape}, nil
		}
	}

	if res.Overlap >= c.minOverlapWeb {
		if hit := c.webSearchPrice(ctx, query, providerName, website); hit != nil {
			return hit, nil
		}
	}
	return nil, nil
}

// llmExtractPrice asks the LLM for a price in the given page text. Returns
// nil when unavailable, unparseable, or no price was stated.
func (c *Cascade) llmExtractPrice(ctx context.Context, text, query, providerName string) *pagePrice {
	if c.llm == nil {
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "Service: %s\n", query)
	if providerName != "" {
		fmt.Fprintf(&msg, "Provider: %s\n", providerName)
		fmt.Fprintf(&msg, "Only extract a price that is specifically from %s. ", providerName)
		msg.WriteString("Ignore prices from other providers or general market references.\n")
	}
	fmt.Fprintf(&msg, "\nWebpage text:\n%s", text)

	lctx, cancel := context.WithTimeout(ctx, llmExtractTimeout)
	defer cancel()

	temp := 0.0
	resp, err := c.llm.CreateMessage(lctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   llmExtractMaxTokens,
		System:      priceExtractPrompt,
		Temperature: &temp,
		Messages:    []anthropic.Message{{Role: "user", Content: msg.String()}},
	})
	if err != nil {
		c.log.Debug("llm price extraction failed", zap.Error(err))
		return nil
	}

	var parsed struct {
		Price          *float64 `json:"price"`
		CurrencySymbol string   `json:"currency_symbol"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &parsed); err != nil {
		c.log.Debug("unparseable llm price response", zap.Error(err))
		return nil
	}
	if parsed.Price == nil || *parsed.Price <= 0 {
		return nil
	}
	symbol := parsed.CurrencySymbol
	if symbol == "" {
		symbol = "£"
	}
	return &pagePrice{Symbol: symbol, Price: round2(*parsed.Price)}
}

// webSearchPrice is tier 3: a natural-language web search scoped to the
// provider, serialized process-wide through the circuit-breaker gate. The
// answer is accepted only when the cited source belongs to the provider's
// own domain, so a competitor's price can never be attributed here.
func (c *Cascade) webSearchPrice(ctx context.Context, query, providerName, website string) *Hit {
	if c.searcher == nil {
		return nil
	}

	searchQuery := fmt.Sprintf("How much does %s cost at %s?", query, providerName)
	result, err := resilience.Do(ctx, c.gate, func(ctx context.Context) (*linkup.SearchResponse, error) {
		return c.searcher.Search(ctx, searchQuery)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.log.Debug("web search circuit open", zap.String("provider", providerName))
		} else {
			c.log.Warn("web search failed", zap.String("provider", providerName), zap.Error(err))
		}
		return nil
	}

	p := c.llmExtractPrice(ctx, result.Answer, query, providerName)
	if p == nil {
		return nil
	}

	sourceURL := website
	providerSource := false
	for _, src := range result.Sources {
		if src.URL != "" && sourceMatchesProvider(src.URL, website) {
			sourceURL = src.URL
			providerSource = true
			break
		}
	}
	if len(result.Sources) > 0 && !providerSource {
		c.log.Debug("web search sources do not match provider domain",
			zap.String("provider", providerName),
			zap.String("domain", domainOf(website)))
		return nil
	}

	c.log.Info("web search hit",
		zap.String("provider", providerName),
		zap.Float64("price", p.Price),
		zap.String("source", sourceURL))
	return &Hit{PageURL: sourceURL, Symbol: p.Symbol, Price: p.Price, SourceType: model.SourceLinkup}
}

// domainOf returns the registrable host of a URL without a www prefix.
func domainOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
}

func sourceMatchesProvider(sourceURL, providerWebsite string) bool {
	if sourceURL == "" || providerWebsite == "" {
		return false
	}
	d := domainOf(providerWebsite)
	return d != "" && domainOf(sourceURL) == d
}

// Run extracts prices for every provider with a website, concurrently, and
// stores a price observation per hit. Returns the stored observations keyed
// by provider ID. Failures are logged, never returned: the batch always
// completes.
func (c *Cascade) Run(ctx context.Context, providers []model.Provider, query, serviceTypeSlug string) map[string]*model.Observation {
	var scrapable []model.Provider
	for _, p := range providers {
		if p.Website != "" {
			scrapable = append(scrapable, p)
		}
	}
	if len(scrapable) == 0 {
		return nil
	}
	c.log.Info("extracting prices",
		zap.Int("providers", len(scrapable)),
		zap.String("query", query))

	var mu sync.Mutex
	observations := make(map[string]*model.Observation)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for _, p := range scrapable {
		g.Go(func() error {
			hit, err := c.ExtractPrice(gctx, p.Website, query, p.Name)
			if err != nil || hit == nil {
				return nil
			}
			obs := &model.Observation{
				ProviderID:  p.ID,
				ServiceType: serviceTypeSlug,
				Category:    serviceTypeSlug,
				Price:       hit.Price,
				Currency:    hit.Currency(),
				SourceType:  hit.SourceType,
				SourceURL:   hit.PageURL,
				Latitude:    p.Latitude,
				Longitude:   p.Longitude,
				ObservedAt:  time.Now().UTC(),
			}
			if err := c.writer.InsertObservation(gctx, obs); err != nil {
				c.log.Warn("failed to store observation",
					zap.String("provider", p.Name), zap.Error(err))
				return nil
			}
			mu.Lock()
			observations[p.ID] = obs
			mu.Unlock()
			c.log.Info("stored price observation",
				zap.String("source", string(hit.SourceType)),
				zap.String("provider", p.Name),
				zap.Float64("price", hit.Price),
				zap.String("url", hit.PageURL))
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	c.log.Info("extraction complete",
		zap.Int("hits", len(observations)),
		zap.Int("providers", len(scrapable)))
	return observations
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
