// Package search orchestrates one search pass: intent resolution, geo
// aggregation, external discovery, background price extraction, and result
// statistics.
package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rateright/rateright/internal/intent"
	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/internal/stats"
	"github.com/rateright/rateright/internal/tracker"
)

const (
	defaultDeadline        = 12 * time.Second
	defaultDiscoveryWindow = 8 * time.Second
	defaultRadiusMeters    = 5000
)

// Store is the slice of the data layer the orchestrator reads.
type Store interface {
	FindProvidersWithPrices(ctx context.Context, slugs []string, lat, lng, radiusMeters float64) ([]model.ProviderWithPrices, error)
	FindProvidersByCategory(ctx context.Context, slugs []string, lat, lng, radiusMeters float64) ([]model.ProviderWithPrices, error)
	FindProvidersNear(ctx context.Context, ids []string, lat, lng float64, radiusMeters *float64) ([]model.ProviderWithPrices, error)
	GetProvidersByIDs(ctx context.Context, ids []string) ([]model.Provider, error)
	ServiceTypeNames(ctx context.Context, slugs []string) (map[string]string, error)
	InquiryStatusesByProvider(ctx context.Context, providerIDs []string) (map[string]model.InquiryStatus, error)
}

// Matcher resolves a free-text query into validated service-type matches.
type Matcher interface {
	Resolve(ctx context.Context, query string) (*intent.Resolution, error)
}

// Discoverer finds and registers providers from external sources. It returns
// the ids of providers it stored.
type Discoverer interface {
	Discover(ctx context.Context, query string, slugs []string, lat, lng, radiusMeters float64, condensedName string) []string
}

// Extractor scrapes prices for a batch of providers and stores observations.
type Extractor interface {
	Run(ctx context.Context, providers []model.Provider, query, serviceTypeSlug string) map[string]*model.Observation
}

// ReplyChecker polls the inquiry mailbox for new replies.
type ReplyChecker interface {
	CheckForReplies(ctx context.Context) (int, error)
}

// Opts configures the orchestrator.
type Opts struct {
	Deadline            time.Duration // hard cap on one search pass
	DiscoveryTimeout    time.Duration
	DefaultRadiusMeters float64
}

// Service runs the search pipeline. The discoverer, extractor, and reply
// checker are optional; their stages are skipped when nil.
type Service struct {
	store         Store
	matcher       Matcher
	discoverer    Discoverer
	extractor     Extractor
	replies       ReplyChecker
	tracker       *tracker.Tracker
	deadline      time.Duration
	discoveryTime time.Duration
	defaultRadius float64
	bg            sync.WaitGroup
	log           *zap.Logger
}

func NewService(store Store, matcher Matcher, discoverer Discoverer, extractor Extractor, replies ReplyChecker, opts Opts) *Service {
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}
	discoveryTime := opts.DiscoveryTimeout
	if discoveryTime <= 0 {
		discoveryTime = defaultDiscoveryWindow
	}
	radius := opts.DefaultRadiusMeters
	if radius <= 0 {
		radius = defaultRadiusMeters
	}
	return &Service{
		store:         store,
		matcher:       matcher,
		discoverer:    discoverer,
		extractor:     extractor,
		replies:       replies,
		tracker:       tracker.New(),
		deadline:      deadline,
		discoveryTime: discoveryTime,
		defaultRadius: radius,
		log:           zap.L().With(zap.String("component", "search")),
	}
}

// Search runs one full pass under the hard deadline. On expiry it returns an
// empty degraded response rather than an error; background work already
// started keeps running.
func (s *Service) Search(ctx context.Context, req model.SearchRequest) *model.SearchResponse {
	if req.RadiusMeters <= 0 {
		req.RadiusMeters = s.defaultRadius
	}

	dctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	done := make(chan *model.SearchResponse, 1)
	go func() {
		done <- s.run(dctx, req)
	}()

	select {
	case resp := <-done:
		return resp
	case <-dctx.Done():
		s.log.Warn("search deadline expired, returning degraded response",
			zap.String("query", req.Query),
			zap.Duration("deadline", s.deadline))
		return &model.SearchResponse{
			Query:               req.Query,
			MatchedServiceTypes: []model.MatchedServiceType{},
			Results:             []model.ProviderWithPrices{},
		}
	}
}

func (s *Service) run(ctx context.Context, req model.SearchRequest) *model.SearchResponse {
	if s.replies != nil {
		s.spawn("reply-check", func(bgctx context.Context) {
			count, err := s.replies.CheckForReplies(bgctx)
			if err != nil {
				s.log.Warn("background reply check failed", zap.Error(err))
				return
			}
			if count > 0 {
				s.log.Info("processed email replies during search", zap.Int("count", count))
			}
		})
	}

	resolution, err := s.matcher.Resolve(ctx, req.Query)
	if err != nil {
		s.log.Warn("intent resolution failed", zap.String("query", req.Query), zap.Error(err))
		resolution = &intent.Resolution{
			CondensedName: strings.TrimSpace(req.Query),
			CondensedSlug: intent.Slugify(req.Query),
		}
	}
	slugs := resolution.Slugs()

	providers := s.aggregate(ctx, slugs, req)

	discoveryTriggered := false
	if len(providers) == 0 && s.discoverer != nil {
		discovered := s.discover(ctx, req, slugs, resolution.CondensedName)
		if len(discovered) > 0 {
			discoveryTriggered = true
			radius := req.RadiusMeters
			found, err := s.store.FindProvidersNear(ctx, discovered, req.Latitude, req.Longitude, &radius)
			if err != nil {
				s.log.Warn("lookup of discovered providers failed", zap.Error(err))
			} else {
				providers = found
			}
		}
	}

	scrapingInProgress := false
	if len(providers) > 0 {
		primarySlug := resolution.CondensedSlug
		if len(slugs) > 0 {
			primarySlug = slugs[0]
		}
		s.decorate(ctx, providers)
		scrapingInProgress = s.scheduleExtraction(providers, req.Query, primarySlug)
		stats.FilterPriceOutliers(providers)
	}

	var priceStats *model.PriceStats
	if len(providers) > 0 {
		priceStats = stats.ComputePriceStats(providers)
	}

	return &model.SearchResponse{
		Query:               req.Query,
		CondensedName:       resolution.CondensedName,
		MatchedServiceTypes: resolution.Matches,
		Results:             providers,
		DiscoveryTriggered:  discoveryTriggered,
		PriceStats:          priceStats,
		ScrapingInProgress:  scrapingInProgress,
	}
}

// aggregate joins the priced and category-only geo queries. Providers with
// observations win on id; category-only providers are appended after them.
func (s *Service) aggregate(ctx context.Context, slugs []string, req model.SearchRequest) []model.ProviderWithPrices {
	if len(slugs) == 0 {
		return nil
	}

	var priced, unpriced []model.ProviderWithPrices
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		priced, err = s.store.FindProvidersWithPrices(gctx, slugs, req.Latitude, req.Longitude, req.RadiusMeters)
		return err
	})
	g.Go(func() error {
		var err error
		unpriced, err = s.store.FindProvidersByCategory(gctx, slugs, req.Latitude, req.Longitude, req.RadiusMeters)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("provider aggregation failed", zap.Error(err))
		return nil
	}

	seen := make(map[string]struct{}, len(priced))
	for _, p := range priced {
		seen[p.ID] = struct{}{}
	}
	merged := priced
	for _, p := range unpriced {
		if _, dup := seen[p.ID]; !dup {
			merged = append(merged, p)
		}
	}
	return merged
}

// discover runs external discovery under its own sub-timeout so a slow
// places API cannot eat the whole search deadline.
func (s *Service) discover(ctx context.Context, req model.SearchRequest, slugs []string, condensedName string) []string {
	dctx, cancel := context.WithTimeout(ctx, s.discoveryTime)
	defer cancel()
	return s.discoverer.Discover(dctx, req.Query, slugs, req.Latitude, req.Longitude, req.RadiusMeters, condensedName)
}

// decorate fills in category labels and inquiry statuses, concurrently. Both
// lookups are cosmetic: failures leave the fallback values in place.
func (s *Service) decorate(ctx context.Context, providers []model.ProviderWithPrices) {
	ids := make([]string, len(providers))
	categorySet := make(map[string]struct{})
	for i := range providers {
		ids[i] = providers[i].ID
		if providers[i].Category != "" {
			categorySet[providers[i].Category] = struct{}{}
		}
	}
	categories := make([]string, 0, len(categorySet))
	for c := range categorySet {
		categories = append(categories, c)
	}

	var labels map[string]string
	var statuses map[string]model.InquiryStatus
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		labels, err = s.store.ServiceTypeNames(gctx, categories)
		if err != nil {
			s.log.Warn("category label lookup failed", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		var err error
		statuses, err = s.store.InquiryStatusesByProvider(gctx, ids)
		if err != nil {
			s.log.Warn("inquiry status lookup failed", zap.Error(err))
		}
		return nil
	})
	g.Wait() //nolint:errcheck

	titler := cases.Title(language.English)
	for i := range providers {
		p := &providers[i]
		if label, ok := labels[p.Category]; ok {
			p.CategoryLabel = label
		} else {
			p.CategoryLabel = titler.String(strings.ReplaceAll(p.Category, "_", " "))
		}
		if status, ok := statuses[p.ID]; ok {
			p.InquiryStatus = string(status)
		} else {
			p.InquiryStatus = "none"
		}
	}
}

// scheduleExtraction claims providers without observations and kicks off a
// background extraction batch for the new claims. Returns true when
// extraction is running for any of the given providers, whether started now
// or still in flight from an earlier search.
func (s *Service) scheduleExtraction(providers []model.ProviderWithPrices, query, primarySlug string) bool {
	if s.extractor == nil {
		return false
	}

	var needsScrape []string
	for i := range providers {
		if len(providers[i].Observations) == 0 {
			needsScrape = append(needsScrape, providers[i].ID)
		}
	}
	if len(needsScrape) == 0 {
		return false
	}

	claimed := s.tracker.Claim(needsScrape)
	if len(claimed) > 0 {
		s.spawn("price-extraction", func(bgctx context.Context) {
			defer s.tracker.Release(claimed)
			batch, err := s.store.GetProvidersByIDs(bgctx, claimed)
			if err != nil {
				s.log.Warn("background extraction batch lookup failed", zap.Error(err))
				return
			}
			s.extractor.Run(bgctx, batch, query, primarySlug)
		})
	}
	return len(claimed) > 0 || s.tracker.InFlight(needsScrape)
}

// spawn runs fn on a fresh background context, detached from the request
// deadline. Panics are captured and logged so a background failure can never
// take the process down silently.
func (s *Service) spawn(name string, fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("background task panicked",
					zap.String("task", name), zap.Any("panic", r))
			}
		}()
		fn(context.Background())
	}()
}

// Wait blocks until all background tasks have finished. Used on shutdown and
// in tests.
func (s *Service) Wait() {
	s.bg.Wait()
}
