package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/rateright/rateright/internal/discovery"
	"github.com/rateright/rateright/internal/extract"
	"github.com/rateright/rateright/internal/inquiry"
	"github.com/rateright/rateright/internal/intent"
	"github.com/rateright/rateright/internal/mail"
	"github.com/rateright/rateright/internal/search"
	"github.com/rateright/rateright/internal/store"
	"github.com/rateright/rateright/pkg/anthropic"
	"github.com/rateright/rateright/pkg/linkup"
	"github.com/rateright/rateright/pkg/openai"
	"github.com/rateright/rateright/pkg/serpapi"
)

// app wires the full pipeline from config. Optional collaborators (LLM,
// embeddings, places search, web search, mail) stay nil when unconfigured
// and their stages degrade.
type app struct {
	store     store.Store
	embedder  openai.Client
	inquiries *inquiry.Service
	search    *search.Service
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func buildApp(ctx context.Context) (*app, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	var llm anthropic.Client
	if cfg.Anthropic.Key != "" {
		llm = anthropic.NewClient(cfg.Anthropic.Key)
	}
	var embedder openai.Client
	if cfg.OpenAI.Key != "" {
		embedder = openai.NewClient(cfg.OpenAI.Key, openai.WithModel(cfg.OpenAI.EmbeddingModel))
	}
	var places serpapi.Client
	if cfg.SerpAPI.Key != "" {
		places = serpapi.NewClient(cfg.SerpAPI.Key)
	}
	var searcher linkup.Client
	if cfg.Linkup.Key != "" {
		searcher = linkup.NewClient(cfg.Linkup.Key, linkup.WithBaseURL(cfg.Linkup.BaseURL))
	}

	resolver := intent.NewResolver(st, llm, embedder, intent.ResolverOpts{
		Model:                cfg.Anthropic.Model,
		TextScoreThreshold:   cfg.Search.TextScoreThreshold,
		VectorScoreThreshold: cfg.Search.VectorScoreThreshold,
	})
	discoverer := discovery.NewDiscoverer(st, places, embedder)
	cascade := extract.New(st, llm, searcher, extract.Opts{
		Model:             cfg.Anthropic.Model,
		TopLinks:          cfg.Scrape.TopLinks,
		TopSublinks:       cfg.Scrape.TopSublinks,
		MinOverlapForLLM:  cfg.Scrape.MinOverlapForLLM,
		MinOverlapForWeb:  cfg.Scrape.MinOverlapForWeb,
		MaxLLMTextChars:   cfg.Scrape.MaxLLMTextChars,
		RequestsPerSecond: float64(cfg.Scrape.RequestsPerSecond),
		WebTimeout:        cfg.Linkup.Timeout,
		WebCooldown:       cfg.Linkup.Cooldown,
		ForceWebSearch:    cfg.Linkup.Only,
	})

	var sender inquiry.Sender
	var mailbox inquiry.Mailbox
	if cfg.Mail.Configured() {
		sender = mail.NewSender(cfg.Mail)
		if cfg.Mail.IMAPHost != "" {
			mailbox = mail.NewMailbox(cfg.Mail)
		}
	}
	inquiries := inquiry.NewService(st, llm, sender, mailbox, inquiry.Opts{
		Model:     cfg.Anthropic.Model,
		FromEmail: cfg.Mail.FromEmail,
	})

	var replies search.ReplyChecker
	if mailbox != nil {
		replies = inquiries
	}
	searchSvc := search.NewService(st, resolver, discoverer, cascade, replies, search.Opts{
		Deadline:            cfg.Search.Deadline,
		DiscoveryTimeout:    cfg.Search.DiscoveryTimeout,
		DefaultRadiusMeters: cfg.Search.DefaultRadiusMeters,
	})

	return &app{
		store:     st,
		embedder:  embedder,
		inquiries: inquiries,
		search:    searchSvc,
	}, nil
}

// Close drains background work before releasing the store.
func (a *app) Close() {
	a.search.Wait()
	a.store.Close() //nolint:errcheck
}
