// Package inquiry sends price inquiries to providers by email and turns
// their replies into price observations.
package inquiry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rateright/rateright/internal/mail"
	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/pkg/anthropic"
)

const (
	maxReplyBodyChars  = 5000
	maxReplyExcerpt    = 2000
	replyExtractTokens = 100
	replyTimeout       = 15 * time.Second
)

const replyExtractPrompt = `You are extracting pricing information from an email reply. The email is a response to a price inquiry about a specific service.

Extract the price and currency if mentioned. If multiple prices are given, use the lowest/base price.

Reply with ONLY a JSON object: {"price": <number or null>, "currency": "<3-letter code or null>"}
If no price is found, return null for both fields.`

// Store is the slice of the data layer the inquiry service needs.
type Store interface {
	GetProvidersByIDs(ctx context.Context, ids []string) ([]model.Provider, error)
	GetServiceType(ctx context.Context, slug string) (*model.ServiceType, error)
	GetActiveInquiry(ctx context.Context, providerID, serviceType string) (*model.Inquiry, error)
	CreateInquiry(ctx context.Context, inq *model.Inquiry) error
	ListPendingInquiries(ctx context.Context) ([]model.Inquiry, error)
	MarkInquiryReplied(ctx context.Context, id, replyBody string, price *float64, currency string, repliedAt time.Time) error
	InsertObservation(ctx context.Context, o *model.Observation) error
}

// Sender delivers one outbound inquiry mail.
type Sender interface {
	Send(to, subject, body, messageID string) error
}

// Mailbox yields unseen inbox replies matching known inquiry Message-IDs.
type Mailbox interface {
	FetchReplies(knownIDs map[string]struct{}) ([]mail.Reply, error)
}

// Opts configures the inquiry service.
type Opts struct {
	Model      string // LLM model for drafting and reply extraction
	FromEmail  string
	HTTPClient *http.Client // contact page scraping
}

// Service implements the inquiry lifecycle: send, poll, record.
type Service struct {
	store     Store
	llm       anthropic.Client
	sender    Sender
	mailbox   Mailbox
	scraper   *contactScraper
	model     string
	fromEmail string
	log       *zap.Logger
}

func NewService(store Store, llm anthropic.Client, sender Sender, mailbox Mailbox, opts Opts) *Service {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 8 * time.Second}
	}
	log := zap.L().With(zap.String("component", "inquiry"))
	return &Service{
		store:     store,
		llm:       llm,
		sender:    sender,
		mailbox:   mailbox,
		scraper:   &contactScraper{client: httpClient, log: log},
		model:     opts.Model,
		fromEmail: opts.FromEmail,
		log:       log,
	}
}

// SendInquiry drafts and sends a price inquiry to one provider. At most one
// active inquiry exists per (provider, service type) pair: when one is
// already sent or replied, it is returned unchanged. A failed send is
// persisted with status failed and surfaces as an error.
func (s *Service) SendInquiry(ctx context.Context, providerID, serviceTypeSlug string) (*model.Inquiry, error) {
	if s.sender == nil {
		return nil, eris.New("inquiry: outbound mail is not configured")
	}
	existing, err := s.store.GetActiveInquiry(ctx, providerID, serviceTypeSlug)
	if err != nil {
		return nil, eris.Wrap(err, "inquiry: lookup of active inquiry failed")
	}
	if existing != nil {
		s.log.Info("active inquiry already exists",
			zap.String("provider_id", providerID),
			zap.String("service_type", serviceTypeSlug),
			zap.String("status", string(existing.Status)))
		return existing, nil
	}

	providers, err := s.store.GetProvidersByIDs(ctx, []string{providerID})
	if err != nil {
		return nil, eris.Wrap(err, "inquiry: provider lookup failed")
	}
	if len(providers) == 0 {
		return nil, eris.Errorf("inquiry: provider %s not found", providerID)
	}
	provider := providers[0]

	emailTo := provider.Email
	if emailTo == "" {
		emailTo = s.scraper.findEmail(ctx, provider.Website)
	}
	if emailTo == "" {
		return nil, eris.Errorf("inquiry: no contact email found for provider %s", provider.Name)
	}

	serviceName := s.serviceName(ctx, serviceTypeSlug)
	subject, body := draftEmail(ctx, s.llm, s.model, provider.Name, provider.Description, serviceName, s.log)

	now := time.Now().UTC()
	inq := &model.Inquiry{
		ProviderID:   providerID,
		ProviderName: provider.Name,
		ServiceType:  serviceTypeSlug,
		EmailTo:      emailTo,
		Subject:      subject,
		Body:         body,
		MessageID:    mail.NewMessageID(s.fromEmail),
		Status:       model.InquirySent,
		SentAt:       now,
		CreatedAt:    now,
	}

	if err := s.sender.Send(emailTo, subject, body, inq.MessageID); err != nil {
		inq.Status = model.InquiryFailed
		if createErr := s.store.CreateInquiry(ctx, inq); createErr != nil {
			s.log.Warn("failed to record failed inquiry", zap.Error(createErr))
		}
		return nil, eris.Wrapf(err, "inquiry: send to %s failed", emailTo)
	}

	if err := s.store.CreateInquiry(ctx, inq); err != nil {
		return nil, eris.Wrap(err, "inquiry: failed to persist inquiry")
	}
	s.log.Info("inquiry sent",
		zap.String("provider", provider.Name),
		zap.String("service_type", serviceTypeSlug),
		zap.String("to", emailTo))
	return inq, nil
}

// CheckForReplies polls the inbox for answers to pending inquiries and
// records each one. A reply always produces an observation: with the
// extracted price when one is stated, or a zero-price observation carrying
// the reply excerpt when not, so a priceless reply is still distinguishable
// from silence. Returns the number of replies processed.
func (s *Service) CheckForReplies(ctx context.Context) (int, error) {
	if s.mailbox == nil {
		return 0, nil
	}

	pending, err := s.store.ListPendingInquiries(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "inquiry: listing pending inquiries failed")
	}
	if len(pending) == 0 {
		return 0, nil
	}

	byMessageID := make(map[string]*model.Inquiry, len(pending))
	knownIDs := make(map[string]struct{}, len(pending))
	for i := range pending {
		byMessageID[pending[i].MessageID] = &pending[i]
		knownIDs[pending[i].MessageID] = struct{}{}
	}

	replies, err := s.mailbox.FetchReplies(knownIDs)
	if err != nil {
		return 0, eris.Wrap(err, "inquiry: mailbox poll failed")
	}

	processed := 0
	for _, reply := range replies {
		inq := matchInquiry(reply, byMessageID)
		if inq == nil {
			continue
		}
		if err := s.processReply(ctx, inq, reply); err != nil {
			s.log.Warn("failed to process reply",
				zap.String("inquiry_id", inq.ID), zap.Error(err))
			continue
		}
		processed++
	}
	if processed > 0 {
		s.log.Info("processed email replies", zap.Int("count", processed))
	}
	return processed, nil
}

// matchInquiry resolves a reply to its inquiry by threading headers: exact
// In-Reply-To first, then substring over both headers. Mailers chain and
// rewrite References, so the looser pass catches what the exact one misses.
func matchInquiry(reply mail.Reply, byMessageID map[string]*model.Inquiry) *model.Inquiry {
	if inq, ok := byMessageID[strings.TrimSpace(reply.InReplyTo)]; ok {
		return inq
	}
	for id, inq := range byMessageID {
		if id == "" {
			continue
		}
		if strings.Contains(reply.InReplyTo, id) || strings.Contains(reply.References, id) {
			return inq
		}
	}
	return nil
}

func (s *Service) processReply(ctx context.Context, inq *model.Inquiry, reply mail.Reply) error {
	serviceName := s.serviceName(ctx, inq.ServiceType)
	price, currency := s.extractReplyPrice(ctx, reply.Body, serviceName)

	body := reply.Body
	if len(body) > maxReplyBodyChars {
		body = body[:maxReplyBodyChars]
	}

	now := time.Now().UTC()
	if err := s.store.MarkInquiryReplied(ctx, inq.ID, body, price, currency, now); err != nil {
		return eris.Wrap(err, "marking inquiry replied")
	}

	category := inq.ServiceType
	if st, err := s.store.GetServiceType(ctx, inq.ServiceType); err == nil && st != nil {
		category = st.Category
	}

	var lat, lng float64
	if providers, err := s.store.GetProvidersByIDs(ctx, []string{inq.ProviderID}); err == nil && len(providers) > 0 {
		lat, lng = providers[0].Latitude, providers[0].Longitude
	}

	obs := &model.Observation{
		ProviderID:  inq.ProviderID,
		ServiceType: inq.ServiceType,
		Category:    category,
		Currency:    "GBP",
		SourceType:  model.SourceQuote,
		SourceURL:   fmt.Sprintf("mailto:%s", inq.EmailTo),
		Latitude:    lat,
		Longitude:   lng,
		ObservedAt:  now,
	}
	if price != nil {
		obs.Price = *price
		obs.Currency = currency
		s.log.Info("observation from email reply",
			zap.String("provider", inq.ProviderName),
			zap.Float64("price", *price),
			zap.String("currency", currency))
	} else {
		excerpt := reply.Body
		if len(excerpt) > maxReplyExcerpt {
			excerpt = excerpt[:maxReplyExcerpt]
		}
		obs.ReplyText = excerpt
		s.log.Info("reply stored without a price",
			zap.String("provider", inq.ProviderName))
	}
	return eris.Wrap(s.store.InsertObservation(ctx, obs), "storing reply observation")
}

// extractReplyPrice asks the LLM for a stated price in the reply. Nil price
// means none was found; the model is told never to guess.
func (s *Service) extractReplyPrice(ctx context.Context, replyBody, serviceName string) (*float64, string) {
	if s.llm == nil || strings.TrimSpace(replyBody) == "" {
		return nil, ""
	}

	lctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	temp := 0.0
	resp, err := s.llm.CreateMessage(lctx, anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   replyExtractTokens,
		System:      replyExtractPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Service: %s\n\nEmail reply:\n%s", serviceName, replyBody),
		}},
	})
	if err != nil {
		s.log.Warn("reply price extraction failed", zap.Error(err))
		return nil, ""
	}

	var parsed struct {
		Price    *float64 `json:"price"`
		Currency *string  `json:"currency"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &parsed); err != nil {
		s.log.Warn("unparseable reply extraction response", zap.Error(err))
		return nil, ""
	}
	if parsed.Price == nil || *parsed.Price <= 0 {
		return nil, ""
	}
	currency := "GBP"
	if parsed.Currency != nil && model.ValidCurrency(*parsed.Currency) {
		currency = *parsed.Currency
	}
	return parsed.Price, currency
}

func (s *Service) serviceName(ctx context.Context, slug string) string {
	if st, err := s.store.GetServiceType(ctx, slug); err == nil && st != nil {
		return st.Name
	}
	return cases.Title(language.English).String(strings.ReplaceAll(slug, "_", " "))
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
