package inquiry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rateright/rateright/internal/mail"
	"github.com/rateright/rateright/internal/model"
	"github.com/rateright/rateright/pkg/anthropic"
)

type fakeStore struct {
	providers    map[string]model.Provider
	serviceTypes map[string]*model.ServiceType
	active       map[string]*model.Inquiry
	pending      []model.Inquiry

	created      []*model.Inquiry
	replied      []repliedCall
	observations []*model.Observation
}

type repliedCall struct {
	id       string
	body     string
	price    *float64
	currency string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		providers:    map[string]model.Provider{},
		serviceTypes: map[string]*model.ServiceType{},
		active:       map[string]*model.Inquiry{},
	}
}

func (f *fakeStore) GetProvidersByIDs(ctx context.Context, ids []string) ([]model.Provider, error) {
	var out []model.Provider
	for _, id := range ids {
		if p, ok := f.providers[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetServiceType(ctx context.Context, slug string) (*model.ServiceType, error) {
	if st, ok := f.serviceTypes[slug]; ok {
		return st, nil
	}
	return nil, eris.New("not found")
}

func (f *fakeStore) GetActiveInquiry(ctx context.Context, providerID, serviceType string) (*model.Inquiry, error) {
	return f.active[providerID+"/"+serviceType], nil
}

func (f *fakeStore) CreateInquiry(ctx context.Context, inq *model.Inquiry) error {
	if inq.ID == "" {
		inq.ID = "inq-" + inq.ProviderID
	}
	f.created = append(f.created, inq)
	return nil
}

func (f *fakeStore) ListPendingInquiries(ctx context.Context) ([]model.Inquiry, error) {
	return f.pending, nil
}

func (f *fakeStore) MarkInquiryReplied(ctx context.Context, id, replyBody string, price *float64, currency string, repliedAt time.Time) error {
	f.replied = append(f.replied, repliedCall{id: id, body: replyBody, price: price, currency: currency})
	return nil
}

func (f *fakeStore) InsertObservation(ctx context.Context, o *model.Observation) error {
	f.observations = append(f.observations, o)
	return nil
}

type fakeSender struct {
	sent []sentMail
	err  error
}

type sentMail struct {
	to, subject, body, messageID string
}

func (f *fakeSender) Send(to, subject, body, messageID string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body, messageID})
	return nil
}

type fakeMailbox struct {
	replies []mail.Reply
}

func (f *fakeMailbox) FetchReplies(knownIDs map[string]struct{}) ([]mail.Reply, error) {
	return f.replies, nil
}

type fakeLLM struct {
	response string
}

func (f *fakeLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: f.response}}}, nil
}

func TestSendInquiry_Idempotent(t *testing.T) {
	st := newFakeStore()
	st.active["prov-1/tire_change"] = &model.Inquiry{ID: "existing", Status: model.InquirySent}
	sender := &fakeSender{}
	svc := NewService(st, nil, sender, nil, Opts{FromEmail: "quotes@rateright.io"})

	inq, err := svc.SendInquiry(context.Background(), "prov-1", "tire_change")
	require.NoError(t, err)
	assert.Equal(t, "existing", inq.ID)
	assert.Empty(t, sender.sent)
	assert.Empty(t, st.created)
}

func TestSendInquiry_TemplateDraft(t *testing.T) {
	st := newFakeStore()
	st.providers["prov-1"] = model.Provider{
		ID: "prov-1", Name: "Quick Tires", Email: "info@quicktires.example",
	}
	st.serviceTypes["tire_change"] = &model.ServiceType{Slug: "tire_change", Name: "Tire Change"}
	sender := &fakeSender{}
	svc := NewService(st, nil, sender, nil, Opts{FromEmail: "quotes@rateright.io"})

	inq, err := svc.SendInquiry(context.Background(), "prov-1", "tire_change")
	require.NoError(t, err)
	assert.Equal(t, model.InquirySent, inq.Status)
	assert.Equal(t, "info@quicktires.example", inq.EmailTo)
	assert.Equal(t, "Price inquiry: Tire Change", inq.Subject)
	assert.Contains(t, inq.Body, "Quick Tires")
	assert.Contains(t, inq.Body, "Tire Change")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, inq.MessageID, sender.sent[0].messageID)
	require.Len(t, st.created, 1)
}

func TestSendInquiry_ScrapesContactEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>Reach us at hello@garage.example</body></html>`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	st := newFakeStore()
	st.providers["prov-1"] = model.Provider{ID: "prov-1", Name: "Garage", Website: srv.URL}
	sender := &fakeSender{}
	svc := NewService(st, nil, sender, nil, Opts{FromEmail: "quotes@rateright.io", HTTPClient: srv.Client()})

	inq, err := svc.SendInquiry(context.Background(), "prov-1", "oil_change")
	require.NoError(t, err)
	assert.Equal(t, "hello@garage.example", inq.EmailTo)
}

func TestSendInquiry_NoEmailFound(t *testing.T) {
	st := newFakeStore()
	st.providers["prov-1"] = model.Provider{ID: "prov-1", Name: "Garage"}
	svc := NewService(st, nil, &fakeSender{}, nil, Opts{FromEmail: "quotes@rateright.io"})

	_, err := svc.SendInquiry(context.Background(), "prov-1", "oil_change")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no contact email")
}

func TestSendInquiry_SendFailureRecorded(t *testing.T) {
	st := newFakeStore()
	st.providers["prov-1"] = model.Provider{ID: "prov-1", Name: "Garage", Email: "g@garage.example"}
	sender := &fakeSender{err: eris.New("smtp down")}
	svc := NewService(st, nil, sender, nil, Opts{FromEmail: "quotes@rateright.io"})

	_, err := svc.SendInquiry(context.Background(), "prov-1", "oil_change")
	require.Error(t, err)
	require.Len(t, st.created, 1)
	assert.Equal(t, model.InquiryFailed, st.created[0].Status)
}

func TestCheckForReplies_WithPrice(t *testing.T) {
	st := newFakeStore()
	st.providers["prov-1"] = model.Provider{ID: "prov-1", Latitude: 51.5, Longitude: -0.1}
	st.serviceTypes["tire_change"] = &model.ServiceType{Slug: "tire_change", Name: "Tire Change", Category: "tire"}
	st.pending = []model.Inquiry{{
		ID: "inq-1", ProviderID: "prov-1", ProviderName: "Quick Tires",
		ServiceType: "tire_change", EmailTo: "info@quicktires.example",
		MessageID: "<abc@rateright.io>", Status: model.InquirySent,
	}}
	mailbox := &fakeMailbox{replies: []mail.Reply{{
		InReplyTo: "<abc@rateright.io>",
		Body:      "Hi, a tire change is 45 pounds per wheel.",
	}}}
	llm := &fakeLLM{response: `{"price": 45, "currency": "GBP"}`}
	svc := NewService(st, llm, &fakeSender{}, mailbox, Opts{FromEmail: "quotes@rateright.io"})

	n, err := svc.CheckForReplies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, st.replied, 1)
	require.NotNil(t, st.replied[0].price)
	assert.InDelta(t, 45.0, *st.replied[0].price, 0.001)
	assert.Equal(t, "GBP", st.replied[0].currency)

	require.Len(t, st.observations, 1)
	obs := st.observations[0]
	assert.Equal(t, model.SourceQuote, obs.SourceType)
	assert.InDelta(t, 45.0, obs.Price, 0.001)
	assert.Equal(t, "mailto:info@quicktires.example", obs.SourceURL)
	assert.Equal(t, "tire", obs.Category)
	assert.InDelta(t, 51.5, obs.Latitude, 0.001)
	assert.Empty(t, obs.ReplyText)
}

func TestCheckForReplies_NoPriceStillObserved(t *testing.T) {
	st := newFakeStore()
	st.providers["prov-1"] = model.Provider{ID: "prov-1"}
	st.pending = []model.Inquiry{{
		ID: "inq-1", ProviderID: "prov-1", ServiceType: "tire_change",
		EmailTo: "info@quicktires.example", MessageID: "<abc@rateright.io>",
		Status: model.InquirySent,
	}}
	mailbox := &fakeMailbox{replies: []mail.Reply{{
		References: "<zzz@other> <abc@rateright.io>",
		Body:       "Please call us for a quote.",
	}}}
	llm := &fakeLLM{response: `{"price": null, "currency": null}`}
	svc := NewService(st, llm, &fakeSender{}, mailbox, Opts{FromEmail: "quotes@rateright.io"})

	n, err := svc.CheckForReplies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, st.replied, 1)
	assert.Nil(t, st.replied[0].price)

	require.Len(t, st.observations, 1)
	obs := st.observations[0]
	assert.Zero(t, obs.Price)
	assert.Equal(t, model.SourceQuote, obs.SourceType)
	assert.Equal(t, "Please call us for a quote.", obs.ReplyText)
}

func TestCheckForReplies_UnmatchedReplyIgnored(t *testing.T) {
	st := newFakeStore()
	st.pending = []model.Inquiry{{
		ID: "inq-1", ProviderID: "prov-1", ServiceType: "tire_change",
		MessageID: "<abc@rateright.io>", Status: model.InquirySent,
	}}
	mailbox := &fakeMailbox{replies: []mail.Reply{{
		InReplyTo: "<unrelated@elsewhere>",
		Body:      "Newsletter content.",
	}}}
	svc := NewService(st, nil, &fakeSender{}, mailbox, Opts{FromEmail: "quotes@rateright.io"})

	n, err := svc.CheckForReplies(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, st.replied)
	assert.Empty(t, st.observations)
}

func TestCheckForReplies_NoPending(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, nil, &fakeSender{}, &fakeMailbox{}, Opts{})

	n, err := svc.CheckForReplies(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPickEmail(t *testing.T) {
	page := `Contact sales@wixpress.com or hello@garage.example or info@other.example`

	assert.Equal(t, "hello@garage.example", pickEmail(page, "garage.example"))
	assert.Equal(t, "hello@garage.example", pickEmail(page, ""))
	assert.Equal(t, "hello@garage.example", pickEmail(page, "unknown.example"))
	assert.Empty(t, pickEmail("no addresses here", "garage.example"))
}
