package model

import "time"

// InquiryStatus tracks the lifecycle of an outbound price inquiry.
type InquiryStatus string

const (
	InquirySent    InquiryStatus = "sent"
	InquiryReplied InquiryStatus = "replied"
	InquiryBounced InquiryStatus = "bounced"
	InquiryFailed  InquiryStatus = "failed"
)

// Active reports whether the inquiry still blocks creation of a new one for
// the same (provider, service type) pair.
func (s InquiryStatus) Active() bool {
	return s == InquirySent || s == InquiryReplied
}

// Inquiry is one outbound price request and its reply lifecycle. At most one
// active (sent/replied) inquiry exists per (provider, service type) pair.
type Inquiry struct {
	ID                string        `json:"id"`
	ProviderID        string        `json:"provider_id"`
	ProviderName      string        `json:"provider_name"`
	ServiceType       string        `json:"service_type"`
	EmailTo           string        `json:"email_to"`
	Subject           string        `json:"subject"`
	Body              string        `json:"body"`
	MessageID         string        `json:"message_id"`
	Status            InquiryStatus `json:"status"`
	ReplyBody         string        `json:"reply_body,omitempty"`
	ExtractedPrice    *float64      `json:"extracted_price,omitempty"`
	ExtractedCurrency string        `json:"extracted_currency,omitempty"`
	SentAt            time.Time     `json:"sent_at"`
	RepliedAt         *time.Time    `json:"replied_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}
