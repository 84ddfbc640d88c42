package inquiry

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rateright/rateright/pkg/anthropic"
)

const draftPrompt = `You are writing a brief, professional email on behalf of a potential customer to a local service provider. The email should:
1. Be polite and concise (3-5 sentences)
2. Mention the specific service the customer needs
3. Ask for their pricing / a quote
4. Ask them to reply to this email with their rates
5. Sign off with ONLY the first name provided, no last name, no phone number, no address, no contact information whatsoever

Do NOT include a subject line, just the email body.
Do NOT use placeholder brackets like [Name] or [Your Contact Information].
Do NOT add any contact details after the name in the sign-off.`

var firstNames = []string{
	"James", "Emma", "Oliver", "Sophie", "Lucas", "Mia", "Ethan", "Chloe",
	"Noah", "Lily", "Leo", "Anna", "Max", "Clara", "Tom", "Alice",
	"Ben", "Sarah", "Daniel", "Laura", "Henry", "Emily", "Jack", "Hannah",
}

const (
	draftMaxTokens = 300
	draftTimeout   = 15 * time.Second
)

// draftEmail produces a subject and body for a price inquiry. The body comes
// from the LLM when one is available, signed with a random first name so
// outgoing mail never carries real contact details; otherwise a fixed
// template is used.
func draftEmail(ctx context.Context, llm anthropic.Client, llmModel, providerName, providerDescription, serviceName string, log *zap.Logger) (subject, body string) {
	senderName := firstNames[rand.Intn(len(firstNames))]
	subject = fmt.Sprintf("Price inquiry: %s", serviceName)

	if llm == nil {
		return subject, templateBody(providerName, serviceName, senderName)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Provider: %s\n", providerName)
	if providerDescription != "" {
		fmt.Fprintf(&sb, "Provider description: %s\n", providerDescription)
	}
	fmt.Fprintf(&sb, "Service needed: %s\n", serviceName)
	fmt.Fprintf(&sb, "Customer first name: %s", senderName)

	lctx, cancel := context.WithTimeout(ctx, draftTimeout)
	defer cancel()

	temp := 0.7
	resp, err := llm.CreateMessage(lctx, anthropic.MessageRequest{
		Model:       llmModel,
		MaxTokens:   draftMaxTokens,
		System:      draftPrompt,
		Temperature: &temp,
		Messages:    []anthropic.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		log.Warn("email drafting failed, using template", zap.Error(err))
		return subject, templateBody(providerName, serviceName, senderName)
	}
	drafted := strings.TrimSpace(resp.Text())
	if drafted == "" {
		return subject, templateBody(providerName, serviceName, senderName)
	}
	return subject, drafted
}

func templateBody(providerName, serviceName, senderName string) string {
	return fmt.Sprintf(
		"Dear %s,\n\n"+
			"I am looking for %s and came across your business. "+
			"Could you please let me know your pricing for this service?\n\n"+
			"I would appreciate it if you could reply to this email with your rates.\n\n"+
			"Thank you for your time.\n\n"+
			"Best regards,\n%s",
		providerName, serviceName, senderName)
}
