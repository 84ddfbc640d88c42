// Package mail sends inquiry emails over SMTP and reads replies over IMAP.
package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rateright/rateright/internal/config"
)

// Sender delivers plain-text mail through the configured SMTP relay.
type Sender struct {
	cfg config.MailConfig
	log *zap.Logger
}

func NewSender(cfg config.MailConfig) *Sender {
	return &Sender{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "mail")),
	}
}

// NewMessageID returns a fresh RFC 5322 Message-ID scoped to the sender's
// mail domain.
func NewMessageID(fromEmail string) string {
	domain := "rateright.local"
	if at := strings.LastIndex(fromEmail, "@"); at >= 0 && at < len(fromEmail)-1 {
		domain = fromEmail[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// Send delivers one plain-text message. The messageID is stamped on the
// outgoing mail so replies can be matched back to it later.
func (s *Sender) Send(to, subject, body, messageID string) error {
	if !s.cfg.Configured() {
		return eris.New("mail: smtp is not configured")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", s.cfg.FromName, s.cfg.FromEmail)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&msg, "Reply-To: %s\r\n", s.cfg.FromEmail)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if s.cfg.SMTPUser != "" && s.cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	if err := smtp.SendMail(addr, auth, s.cfg.FromEmail, []string{to}, []byte(msg.String())); err != nil {
		return eris.Wrapf(err, "mail: failed to send to %s via %s", to, addr)
	}
	s.log.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
