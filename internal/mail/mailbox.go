package mail

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rateright/rateright/internal/config"
)

const imapTimeout = 10 * time.Second

// Reply is one unseen inbox message that answers a known inquiry.
type Reply struct {
	InReplyTo  string
	References string
	From       string
	Subject    string
	Body       string
}

// Mailbox reads inquiry replies from the configured IMAP inbox.
type Mailbox struct {
	cfg config.MailConfig
	log *zap.Logger
}

func NewMailbox(cfg config.MailConfig) *Mailbox {
	return &Mailbox{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "mail")),
	}
}

// FetchReplies scans unseen inbox mail for messages whose In-Reply-To or
// References headers name one of the known inquiry Message-IDs. Only the
// headers of unseen mail are downloaded up front; full bodies are fetched
// for matching messages, which are then marked seen. Unrelated mail is left
// untouched.
func (m *Mailbox) FetchReplies(knownIDs map[string]struct{}) ([]Reply, error) {
	if m.cfg.IMAPHost == "" || m.cfg.SMTPUser == "" || len(knownIDs) == 0 {
		return nil, nil
	}

	c, err := client.DialTLS(imapAddr(m.cfg), nil)
	if err != nil {
		return nil, eris.Wrapf(err, "mail: failed to connect to imap host %s", m.cfg.IMAPHost)
	}
	c.Timeout = imapTimeout
	defer c.Logout() //nolint:errcheck

	if err := c.Login(m.cfg.SMTPUser, m.cfg.SMTPPassword); err != nil {
		return nil, eris.Wrap(err, "mail: imap login failed")
	}
	if _, err := c.Select("INBOX", false); err != nil {
		return nil, eris.Wrap(err, "mail: failed to select inbox")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, eris.Wrap(err, "mail: unseen search failed")
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	matched, err := m.matchHeaders(c, seqNums, knownIDs)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}

	replies := make([]Reply, 0, len(matched))
	for _, cand := range matched {
		body, err := m.fetchBody(c, cand.seqNum)
		if err != nil {
			m.log.Warn("failed to fetch reply body",
				zap.Uint32("seq", cand.seqNum), zap.Error(err))
			continue
		}
		cand.reply.Body = body
		replies = append(replies, cand.reply)

		seqset := new(imap.SeqSet)
		seqset.AddNum(cand.seqNum)
		op := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.Store(seqset, op, []interface{}{imap.SeenFlag}, nil); err != nil {
			m.log.Warn("failed to mark reply seen",
				zap.Uint32("seq", cand.seqNum), zap.Error(err))
		}
	}
	return replies, nil
}

type candidate struct {
	seqNum uint32
	reply  Reply
}

// matchHeaders peeks at the threading headers of the given messages and
// keeps the ones referencing a known inquiry.
func (m *Mailbox) matchHeaders(c *client.Client, seqNums []uint32, knownIDs map[string]struct{}) ([]candidate, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{
			Specifier: imap.HeaderSpecifier,
			Fields:    []string{"In-Reply-To", "References", "From", "Subject"},
		},
		Peek: true,
	}

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var matched []candidate
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		raw, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		hdr := parseHeaders(raw)
		inReplyTo := hdr["In-Reply-To"]
		references := hdr["References"]
		if !referencesKnownID(inReplyTo, references, knownIDs) {
			continue
		}
		matched = append(matched, candidate{
			seqNum: msg.SeqNum,
			reply: Reply{
				InReplyTo:  inReplyTo,
				References: references,
				From:       hdr["From"],
				Subject:    hdr["Subject"],
			},
		})
	}
	if err := <-done; err != nil {
		return nil, eris.Wrap(err, "mail: header fetch failed")
	}
	return matched, nil
}

// fetchBody downloads the full message and extracts its plain-text body.
func (m *Mailbox) fetchBody(c *client.Client, seqNum uint32) (string, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNum)

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var raw []byte
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return "", eris.Wrap(err, "mail: failed to read message body")
		}
		raw = b
	}
	if err := <-done; err != nil {
		return "", eris.Wrap(err, "mail: body fetch failed")
	}
	if len(raw) == 0 {
		return "", eris.New("mail: empty message body")
	}
	return PlainTextBody(raw), nil
}

// referencesKnownID reports whether either threading header names one of the
// known Message-IDs. Some mailers rewrite or chain References, so a
// substring match backs up the exact one.
func referencesKnownID(inReplyTo, references string, knownIDs map[string]struct{}) bool {
	if _, ok := knownIDs[strings.TrimSpace(inReplyTo)]; ok {
		return true
	}
	for id := range knownIDs {
		if id == "" {
			continue
		}
		if strings.Contains(inReplyTo, id) || strings.Contains(references, id) {
			return true
		}
	}
	return false
}

func imapAddr(cfg config.MailConfig) string {
	port := cfg.IMAPPort
	if port <= 0 {
		port = 993
	}
	return fmt.Sprintf("%s:%d", cfg.IMAPHost, port)
}
