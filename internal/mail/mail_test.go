package mail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rateright/rateright/internal/config"
)

func TestNewMessageID(t *testing.T) {
	id := NewMessageID("quotes@rateright.io")
	assert.True(t, strings.HasPrefix(id, "<"))
	assert.True(t, strings.HasSuffix(id, "@rateright.io>"))

	other := NewMessageID("quotes@rateright.io")
	assert.NotEqual(t, id, other)

	fallback := NewMessageID("not-an-address")
	assert.True(t, strings.HasSuffix(fallback, "@rateright.local>"))
}

func TestSendRequiresConfiguration(t *testing.T) {
	s := NewSender(config.MailConfig{})
	err := s.Send("someone@example.com", "Hi", "Body", "<id@x>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestParseHeaders(t *testing.T) {
	raw := []byte("From: Garage <info@garage.example>\r\n" +
		"Subject: Re: Price inquiry\r\n" +
		"In-Reply-To: <abc@rateright.io>\r\n" +
		"References: <abc@rateright.io> <def@other>\r\n\r\n")

	hdr := parseHeaders(raw)
	assert.Equal(t, "<abc@rateright.io>", hdr["In-Reply-To"])
	assert.Equal(t, "<abc@rateright.io> <def@other>", hdr["References"])
	assert.Equal(t, "Re: Price inquiry", hdr["Subject"])
}

func TestParseHeadersMalformed(t *testing.T) {
	assert.Empty(t, parseHeaders([]byte("not a header block")))
}

func TestPlainTextBody_SinglePart(t *testing.T) {
	raw := []byte("From: a@b\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n" +
		"Our rate is £45 per wheel.\r\n")
	assert.Equal(t, "Our rate is £45 per wheel.", PlainTextBody(raw))
}

func TestPlainTextBody_Multipart(t *testing.T) {
	raw := []byte("From: a@b\r\n" +
		"Content-Type: multipart/alternative; boundary=\"XYZ\"\r\n\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
		"Plain body here.\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
		"<p>HTML body here.</p>\r\n" +
		"--XYZ--\r\n")
	assert.Equal(t, "Plain body here.", PlainTextBody(raw))
}

func TestPlainTextBody_QuotedPrintable(t *testing.T) {
	raw := []byte("From: a@b\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n\r\n" +
		"Price is =C2=A345.\r\n")
	assert.Equal(t, "Price is £45.", PlainTextBody(raw))
}

func TestPlainTextBody_Base64(t *testing.T) {
	raw := []byte("From: a@b\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Transfer-Encoding: base64\r\n\r\n" +
		"SGVsbG8gdGhlcmU=\r\n")
	assert.Equal(t, "Hello there", PlainTextBody(raw))
}

func TestPlainTextBody_Unparseable(t *testing.T) {
	assert.Equal(t, "just some text", PlainTextBody([]byte("just some text")))
}

func TestReferencesKnownID(t *testing.T) {
	known := map[string]struct{}{"<abc@rateright.io>": {}}

	assert.True(t, referencesKnownID("<abc@rateright.io>", "", known))
	assert.True(t, referencesKnownID("", "<zzz@x> <abc@rateright.io>", known))
	assert.True(t, referencesKnownID("prefix <abc@rateright.io> suffix", "", known))
	assert.False(t, referencesKnownID("<other@elsewhere>", "<zzz@x>", known))
	assert.False(t, referencesKnownID("", "", known))
}
