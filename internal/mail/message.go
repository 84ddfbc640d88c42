package mail

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
)

// parseHeaders decodes a raw RFC 5322 header block into a flat map. Missing
// or malformed input yields an empty map rather than an error.
func parseHeaders(raw []byte) map[string]string {
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw)))
	hdr, err := tp.ReadMIMEHeader()
	if err != nil && len(hdr) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(hdr))
	for k := range hdr {
		out[k] = strings.TrimSpace(hdr.Get(k))
	}
	return out
}

// PlainTextBody extracts the text/plain content of a raw email message. For
// multipart mail the first text/plain part wins; otherwise the whole decoded
// body is returned. Unparseable input falls back to the raw bytes so a reply
// is never silently dropped.
func PlainTextBody(raw []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(string(raw))
	}

	contentType := msg.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		if body := plainPart(msg.Body, params["boundary"]); body != "" {
			return body
		}
	}

	body, err := io.ReadAll(decodeTransfer(msg.Body, msg.Header.Get("Content-Transfer-Encoding")))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}

// plainPart walks a multipart body for its first text/plain part, descending
// into nested multiparts.
func plainPart(r io.Reader, boundary string) string {
	if boundary == "" {
		return ""
	}
	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}
		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			continue
		}
		if strings.HasPrefix(mediaType, "multipart/") {
			if body := plainPart(part, params["boundary"]); body != "" {
				return body
			}
			continue
		}
		if mediaType == "text/plain" {
			body, err := io.ReadAll(decodeTransfer(part, part.Header.Get("Content-Transfer-Encoding")))
			if err != nil {
				continue
			}
			return strings.TrimSpace(string(body))
		}
	}
}

func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}
