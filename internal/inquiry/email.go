package inquiry

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var emailRE = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// ignoreDomains are address domains that show up in page markup but never
// belong to the provider (trackers, CDNs, social widgets).
var ignoreDomains = map[string]struct{}{
	"sentry.io":      {},
	"wixpress.com":   {},
	"googleapis.com": {},
	"google.com":     {},
	"facebook.com":   {},
	"twitter.com":    {},
	"instagram.com":  {},
	"schema.org":     {},
	"w3.org":         {},
	"example.com":    {},
	"cloudflare.com": {},
}

var contactPaths = []string{"/contact", "/kontakt", "/about", "/impressum"}

const (
	contactUserAgent = "Mozilla/5.0 (compatible; price-scraper/1.0)"
	maxContactPages  = 3
	maxContactBytes  = 1 << 20
)

type contactScraper struct {
	client *http.Client
	log    *zap.Logger
}

// findEmail looks for a contact address on the provider's website. The
// homepage is fetched first; contact-style paths it mentions are tried next.
// An address on the provider's own domain wins, otherwise the first
// non-ignored address found is returned. Empty string means nothing usable.
func (s *contactScraper) findEmail(ctx context.Context, website string) string {
	if website == "" {
		return ""
	}
	if !strings.HasPrefix(website, "http://") && !strings.HasPrefix(website, "https://") {
		website = "https://" + website
	}
	providerDomain := registrableDomain(website)

	pages := []string{website}
	if home := s.fetch(ctx, website); home != "" {
		lower := strings.ToLower(home)
		for _, suffix := range contactPaths {
			if strings.Contains(lower, suffix) {
				pages = append(pages, strings.TrimRight(website, "/")+suffix)
			}
		}
		if addr := pickEmail(home, providerDomain); addr != "" {
			return addr
		}
	}

	if len(pages) > maxContactPages {
		pages = pages[:maxContactPages]
	}
	for _, pageURL := range pages[1:] {
		body := s.fetch(ctx, pageURL)
		if body == "" {
			continue
		}
		if addr := pickEmail(body, providerDomain); addr != "" {
			return addr
		}
	}
	return ""
}

func (s *contactScraper) fetch(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", contactUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("contact page fetch failed", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContactBytes))
	if err != nil {
		return ""
	}
	return string(body)
}

// pickEmail scans page text for addresses, preferring the provider's own
// domain over anything else.
func pickEmail(page, providerDomain string) string {
	for _, addr := range emailRE.FindAllString(page, -1) {
		at := strings.LastIndex(addr, "@")
		addrDomain := strings.ToLower(addr[at+1:])
		if _, ignored := ignoreDomains[addrDomain]; ignored {
			continue
		}
		if providerDomain != "" && addrDomain != providerDomain {
			// keep scanning in case an own-domain address comes later
			continue
		}
		return addr
	}
	for _, addr := range emailRE.FindAllString(page, -1) {
		at := strings.LastIndex(addr, "@")
		addrDomain := strings.ToLower(addr[at+1:])
		if _, ignored := ignoreDomains[addrDomain]; ignored {
			continue
		}
		return addr
	}
	return ""
}

func registrableDomain(website string) string {
	parsed, err := url.Parse(website)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}
