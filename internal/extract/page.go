package extract

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// priceRE matches a currency symbol followed by an amount, e.g. "£45", "$ 120.50".
var priceRE = regexp.MustCompile(`([£€$])\s*([0-9]{1,6})(?:[.,]([0-9]{1,2}))?`)

var noiseTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true,
	"header": true, "noscript": true, "svg": true,
}

// blockTags are the ancestors a price match may attach to.
var blockTags = map[string]bool{
	"div": true, "li": true, "article": true, "section": true, "main": true, "body": true,
}

var skipSubstrings = []string{
	"blog", "news", "about", "contact", "privacy", "terms",
	"login", "cart", "facebook", "instagram", ".pdf",
}

var pricePageKeywords = map[string]bool{
	"price": true, "pricing": true, "prices": true, "cost": true, "costs": true,
	"rate": true, "rates": true, "fee": true, "fees": true, "tariff": true,
	"tariffs": true, "labor": true, "labour": true, "service": true,
	"services": true, "repair": true, "repairs": true, "quote": true, "menu": true,
}

// maxContainerChars caps how large a matching price container may be;
// anything bigger is too unspecific to attribute the price to the service.
const maxContainerChars = 600

// maxAncestorClimb bounds the upward walk from a price text node.
const maxAncestorClimb = 12

type pagePrice struct {
	Symbol string
	Price  float64
}

func parsePrice(m []string) (string, float64) {
	whole := m[2]
	frac := m[3]
	if frac == "" {
		frac = "0"
	}
	v, _ := strconv.ParseFloat(whole+"."+frac, 64)
	return m[1], v
}

// findPriceInHTML scans the DOM for a price whose nearest small block-level
// container mentions every query token and at least one top phrase. Among
// candidates the one with the smallest container wins: smaller context means
// the price is more specifically about the service.
func findPriceInHTML(rawHTML string, tokens []string) *pagePrice {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	phrases := BuildPhrases(tokens)
	if len(phrases) > 3 {
		phrases = phrases[:3]
	}

	containerMatches := func(textLower string) bool {
		if len(tokens) > 0 && !containsAll(textLower, tokens) {
			return false
		}
		if len(phrases) > 0 {
			any := false
			for _, p := range phrases {
				if phrasePresent(textLower, p) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		}
		return true
	}

	var best *pagePrice
	bestCtxLen := 0

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && noiseTags[n.Data] {
			return
		}
		if n.Type == html.TextNode && strings.ContainsAny(n.Data, "£€$") {
			if m := priceRE.FindStringSubmatch(n.Data); m != nil {
				sym, val := parsePrice(m)
				if val > 0 {
					cur := n.Parent
					for i := 0; i < maxAncestorClimb && cur != nil; i++ {
						if cur.Type == html.ElementNode && blockTags[cur.Data] {
							ctx := strings.ToLower(nodeText(cur))
							// An oversized container is too unspecific, and
							// every further ancestor only grows: stop here.
							if len(ctx) > maxContainerChars {
								break
							}
							if containerMatches(ctx) {
								if best == nil || len(ctx) < bestCtxLen {
									best = &pagePrice{Symbol: sym, Price: round2(val)}
									bestCtxLen = len(ctx)
								}
								break
							}
						}
						cur = cur.Parent
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return best
}

// fastHit runs cheap string pre-checks before the DOM scan: the page must
// contain a currency symbol and every query token.
func fastHit(rawHTML string, tokens []string) *pagePrice {
	if !strings.ContainsAny(rawHTML, "£€$") {
		return nil
	}
	if len(tokens) > 0 && !containsAll(strings.ToLower(rawHTML), tokens) {
		return nil
	}
	return findPriceInHTML(rawHTML, tokens)
}

// nodeText returns the whitespace-normalized text of a node subtree,
// skipping noise tags.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && noiseTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// htmlToText strips markup and noise tags and truncates for LLM context.
func htmlToText(rawHTML string, maxChars int) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	text := nodeText(doc)
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	return text
}

// sameSite reports whether a URL belongs to the crawled host, accepting the
// registrable-domain suffix so www/subdomain variants still count.
func sameSite(u, host string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	netloc := strings.ToLower(parsed.Host)
	if netloc == "" {
		return false
	}
	h := strings.ToLower(host)
	parts := strings.Split(h, ".")
	var suffix string
	if strings.HasSuffix(h, "co.uk") && len(parts) >= 3 {
		suffix = strings.Join(parts[len(parts)-3:], ".")
	} else if len(parts) >= 2 {
		suffix = strings.Join(parts[len(parts)-2:], ".")
	} else {
		suffix = h
	}
	return netloc == h || netloc == suffix || strings.HasSuffix(netloc, "."+suffix)
}

func shouldSkip(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return true
	}
	path := strings.ToLower(parsed.Path)
	for _, s := range skipSubstrings {
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}

var pathWordRE = regexp.MustCompile(`[^a-z0-9]+`)

// scoreURL ranks a same-site link by query-token overlap in its path, with
// a bonus for paths that look like price pages.
func scoreURL(u string, tokens []string) int {
	parsed, err := url.Parse(u)
	if err != nil {
		return 0
	}
	tset := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tset[t] = true
	}
	overlap, extra, bonus := 0, 0, 0
	for _, w := range pathWordRE.Split(strings.ToLower(parsed.Path), -1) {
		if w == "" {
			continue
		}
		if tset[w] {
			overlap++
		} else {
			extra++
		}
		if pricePageKeywords[w] {
			bonus = 15
		}
	}
	return overlap*10 - extra + bonus
}

// extractLinks collects unique same-site links from a page, ranked by
// scoreURL descending.
func extractLinks(pageURL, rawHTML, host string, tokens []string) []string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil {
					continue
				}
				full := base.ResolveReference(ref).String()
				if !sameSite(full, host) || seen[full] || shouldSkip(full) {
					continue
				}
				seen[full] = true
				out = append(out, full)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	sort.SliceStable(out, func(i, j int) bool {
		return scoreURL(out[i], tokens) > scoreURL(out[j], tokens)
	})
	return out
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
