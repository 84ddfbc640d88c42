package extract

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

const (
	userAgent      = "Mozilla/5.0 (compatible; price-scraper/1.0)"
	acceptLanguage = "en-GB,en;q=0.9"
	maxBodyBytes   = 2 << 20
)

// crawlResult is the outcome of crawling one website for one query.
type crawlResult struct {
	Hit     *pagePrice // non-nil when the structured scan found a price
	HitURL  string
	Text    string // cleaned text of the most relevant page
	PageURL string // where Text came from
	Overlap int    // query-token overlap of the best page
}

// crawler fetches a site's homepage and its most promising internal links,
// running the structured price scan at each hop.
type crawler struct {
	client      *http.Client
	limiter     *rate.Limiter
	topLinks    int
	topSublinks int
	maxLLMText  int
}

func (c *crawler) fetch(ctx context.Context, u string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// crawl walks the site up to two link levels deep, returning on the first
// structured-scan hit. It tracks whichever page had the highest token
// overlap for the LLM fallback tier.
func (c *crawler) crawl(ctx context.Context, website, query string) crawlResult {
	tokens := TokenizeQuery(query)
	start := strings.TrimRight(website, "/")
	host := ""
	if parsed, err := url.Parse(start); err == nil {
		host = parsed.Host
	}

	res := crawlResult{Overlap: -1}
	track := func(pageURL, rawHTML string) {
		if overlap := tokenOverlap(rawHTML, tokens); overlap > res.Overlap {
			res.Overlap = overlap
			res.Text = htmlToText(rawHTML, c.maxLLMText)
			res.PageURL = pageURL
		}
	}

	homeHTML, err := c.fetch(ctx, start)
	if err != nil {
		return res
	}
	if hit := fastHit(homeHTML, tokens); hit != nil {
		res.Hit, res.HitURL = hit, start
		return res
	}
	track(start, homeHTML)

	lvl1 := extractLinks(start, homeHTML, host, tokens)
	if len(lvl1) > c.topLinks {
		lvl1 = lvl1[:c.topLinks]
	}
	for _, u1 := range lvl1 {
		html1, err := c.fetch(ctx, u1)
		if err != nil {
			continue
		}
		if hit := fastHit(html1, tokens); hit != nil {
			res.Hit, res.HitURL = hit, u1
			return res
		}
		track(u1, html1)

		lvl2 := extractLinks(u1, html1, host, tokens)
		if len(lvl2) > c.topSublinks {
			lvl2 = lvl2[:c.topSublinks]
		}
		for _, u2 := range lvl2 {
			html2, err := c.fetch(ctx, u2)
			if err != nil {
				continue
			}
			if hit := fastHit(html2, tokens); hit != nil {
				res.Hit, res.HitURL = hit, u2
				return res
			}
			track(u2, html2)
		}
	}
	return res
}
