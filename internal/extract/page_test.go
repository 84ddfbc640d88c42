package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPriceInHTML_MatchingContainer(t *testing.T) {
	page := `<html><body>
		<div>Welcome to our garage</div>
		<div>Tire change — from £45 per wheel</div>
		<div>Oil change — £30</div>
	</body></html>`

	hit := findPriceInHTML(page, []string{"tire", "change"})
	require.NotNil(t, hit)
	assert.Equal(t, "£", hit.Symbol)
	assert.InDelta(t, 45.0, hit.Price, 0.001)
}

func TestFindPriceInHTML_PrefersSmallestContainer(t *testing.T) {
	page := `<html><body>
		<div>
			Our full menu: tire change, brake check and more. Tire change deals from £99 this month only across all branches.
			<div>Tire change £45</div>
		</div>
	</body></html>`

	hit := findPriceInHTML(page, []string{"tire", "change"})
	require.NotNil(t, hit)
	assert.InDelta(t, 45.0, hit.Price, 0.001)
}

func TestFindPriceInHTML_NoTokenMatch(t *testing.T) {
	page := `<html><body><div>Haircut £20</div></body></html>`
	assert.Nil(t, findPriceInHTML(page, []string{"tire", "change"}))
}

func TestFindPriceInHTML_IgnoresNoiseTags(t *testing.T) {
	page := `<html><body>
		<script>var s = "tire change £1";</script>
		<div>Tire change £45</div>
	</body></html>`

	hit := findPriceInHTML(page, []string{"tire", "change"})
	require.NotNil(t, hit)
	assert.InDelta(t, 45.0, hit.Price, 0.001)
}

func TestFindPriceInHTML_DecimalAndEuro(t *testing.T) {
	page := `<html><body><div>Screen repair €89,99</div></body></html>`
	hit := findPriceInHTML(page, []string{"screen", "repair"})
	require.NotNil(t, hit)
	assert.Equal(t, "€", hit.Symbol)
	assert.InDelta(t, 89.99, hit.Price, 0.001)
}

func TestFastHit_PreChecks(t *testing.T) {
	tokens := []string{"tire", "change"}

	// no currency symbol anywhere
	assert.Nil(t, fastHit("<div>tire change prices on request</div>", tokens))
	// missing a token
	assert.Nil(t, fastHit("<div>oil change £30</div>", tokens))
}

func TestHTMLToText_StripsAndTruncates(t *testing.T) {
	page := `<html><head><style>.x{}</style></head><body><p>Hello</p> <p>world</p><script>x()</script></body></html>`
	assert.Equal(t, "Hello world", htmlToText(page, 100))
	assert.Equal(t, "Hel", htmlToText(page, 3))
}

func TestSameSite(t *testing.T) {
	assert.True(t, sameSite("https://example.com/prices", "example.com"))
	assert.True(t, sameSite("https://www.example.com/prices", "example.com"))
	assert.True(t, sameSite("https://example.com/x", "www.example.com"))
	assert.True(t, sameSite("https://shop.garage.co.uk/x", "www.garage.co.uk"))
	assert.False(t, sameSite("https://other.com/x", "example.com"))
	assert.False(t, sameSite("/relative", "example.com"))
}

func TestShouldSkip(t *testing.T) {
	assert.True(t, shouldSkip("https://example.com/blog/post"))
	assert.True(t, shouldSkip("https://example.com/about-us"))
	assert.True(t, shouldSkip("https://example.com/menu.pdf"))
	assert.False(t, shouldSkip("https://example.com/pricing"))
}

func TestScoreURL(t *testing.T) {
	tokens := []string{"tire", "change"}

	pricing := scoreURL("https://example.com/tire-change-pricing", tokens)
	generic := scoreURL("https://example.com/our-team-history", tokens)
	assert.Greater(t, pricing, generic)

	// price keyword bonus applies even without token overlap
	assert.Greater(t, scoreURL("https://example.com/rates", tokens), 0)
}

func TestExtractLinks_RanksAndFilters(t *testing.T) {
	page := `<html><body>
		<a href="/tire-change-prices">Prices</a>
		<a href="/blog/news-post">Blog</a>
		<a href="https://facebook.com/garage">FB</a>
		<a href="/team">Team</a>
		<a href="/tire-change-prices">Duplicate</a>
	</body></html>`

	links := extractLinks("https://example.com/", page, "example.com", []string{"tire", "change"})
	require.Len(t, links, 2)
	assert.Equal(t, "https://example.com/tire-change-prices", links[0])
	assert.Equal(t, "https://example.com/team", links[1])
}
