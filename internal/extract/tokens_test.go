package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeQuery(t *testing.T) {
	assert.Equal(t, []string{"tire", "change"}, TokenizeQuery("Tire Change"))
	assert.Equal(t, []string{"iphone", "16", "screen", "repair"}, TokenizeQuery("iPhone 16 screen repair!"))
	// single-character tokens are dropped
	assert.Equal(t, []string{"oil", "change"}, TokenizeQuery("a oil change"))
}

func TestBuildPhrases(t *testing.T) {
	phrases := BuildPhrases([]string{"iphone", "screen", "repair"})
	assert.Equal(t, []string{"iphone screen repair", "iphone screen", "screen repair"}, phrases)

	assert.Empty(t, BuildPhrases([]string{"single"}))
}

func TestPhrasePresent(t *testing.T) {
	assert.True(t, phrasePresent("we offer tire change from £40", "tire change"))
	assert.True(t, phrasePresent("tire-change specials", "tire change"))
	assert.True(t, phrasePresent("tire  change", "tire change"))
	assert.False(t, phrasePresent("tires changed here", "tire change"))
	assert.False(t, phrasePresent("change your tire", "tire change"))
}

func TestTokenOverlap(t *testing.T) {
	tokens := []string{"tire", "change", "london"}
	assert.Equal(t, 2, tokenOverlap("Tire change specialists", tokens))
	assert.Equal(t, 0, tokenOverlap("bakery menu", tokens))
}
