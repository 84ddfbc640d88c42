package intent

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a canonical service-type name to its stable slug.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = nonAlnum.ReplaceAllString(slug, "_")
	return strings.Trim(slug, "_")
}

// CategoryFromSlug derives the broad category from a slug's first segment.
func CategoryFromSlug(slug string) string {
	if i := strings.Index(slug, "_"); i > 0 {
		return slug[:i]
	}
	return slug
}
