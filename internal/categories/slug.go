// Package categories maps observed category names onto an authoritative
// category list.
package categories

import (
	"regexp"
	"strings"
)

var (
	slugJunk      = regexp.MustCompile(`[^a-z0-9_\s-]`)
	slugSeparator = regexp.MustCompile(`[\s_-]+`)
)

// Slugify derives the canonical slug of a category name: lowercase, only
// [a-z0-9] separated by single hyphens, no leading or trailing hyphen.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = slugJunk.ReplaceAllString(slug, "")
	slug = slugSeparator.ReplaceAllString(slug, "-")

	return strings.Trim(slug, "-")
}
