package normalizer

import (
	"strings"

	"toolharvest/internal/config"
	"toolharvest/internal/models"
	"toolharvest/internal/pricing"
	"toolharvest/pkg/utils"
)

// Transformer cleans a single record. It is pure: the result depends only
// on the input record and the limits.
type Transformer struct {
	limits config.NormalizeConfig
	urls   *URLNormalizer
}

// NewTransformer creates a transformer with the given limits.
func NewTransformer(limits config.NormalizeConfig, urls *URLNormalizer) *Transformer {
	return &Transformer{
		limits: limits,
		urls:   urls,
	}
}

// Transform trims and caps text fields, normalizes URLs, coerces the pricing
// model, cleans the list fields and derives the dedup key.
func (t *Transformer) Transform(raw models.Tool) models.Tool {
	tool := models.Tool{
		Identifier:       strings.TrimSpace(raw.Identifier),
		Name:             utils.CleanText(raw.Name, t.limits.MaxName),
		ShortDescription: utils.CleanText(raw.ShortDescription, t.limits.MaxShortDescription),
		FullDescription:  capText(raw.FullDescription, t.limits.MaxFullDescription),
		WebsiteURL:       t.urls.Normalize(raw.WebsiteURL),
		LogoURL:          t.urls.Normalize(raw.LogoURL),
		Category:         utils.CleanText(raw.Category, t.limits.MaxCategory),
		Platforms:        cleanList(raw.Platforms, t.limits.MaxPlatforms, t.limits.MaxPlatformLength),
		FeatureTags:      cleanList(raw.FeatureTags, t.limits.MaxFeatureTags, t.limits.MaxFeatureTagLength),
	}

	tool.PricingModel = pricing.Coerce(raw.PricingModel, tool.ShortDescription, tool.FullDescription)
	tool.DedupKey = DedupKey(tool)

	return tool
}

// DedupKey is the record's website URL, or its lowercased name when it has
// no website.
func DedupKey(tool models.Tool) string {
	if tool.WebsiteURL != "" {
		return tool.WebsiteURL
	}

	return strings.ToLower(strings.TrimSpace(tool.Name))
}

// capText trims and caps text while keeping its line structure.
func capText(s string, maxRunes int) string {
	return strings.TrimSpace(utils.TruncateRunes(strings.TrimSpace(s), maxRunes))
}

// cleanList splits comma-joined entries, trims and caps every element, drops
// empties and case-insensitive duplicates, and keeps at most maxCount.
func cleanList(list []string, maxCount, maxLength int) models.StringList {
	out := models.StringList{}
	seen := make(map[string]bool)

	for _, entry := range list {
		for _, part := range strings.Split(entry, ",") {
			item := utils.CleanText(part, maxLength)
			key := strings.ToLower(item)

			if item == "" || seen[key] {
				continue
			}

			if maxCount > 0 && len(out) >= maxCount {
				return out
			}

			seen[key] = true
			out = append(out, item)
		}
	}

	return out
}
