// Package crawler discovers catalog items behind an infinite-scroll listing
// and extracts a detail record for each of them.
package crawler

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"toolharvest/internal/config"
	"toolharvest/internal/models"
)

// Harvester reads (identifier, candidate logo) pairs from a listing snapshot
// and decides which image URLs look like real tool logos.
type Harvester struct {
	linkSelector string
	cardSelector string
	idPattern    *regexp.Regexp
	logoPattern  *regexp.Regexp
	placeholders []string
	base         *url.URL
}

// NewHarvester compiles the source's selectors and patterns.
func NewHarvester(src config.SourceConfig) (*Harvester, error) {
	idPattern, err := regexp.Compile(src.IdentifierPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidIdentifierPattern, err)
	}

	logoPattern, err := regexp.Compile(src.LogoPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidLogoPattern, err)
	}

	base, err := url.Parse(src.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidBaseURL, err)
	}

	placeholders := make([]string, 0, len(src.PlaceholderNames))
	for _, name := range src.PlaceholderNames {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			placeholders = append(placeholders, name)
		}
	}

	return &Harvester{
		linkSelector: src.ItemLinkSelector,
		cardSelector: src.CardSelector,
		idPattern:    idPattern,
		logoPattern:  logoPattern,
		placeholders: placeholders,
		base:         base,
	}, nil
}

// Harvest returns the items visible in doc, in document order, each
// identifier at most once.
func (h *Harvester) Harvest(doc *goquery.Document) []models.DiscoveredItem {
	var items []models.DiscoveredItem

	seen := make(map[string]bool)

	doc.Find(h.linkSelector).Each(func(_ int, link *goquery.Selection) {
		id := h.Identifier(link.AttrOr("href", ""))
		if id == "" || seen[id] {
			return
		}

		seen[id] = true

		card := link
		if h.cardSelector != "" {
			if closest := link.Closest(h.cardSelector); closest.Length() > 0 {
				card = closest
			}
		}

		logo := h.firstLogo(card.Find("img"))
		if logo == "" && card != link {
			logo = h.firstLogo(link.Find("img"))
		}

		items = append(items, models.DiscoveredItem{Identifier: id, CandidateLogoURL: logo})
	})

	return items
}

// Identifier extracts the item identifier from a link target.
func (h *Harvester) Identifier(href string) string {
	m := h.idPattern.FindStringSubmatch(href)
	if len(m) < 2 {
		return ""
	}

	return strings.TrimSpace(m[1])
}

// IsLogoAsset reports whether src has the site's logo asset shape and is not
// a placeholder image.
func (h *Harvester) IsLogoAsset(src string) bool {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "data:") {
		return false
	}

	if !h.logoPattern.MatchString(src) {
		return false
	}

	name := strings.ToLower(src)
	if u, err := url.Parse(src); err == nil {
		name = strings.ToLower(path.Base(u.Path))
	}

	for _, placeholder := range h.placeholders {
		if strings.Contains(name, placeholder) {
			return false
		}
	}

	return true
}

// SiteHost is the catalog site's host name.
func (h *Harvester) SiteHost() string {
	return strings.TrimPrefix(strings.ToLower(h.base.Hostname()), "www.")
}

// Resolve makes ref absolute against the site root.
func (h *Harvester) Resolve(ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}

	return h.base.ResolveReference(u).String()
}

// firstLogo returns the first image in sel whose source is a logo asset.
func (h *Harvester) firstLogo(sel *goquery.Selection) string {
	var logo string

	sel.EachWithBreak(func(_ int, img *goquery.Selection) bool {
		for _, src := range imageSources(img) {
			if h.IsLogoAsset(src) {
				logo = src

				return false
			}
		}

		return true
	})

	return logo
}

// imageSources lists the candidate URLs of an image element: src, the
// lazy-load attributes, then the first srcset entry.
func imageSources(img *goquery.Selection) []string {
	var sources []string

	for _, attr := range []string{"src", "data-src", "data-original", "data-lazy-src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
			sources = append(sources, v)
		}
	}

	for _, attr := range []string{"srcset", "data-srcset"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
			first := strings.Fields(strings.Split(v, ",")[0])
			if len(first) > 0 {
				sources = append(sources, first[0])
			}
		}
	}

	return sources
}
