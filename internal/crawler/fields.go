package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"toolharvest/internal/config"
	"toolharvest/internal/models"
	"toolharvest/internal/pricing"
	"toolharvest/pkg/utils"
)

// Field size caps applied at extraction time.
const (
	maxShortDescription = 500
	maxFullDescription  = 2000
	maxCategory         = 100
)

const headingSelector = "h1, h2, h3, h4, h5, h6"

// section is a named block of the detail page found by its heading text.
type section struct {
	label   string
	heading *regexp.Regexp
}

// FieldResolver turns a detail page snapshot into a raw record.
type FieldResolver struct {
	harvester        *Harvester
	sectionLookahead int
	sections         []section
	pricingHeading   *regexp.Regexp
	visitPattern     *regexp.Regexp
	titleSeparator   *regexp.Regexp
	backgroundURL    *regexp.Regexp
	categoryJunk     *regexp.Regexp
	platformPattern  *regexp.Regexp
}

// NewFieldResolver creates a resolver sharing the harvester's asset rules.
func NewFieldResolver(harvester *Harvester, cfg config.ExtractionConfig) *FieldResolver {
	lookahead := cfg.SectionLookahead
	if lookahead <= 0 {
		lookahead = 6
	}

	return &FieldResolver{
		harvester:        harvester,
		sectionLookahead: lookahead,
		sections: []section{
			{label: "Information", heading: regexp.MustCompile(`(?i)\bwhat is\b|\binformation\b|\boverview\b|\babout\b`)},
			{label: "Core Features", heading: regexp.MustCompile(`(?i)\bcore features\b|\bkey features\b|\bfeatures\b`)},
			{label: "Use Cases", heading: regexp.MustCompile(`(?i)\buse cases?\b`)},
			{label: "FAQ", heading: regexp.MustCompile(`(?i)\bfaqs?\b|frequently asked`)},
		},
		pricingHeading:  regexp.MustCompile(`(?i)\bpricing\b|\bprices?\b|\bplans\b`),
		visitPattern:    regexp.MustCompile(`(?i)visit|official|website|open site|go to`),
		titleSeparator:  regexp.MustCompile(`\s+[|\-–:]\s+`),
		backgroundURL:   regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`),
		categoryJunk:    regexp.MustCompile(`[^\p{L}\p{N}_\s-]+`),
		platformPattern: regexp.MustCompile(`(?i)\b(web|ios|android|chrome extension|windows|macos|linux|api|slack|discord|figma plugin)\b`),
	}
}

// Resolve fills every field it can find. LogoURL holds the detail page's
// logo candidate, before registry resolution.
func (r *FieldResolver) Resolve(doc *goquery.Document) models.Tool {
	tool := models.Tool{
		Name:             r.Name(doc),
		ShortDescription: r.ShortDescription(doc),
		WebsiteURL:       r.Website(doc),
		LogoURL:          r.Logo(doc),
		Category:         r.Category(doc),
		Platforms:        r.Platforms(doc),
		FeatureTags:      r.FeatureTags(doc),
	}

	tool.FullDescription = r.FullDescription(doc, tool.ShortDescription)
	tool.PricingModel = pricing.Classify(r.pricingText(doc))

	return tool
}

// Name resolves the tool name, most specific heading first.
func (r *FieldResolver) Name(doc *goquery.Document) string {
	valid := longerThan(2)

	strategies := textChain(valid,
		"h1.tool-name",
		"h1[class*='title']",
		".tool-name",
		"[class*='tool-title']",
		"main h1",
		"h1",
	)
	strategies = append(strategies,
		r.titleStrategy(attrOf("meta[property='og:title']", "content")),
		r.titleStrategy(textOf("title", nonEmpty)),
	)

	name, _ := FirstValid(doc, valid, strategies...)

	return utils.CleanText(name, 0)
}

// titleStrategy keeps the part of a page title before the site suffix.
func (r *FieldResolver) titleStrategy(s Strategy[string]) Strategy[string] {
	return Strategy[string]{
		Name: s.Name,
		Resolve: func(doc *goquery.Document) string {
			return strings.TrimSpace(r.titleSeparator.Split(s.Resolve(doc), 2)[0])
		},
	}
}

// ShortDescription resolves the summary: metadata first, then content blocks.
func (r *FieldResolver) ShortDescription(doc *goquery.Document) string {
	valid := longerThan(10)

	strategies := []Strategy[string]{
		attrOf("meta[name='description']", "content"),
		attrOf("meta[property='og:description']", "content"),
	}
	strategies = append(strategies, textChain(valid,
		".tool-description",
		"[class*='description'] p",
		"[class*='description']",
		".summary",
		"main p",
		"article p",
		"p",
	)...)

	desc, _ := FirstValid(doc, valid, strategies...)

	return utils.CleanText(desc, maxShortDescription)
}

// FullDescription joins the labeled sections of the page. Without sections
// it falls back to the main content container, then to fallback.
func (r *FieldResolver) FullDescription(doc *goquery.Document, fallback string) string {
	valid := longerThan(10)

	sections := Strategy[string]{
		Name: "sections",
		Resolve: func(doc *goquery.Document) string {
			var parts []string

			for _, s := range r.sections {
				if text := r.sectionText(doc, s.heading); valid(text) {
					parts = append(parts, s.label+":\n"+text)
				}
			}

			return strings.Join(parts, "\n\n")
		},
	}

	strategies := append([]Strategy[string]{sections}, textChain(valid,
		".tool-content",
		"[class*='detail-content']",
		"article",
		"main",
	)...)
	strategies = append(strategies, Strategy[string]{
		Name:    "short_description",
		Resolve: func(*goquery.Document) string { return fallback },
	})

	desc, _ := FirstValid(doc, nonEmpty, strategies...)

	return strings.TrimSpace(utils.TruncateRunes(strings.TrimSpace(desc), maxFullDescription))
}

// sectionText returns the content following the first h2-h4 heading whose
// text matches pattern, reading at most sectionLookahead sibling nodes and
// stopping at the next heading.
func (r *FieldResolver) sectionText(doc *goquery.Document, pattern *regexp.Regexp) string {
	var heading *goquery.Selection

	doc.Find("h2, h3, h4").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if pattern.MatchString(h.Text()) {
			heading = h

			return false
		}

		return true
	})

	if heading == nil {
		return ""
	}

	siblings := heading.NextAll()
	if siblings.Length() == 0 {
		siblings = heading.Parent().NextAll()
	}

	var lines []string

	siblings.EachWithBreak(func(i int, sib *goquery.Selection) bool {
		if i >= r.sectionLookahead || sib.Is(headingSelector) || sib.Find(headingSelector).Length() > 0 {
			return false
		}

		if items := sib.Find("li"); items.Length() > 0 {
			items.Each(func(_ int, li *goquery.Selection) {
				if text := utils.NormalizeWhitespace(li.Text()); text != "" {
					lines = append(lines, "- "+text)
				}
			})

			return true
		}

		if text := utils.NormalizeWhitespace(sib.Text()); text != "" {
			lines = append(lines, text)
		}

		return true
	})

	return strings.Join(lines, "\n")
}

// Website resolves the tool's own site: an explicitly marked outbound link
// first, then the first link leaving the catalog.
func (r *FieldResolver) Website(doc *goquery.Document) string {
	marked := Strategy[string]{
		Name: "marked_outbound",
		Resolve: func(doc *goquery.Document) string {
			return r.firstExternal(doc, func(a *goquery.Selection) bool {
				hint := strings.Join([]string{
					a.Text(),
					a.AttrOr("class", ""),
					a.AttrOr("id", ""),
					a.AttrOr("title", ""),
					a.AttrOr("aria-label", ""),
				}, " ")

				_, dataWebsite := a.Attr("data-website")

				return dataWebsite || r.visitPattern.MatchString(hint)
			})
		},
	}

	anyExternal := Strategy[string]{
		Name: "first_external",
		Resolve: func(doc *goquery.Document) string {
			return r.firstExternal(doc, func(*goquery.Selection) bool { return true })
		},
	}

	website, _ := FirstValid(doc, nonEmpty, marked, anyExternal)

	return website
}

func (r *FieldResolver) firstExternal(doc *goquery.Document, accept func(*goquery.Selection) bool) string {
	var found string

	site := r.harvester.SiteHost()

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := r.harvester.Resolve(a.AttrOr("href", ""))

		u, err := url.Parse(href)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
			return true
		}

		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if host == site || strings.HasSuffix(host, "."+site) {
			return true
		}

		if accept(a) {
			found = href

			return false
		}

		return true
	})

	return found
}

// Logo resolves the detail page's logo candidate: logo containers, then any
// image, then background-image styles.
func (r *FieldResolver) Logo(doc *goquery.Document) string {
	containers := Strategy[string]{
		Name: "logo_containers",
		Resolve: func(doc *goquery.Document) string {
			return r.harvester.firstLogo(doc.Find(".logo img, [class*='logo'] img, img[class*='logo'], img[alt*='logo'], header img"))
		},
	}

	images := Strategy[string]{
		Name: "document_images",
		Resolve: func(doc *goquery.Document) string {
			return r.harvester.firstLogo(doc.Find("img"))
		},
	}

	backgrounds := Strategy[string]{
		Name: "background_images",
		Resolve: func(doc *goquery.Document) string {
			var logo string

			doc.Find("[style*='background']").EachWithBreak(func(_ int, el *goquery.Selection) bool {
				for _, m := range r.backgroundURL.FindAllStringSubmatch(el.AttrOr("style", ""), -1) {
					if r.harvester.IsLogoAsset(m[1]) {
						logo = strings.TrimSpace(m[1])

						return false
					}
				}

				return true
			})

			return logo
		},
	}

	logo, _ := FirstValid(doc, nonEmpty, containers, images, backgrounds)

	return logo
}

// Category resolves the category label: category links, tag-like elements,
// then the breadcrumb trail.
func (r *FieldResolver) Category(doc *goquery.Document) string {
	valid := longerThan(1)

	clean := func(s Strategy[string]) Strategy[string] {
		return Strategy[string]{
			Name:    s.Name,
			Resolve: func(doc *goquery.Document) string { return r.sanitizeCategory(s.Resolve(doc)) },
		}
	}

	sanitizedValid := func(s string) bool { return valid(r.sanitizeCategory(s)) }

	strategies := []Strategy[string]{
		clean(textOf("a[href*='/category/'], a[href*='/categories/']", sanitizedValid)),
		clean(textOf("[class*='category'] a", sanitizedValid)),
		clean(textOf(".category", sanitizedValid)),
		clean(textOf(".tag", sanitizedValid)),
		clean(textOf("[class*='tag'] a", sanitizedValid)),
		clean(Strategy[string]{Name: "breadcrumb", Resolve: r.breadcrumbCategory}),
	}

	category, _ := FirstValid(doc, valid, strategies...)

	return category
}

// breadcrumbCategory takes the last crumb that is neither the home link nor
// the current page.
func (r *FieldResolver) breadcrumbCategory(doc *goquery.Document) string {
	var crumbs []string

	doc.Find(".breadcrumb a, [class*='breadcrumb'] a, nav[aria-label*='readcrumb'] a").Each(func(_ int, a *goquery.Selection) {
		text := utils.NormalizeWhitespace(a.Text())
		if text == "" || strings.EqualFold(text, "home") {
			return
		}

		crumbs = append(crumbs, text)
	})

	name := r.Name(doc)
	for i := len(crumbs) - 1; i >= 0; i-- {
		if !strings.EqualFold(crumbs[i], name) {
			return crumbs[i]
		}
	}

	return ""
}

func (r *FieldResolver) sanitizeCategory(s string) string {
	return utils.CleanText(r.categoryJunk.ReplaceAllString(s, " "), maxCategory)
}

// pricingText gathers visible pricing-related text.
func (r *FieldResolver) pricingText(doc *goquery.Document) string {
	var parts []string

	doc.Find("[class*='pric'], [id*='pric']").Each(func(_ int, sel *goquery.Selection) {
		if text := utils.NormalizeWhitespace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	if text := r.sectionText(doc, r.pricingHeading); text != "" {
		parts = append(parts, text)
	}

	return strings.Join(parts, " ")
}

// Platforms lists supported platforms from platform badges, falling back to
// platform names mentioned in the main content.
func (r *FieldResolver) Platforms(doc *goquery.Document) []string {
	badges := Strategy[[]string]{
		Name: "platform_badges",
		Resolve: func(doc *goquery.Document) []string {
			return distinctTexts(doc.Find("[class*='platform'] li, [class*='platform'] a, [class*='platform'] span"))
		},
	}

	mentions := Strategy[[]string]{
		Name: "platform_mentions",
		Resolve: func(doc *goquery.Document) []string {
			text := doc.Find("main, article, .tool-content").First().Text()

			var found []string

			seen := make(map[string]bool)

			for _, m := range r.platformPattern.FindAllString(text, -1) {
				key := strings.ToLower(m)
				if !seen[key] {
					seen[key] = true
					found = append(found, m)
				}
			}

			return found
		},
	}

	platforms, _ := FirstValid(doc, nonEmptyList, badges, mentions)

	return platforms
}

// FeatureTags lists the tool's tags, falling back to the core features list.
func (r *FieldResolver) FeatureTags(doc *goquery.Document) []string {
	tags := Strategy[[]string]{
		Name: "tags",
		Resolve: func(doc *goquery.Document) []string {
			return distinctTexts(doc.Find(".tags a, .tag-list a, [class*='tags'] a, [class*='feature-tag']"))
		},
	}

	features := Strategy[[]string]{
		Name: "core_features",
		Resolve: func(doc *goquery.Document) []string {
			var items []string

			for _, line := range strings.Split(r.sectionText(doc, r.sections[1].heading), "\n") {
				if item, ok := strings.CutPrefix(line, "- "); ok {
					items = append(items, item)
				}
			}

			return items
		},
	}

	list, _ := FirstValid(doc, nonEmptyList, tags, features)

	return list
}

func distinctTexts(sel *goquery.Selection) []string {
	var out []string

	seen := make(map[string]bool)

	sel.Each(func(_ int, s *goquery.Selection) {
		text := utils.NormalizeWhitespace(s.Text())
		key := strings.ToLower(text)

		if text == "" || seen[key] {
			return
		}

		seen[key] = true
		out = append(out, text)
	})

	return out
}
