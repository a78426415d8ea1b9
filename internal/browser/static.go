package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Loader fetches the HTML behind a URL.
type Loader interface {
	Load(ctx context.Context, url string) (string, error)
}

// StaticPage serves queries from a fetched document without running scripts.
// Scrolling is a no-op and every matching image counts as loaded.
type StaticPage struct {
	loader Loader
	html   string
	doc    *goquery.Document
	scroll int
}

// NewStaticPage creates a page backed by loader.
func NewStaticPage(loader Loader) *StaticPage {
	return &StaticPage{loader: loader}
}

// NewStaticPageFromHTML creates a page already showing html.
func NewStaticPageFromHTML(html string) (*StaticPage, error) {
	p := &StaticPage{}
	if err := p.SetHTML(html); err != nil {
		return nil, err
	}

	return p, nil
}

// SetHTML replaces the current document.
func (p *StaticPage) SetHTML(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	p.html = html
	p.doc = doc

	return nil
}

// Navigate loads url through the page's loader.
func (p *StaticPage) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	if p.loader == nil {
		return fmt.Errorf("%w: no loader for %s", ErrNoDocument, url)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)

		defer cancel()
	}

	html, err := p.loader.Load(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", url, err)
	}

	if err := p.SetHTML(html); err != nil {
		return err
	}

	p.scroll = 0

	return nil
}

// Evaluate answers a built-in query by name.
func (p *StaticPage) Evaluate(ctx context.Context, q Query, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.doc == nil {
		return ErrNoDocument
	}

	result, err := p.answer(q)
	if err != nil {
		return err
	}

	return assign(out, result)
}

// ScrollTo records the position; a static document never grows.
func (p *StaticPage) ScrollTo(ctx context.Context, y int) error {
	p.scroll = y

	return ctx.Err()
}

// Wait sleeps for d unless ctx ends first.
func (p *StaticPage) Wait(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// WaitForCondition checks q once; a static document cannot change while waiting.
func (p *StaticPage) WaitForCondition(ctx context.Context, q Query, _ time.Duration) (bool, error) {
	var ok bool
	if err := p.Evaluate(ctx, q, &ok); err != nil {
		return false, err
	}

	return ok, nil
}

func (p *StaticPage) answer(q Query) (any, error) {
	switch q.Name {
	case QueryDocumentHTML:
		return p.html, nil
	case QueryScrollHeight:
		return 0, nil
	case QueryHeightAbove:
		return false, nil
	case QueryImageStats:
		return p.imageStats(stringArg(q.Args, 0))
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, q.Name)
}

func (p *StaticPage) imageStats(pattern string) (ImageCount, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return ImageCount{}, fmt.Errorf("invalid image pattern: %w", err)
	}

	var count ImageCount

	p.doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}

		if re.MatchString(src) {
			count.Matching++
			count.Loaded++
		}
	})

	return count, nil
}

// StaticSession opens static pages sharing one loader.
type StaticSession struct {
	Loader Loader
}

// OpenPage returns a fresh static page.
func (s *StaticSession) OpenPage(ctx context.Context) (Page, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	return NewStaticPage(s.Loader), func() {}, nil
}

// Close is a no-op.
func (s *StaticSession) Close() error {
	return nil
}

// assign copies v into out through its JSON form, matching how script
// results arrive from a real browser.
func assign(out, v any) error {
	if out == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode query result: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode query result: %w", err)
	}

	return nil
}

func stringArg(args []any, i int) string {
	if i >= len(args) {
		return ""
	}

	s, _ := args[i].(string)

	return s
}
