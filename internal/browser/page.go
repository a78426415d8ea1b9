// Package browser defines the page inspection capability the crawler drives,
// with a headless Chrome implementation and a static goquery implementation
// for plain HTTP fetching and offline replay.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Browser errors.
var (
	ErrNoDocument   = errors.New("no document loaded")
	ErrUnknownQuery = errors.New("unknown query")
)

// Wait conditions accepted by NavigateOptions.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
)

// Names of the built-in queries.
const (
	QueryDocumentHTML = "document_html"
	QueryScrollHeight = "scroll_height"
	QueryImageStats   = "image_stats"
	QueryHeightAbove  = "height_above"
)

// NavigateOptions controls a navigation.
type NavigateOptions struct {
	WaitUntil string
	Timeout   time.Duration
}

// Query is a named read-only question about the current document. Script is
// a JavaScript function applied to Args; implementations that cannot run
// scripts answer by Name.
type Query struct {
	Name   string
	Script string
	Args   []any
}

// ImageCount is the result of an ImageStats query.
type ImageCount struct {
	Matching int `json:"matching"`
	Loaded   int `json:"loaded"`
}

// Page is one browser tab (or its static stand-in).
type Page interface {
	Navigate(ctx context.Context, url string, opts NavigateOptions) error
	Evaluate(ctx context.Context, q Query, out any) error
	ScrollTo(ctx context.Context, y int) error
	Wait(ctx context.Context, d time.Duration) error
	// WaitForCondition polls a boolean query until it holds or timeout
	// elapses. It reports false on timeout and never blocks past it.
	WaitForCondition(ctx context.Context, q Query, timeout time.Duration) (bool, error)
}

// Session hands out pages. The returned release func closes the page.
type Session interface {
	OpenPage(ctx context.Context) (Page, func(), error)
	Close() error
}

// DocumentHTML returns the serialized document.
func DocumentHTML() Query {
	return Query{
		Name:   QueryDocumentHTML,
		Script: `() => document.documentElement ? document.documentElement.outerHTML : ""`,
	}
}

// ScrollHeight returns the scrollable height of the document body.
func ScrollHeight() Query {
	return Query{
		Name:   QueryScrollHeight,
		Script: `() => document.body ? document.body.scrollHeight : 0`,
	}
}

// HeightAbove reports whether the body has grown past h.
func HeightAbove(h int) Query {
	return Query{
		Name:   QueryHeightAbove,
		Script: `(h) => !!document.body && document.body.scrollHeight > h`,
		Args:   []any{h},
	}
}

// ImageStats counts images whose source matches pattern, and how many of
// them finished loading. Matching is case-insensitive.
func ImageStats(pattern string) Query {
	return Query{
		Name: QueryImageStats,
		Script: `(pattern) => {
	const re = new RegExp(pattern, "i");
	let matching = 0, loaded = 0;
	for (const img of Array.from(document.images)) {
		const src = img.currentSrc || img.getAttribute("src") || img.getAttribute("data-src") || "";
		if (!re.test(src)) continue;
		matching++;
		if (img.complete && img.naturalWidth > 0) loaded++;
	}
	return {matching, loaded};
}`,
		Args: []any{strings.TrimPrefix(pattern, "(?i)")},
	}
}

// Snapshot captures the current document as a read-only goquery tree.
func Snapshot(ctx context.Context, page Page) (*goquery.Document, error) {
	var html string
	if err := page.Evaluate(ctx, DocumentHTML(), &html); err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	if strings.TrimSpace(html) == "" {
		return nil, ErrNoDocument
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	return doc, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
