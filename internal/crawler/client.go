package crawler

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"toolharvest/internal/browser"
	"toolharvest/internal/config"
	"toolharvest/internal/logger"
	"toolharvest/internal/models"
	"toolharvest/internal/registry"
)

// ErrNoPages is returned when no extraction page could be opened.
var ErrNoPages = errors.New("no pages available")

// HarvestResult is the output of a full crawl.
type HarvestResult struct {
	Discovery *DiscoveryResult
	Tools     []models.Tool
	Failed    []string
}

// Client runs discovery and detail extraction against one browser session.
type Client struct {
	cfg       *config.Config
	session   browser.Session
	harvester *Harvester
	registry  *registry.Registry
	tracker   *VisitTracker
	extractor *Extractor
	log       *logger.Logger
}

// NewClient creates a crawler client. reg is shared by discovery and every
// extraction worker.
func NewClient(cfg *config.Config, session browser.Session, reg *registry.Registry, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Discard()
	}

	harvester, err := NewHarvester(cfg.Source)
	if err != nil {
		return nil, err
	}

	tracker := NewVisitTracker()
	fields := NewFieldResolver(harvester, cfg.Extraction)

	return &Client{
		cfg:       cfg,
		session:   session,
		harvester: harvester,
		registry:  reg,
		tracker:   tracker,
		extractor: NewExtractor(cfg, fields, reg, tracker, log),
		log:       log,
	}, nil
}

// Registry returns the shared logo registry.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Tracker returns the visit tracker.
func (c *Client) Tracker() *VisitTracker {
	return c.tracker
}

// Harvest discovers items and extracts their records.
func (c *Client) Harvest(ctx context.Context) (*HarvestResult, error) {
	discovery, err := c.Discover(ctx)
	if err != nil {
		return &HarvestResult{Discovery: discovery}, err
	}

	tools, failed, err := c.ExtractAll(ctx, discovery.Items.Items())

	return &HarvestResult{Discovery: discovery, Tools: tools, Failed: failed}, err
}

// Discover runs the listing crawl on a dedicated page.
func (c *Client) Discover(ctx context.Context) (*DiscoveryResult, error) {
	page, release, err := c.session.OpenPage(ctx)
	if err != nil {
		return &DiscoveryResult{Items: NewDiscoverySet()}, fmt.Errorf("failed to open listing page: %w", err)
	}
	defer release()

	d := NewDiscoverer(c.cfg, page, c.harvester, c.registry, c.log)

	c.log.Info("🔎 Discovering tools", "listing", c.cfg.Source.ListingURL)

	result, err := d.Discover(ctx, c.cfg.Discovery.MaxItems, c.cfg.Discovery.MaxScrollAttempts)
	if result != nil {
		c.log.Info("✅ Discovery finished",
			"items", result.Items.Len(),
			"iterations", result.Iterations,
			"stop_reason", result.StopReason)
	}

	return result, err
}

// ExtractAll extracts records for items with up to extraction.workers pages
// in parallel. Records keep the order of items; failed identifiers are
// logged, skipped and returned separately.
func (c *Client) ExtractAll(ctx context.Context, items []models.DiscoveredItem) ([]models.Tool, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	pages, release, err := c.openPages(ctx, min(c.cfg.Extraction.Workers, max(len(items), 1)))
	if err != nil {
		return nil, nil, err
	}
	defer release()

	results := make([]*models.Tool, len(items))
	failures := make([]bool, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cap(pages))

	c.log.Info("📄 Extracting details", "items", len(items), "workers", cap(pages))

	for i, item := range items {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			page := <-pages
			defer func() { pages <- page }()

			tool, err := c.extractor.Extract(gctx, page, item)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}

				c.log.Warn("skipping tool", "identifier", item.Identifier, "error", err)
				failures[i] = true

				return nil
			}

			results[i] = &tool

			return nil
		})
	}

	waitErr := g.Wait()

	tools := make([]models.Tool, 0, len(items))

	var failed []string

	for i, tool := range results {
		switch {
		case tool != nil:
			tools = append(tools, *tool)
		case failures[i]:
			failed = append(failed, items[i].Identifier)
		}
	}

	if waitErr == nil {
		waitErr = ctx.Err()
	}

	return tools, failed, waitErr
}

// openPages opens up to n pages. At least one must open.
func (c *Client) openPages(ctx context.Context, n int) (chan browser.Page, func(), error) {
	var (
		opened   []browser.Page
		releases []func()
	)

	for i := 0; i < n; i++ {
		page, release, err := c.session.OpenPage(ctx)
		if err != nil {
			c.log.Warn("failed to open extraction page", "index", i, "error", err)

			break
		}

		opened = append(opened, page)
		releases = append(releases, release)
	}

	releaseAll := func() {
		for _, release := range releases {
			release()
		}
	}

	if len(opened) == 0 {
		return nil, releaseAll, ErrNoPages
	}

	pages := make(chan browser.Page, len(opened))
	for _, page := range opened {
		pages <- page
	}

	return pages, releaseAll, nil
}
