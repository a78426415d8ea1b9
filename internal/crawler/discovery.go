package crawler

import (
	"context"
	"errors"
	"fmt"

	"toolharvest/internal/browser"
	"toolharvest/internal/config"
	"toolharvest/internal/logger"
	"toolharvest/internal/models"
	"toolharvest/internal/registry"
)

// Reasons a discovery run ended.
const (
	StopStall       = "stall"
	StopTarget      = "target"
	StopMaxAttempts = "max_attempts"
	StopCancelled   = "cancelled"
)

// ErrListingUnavailable is returned when the listing page cannot be opened.
var ErrListingUnavailable = errors.New("listing page unavailable")

// DiscoverySet is an insertion-ordered set of discovered items keyed by
// identifier. The first candidate logo stored for an identifier is final.
type DiscoverySet struct {
	order []string
	items map[string]models.DiscoveredItem
}

// NewDiscoverySet creates an empty set.
func NewDiscoverySet() *DiscoverySet {
	return &DiscoverySet{items: make(map[string]models.DiscoveredItem)}
}

// Has reports whether identifier is already known.
func (s *DiscoverySet) Has(identifier string) bool {
	_, ok := s.items[identifier]

	return ok
}

// Add stores item unless its identifier is known. It reports whether the
// item was added.
func (s *DiscoverySet) Add(item models.DiscoveredItem) bool {
	if s.Has(item.Identifier) {
		return false
	}

	s.order = append(s.order, item.Identifier)
	s.items[item.Identifier] = item

	return true
}

// Get returns the stored item.
func (s *DiscoverySet) Get(identifier string) (models.DiscoveredItem, bool) {
	item, ok := s.items[identifier]

	return item, ok
}

// Len returns the number of items.
func (s *DiscoverySet) Len() int {
	return len(s.order)
}

// Items returns the items in discovery order.
func (s *DiscoverySet) Items() []models.DiscoveredItem {
	items := make([]models.DiscoveredItem, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.items[id])
	}

	return items
}

// DiscoveryResult is the outcome of one discovery run.
type DiscoveryResult struct {
	Items      *DiscoverySet
	Iterations int
	StopReason string
}

// Discoverer drives the infinite-scroll listing.
type Discoverer struct {
	page         browser.Page
	harvester    *Harvester
	registry     *registry.Registry
	cfg          config.DiscoveryConfig
	listingURL   string
	navigate     browser.NavigateOptions
	logoPattern  string
	dedupEnabled bool
	log          *logger.Logger
}

// NewDiscoverer wires a discoverer to one page.
func NewDiscoverer(cfg *config.Config, page browser.Page, harvester *Harvester, reg *registry.Registry, log *logger.Logger) *Discoverer {
	if log == nil {
		log = logger.Discard()
	}

	return &Discoverer{
		page:       page,
		harvester:  harvester,
		registry:   reg,
		cfg:        cfg.Discovery,
		listingURL: cfg.Source.ListingURL,
		navigate: browser.NavigateOptions{
			WaitUntil: cfg.Browser.WaitUntil,
			Timeout:   cfg.Retry.GetTimeout(),
		},
		logoPattern:  cfg.Source.LogoPattern,
		dedupEnabled: cfg.LogoDedupEnabled(),
		log:          log.With("component", "discovery"),
	}
}

// Discover collects items until the listing stalls, targetCount items are
// known (0 means unbounded) or maxAttempts scroll iterations have run. A
// cancelled run returns the partial set together with the context error.
func (d *Discoverer) Discover(ctx context.Context, targetCount, maxAttempts int) (*DiscoveryResult, error) {
	result := &DiscoveryResult{Items: NewDiscoverySet()}

	if err := d.page.Navigate(ctx, d.listingURL, d.navigate); err != nil {
		if ctx.Err() != nil {
			return d.cancelled(result, ctx.Err())
		}

		return result, fmt.Errorf("%w: %w", ErrListingUnavailable, err)
	}

	if _, err := d.harvest(ctx, result.Items, targetCount); err != nil {
		return d.cancelled(result, err)
	}

	if reachedTarget(result.Items, targetCount) {
		result.StopReason = StopTarget

		return result, nil
	}

	stalls := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return d.cancelled(result, err)
		}

		result.Iterations = attempt

		grew, err := d.loadMore(ctx)
		if err != nil {
			return d.cancelled(result, err)
		}

		added, err := d.harvest(ctx, result.Items, targetCount)
		if err != nil {
			return d.cancelled(result, err)
		}

		if added == 0 {
			stalls++
		} else {
			stalls = 0
		}

		d.log.Debug("scroll iteration",
			"attempt", attempt,
			"new", added,
			"total", result.Items.Len(),
			"grew", grew,
			"stalls", stalls)

		if stalls >= d.cfg.StallLimit {
			result.StopReason = StopStall

			return result, nil
		}

		if reachedTarget(result.Items, targetCount) {
			result.StopReason = StopTarget

			return result, nil
		}
	}

	result.StopReason = StopMaxAttempts

	return result, nil
}

func (d *Discoverer) cancelled(result *DiscoveryResult, err error) (*DiscoveryResult, error) {
	result.StopReason = StopCancelled
	d.log.Warn("discovery cancelled", "items", result.Items.Len(), "iterations", result.Iterations)

	return result, err
}

// harvest snapshots the page and merges new items. Snapshot failures count
// as an empty harvest; only cancellation is returned as an error.
func (d *Discoverer) harvest(ctx context.Context, set *DiscoverySet, targetCount int) (int, error) {
	doc, err := browser.Snapshot(ctx, d.page)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		d.log.Debug("listing snapshot failed", "error", err)

		return 0, nil
	}

	added := 0

	for _, item := range d.harvester.Harvest(doc) {
		if reachedTarget(set, targetCount) {
			break
		}

		if set.Has(item.Identifier) {
			continue
		}

		item.CandidateLogoURL = d.registry.Claim(item.Identifier, item.CandidateLogoURL, d.dedupEnabled)
		set.Add(item)
		added++
	}

	return added, nil
}

// loadMore runs one oscillating scroll and waits, within bounds, for new
// content and its images. It reports whether the document grew.
func (d *Discoverer) loadMore(ctx context.Context) (bool, error) {
	var height int
	if err := d.page.Evaluate(ctx, browser.ScrollHeight(), &height); err != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}

	pause := config.Millis(d.cfg.ScrollPauseMs)

	steps := []int{height, max(height-d.cfg.ScrollBackPx, 0), height}
	for _, y := range steps {
		if err := d.page.ScrollTo(ctx, y); err != nil && ctx.Err() != nil {
			return false, ctx.Err()
		}

		if err := d.page.Wait(ctx, pause); err != nil {
			return false, err
		}
	}

	grew, err := d.page.WaitForCondition(ctx, browser.HeightAbove(height), config.Millis(d.cfg.GrowthTimeoutMs))
	if err != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err := d.page.Wait(ctx, config.Millis(d.cfg.SettleDelayMs)); err != nil {
		return grew, err
	}

	d.awaitImages(ctx)

	return grew, ctx.Err()
}

// awaitImages polls for logo images to appear and then to finish loading.
// Both polls are best effort.
func (d *Discoverer) awaitImages(ctx context.Context) {
	attempts := d.cfg.ImagePollAttempts
	interval := config.Millis(d.cfg.ImagePollDelayMs)
	query := browser.ImageStats(d.logoPattern)

	stats := func(ctx context.Context) browser.ImageCount {
		var count browser.ImageCount
		_ = d.page.Evaluate(ctx, query, &count)

		return count
	}

	if _, ok := browser.Poll(ctx, attempts, interval, func(ctx context.Context) (browser.ImageCount, bool) {
		count := stats(ctx)

		return count, count.Matching > 0
	}); !ok {
		d.log.Debug("no logo images appeared")

		return
	}

	count, ok := browser.Poll(ctx, attempts, interval, func(ctx context.Context) (browser.ImageCount, bool) {
		count := stats(ctx)

		return count, count.Loaded >= count.Matching
	})
	if !ok {
		d.log.Debug("logo images still loading", "matching", count.Matching, "loaded", count.Loaded)
	}
}

func reachedTarget(set *DiscoverySet, targetCount int) bool {
	return targetCount > 0 && set.Len() >= targetCount
}
