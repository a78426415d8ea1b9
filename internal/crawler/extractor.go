package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toolharvest/internal/browser"
	"toolharvest/internal/config"
	"toolharvest/internal/logger"
	"toolharvest/internal/models"
	"toolharvest/internal/registry"
)

// ErrDetailUnavailable is returned when a detail page cannot be loaded.
var ErrDetailUnavailable = errors.New("detail page unavailable")

// Extractor visits detail pages and resolves their raw records.
type Extractor struct {
	cfg          *config.Config
	fields       *FieldResolver
	registry     *registry.Registry
	tracker      *VisitTracker
	precedence   registry.Precedence
	dedupEnabled bool
	log          *logger.Logger
}

// NewExtractor creates an extractor. tracker may be nil.
func NewExtractor(cfg *config.Config, fields *FieldResolver, reg *registry.Registry, tracker *VisitTracker, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.Discard()
	}

	if tracker == nil {
		tracker = NewVisitTracker()
	}

	return &Extractor{
		cfg:          cfg,
		fields:       fields,
		registry:     reg,
		tracker:      tracker,
		precedence:   registry.Precedence(cfg.Extraction.LogoPrecedence),
		dedupEnabled: cfg.LogoDedupEnabled(),
		log:          log.With("component", "extractor"),
	}
}

// Extract loads item's detail page on page and resolves its record. Missing
// fields stay empty; only navigation or snapshot failures return an error.
func (e *Extractor) Extract(ctx context.Context, page browser.Page, item models.DiscoveredItem) (models.Tool, error) {
	url := e.cfg.DetailURL(item.Identifier)

	if err := e.navigate(ctx, page, url); err != nil {
		return models.Tool{}, err
	}

	if err := page.Wait(ctx, config.Millis(e.cfg.Extraction.NavigateDelayMs)); err != nil {
		return models.Tool{}, err
	}

	doc, err := browser.Snapshot(ctx, page)
	if err != nil {
		return models.Tool{}, fmt.Errorf("%w: %s: %w", ErrDetailUnavailable, url, err)
	}

	tool := e.fields.Resolve(doc)
	tool.Identifier = item.Identifier
	tool.LogoURL = e.registry.ResolveLogo(item.Identifier, item.CandidateLogoURL, tool.LogoURL, e.dedupEnabled, e.precedence)

	e.log.Debug("extracted", "identifier", item.Identifier, "name", tool.Name, "logo", tool.LogoURL != "")

	return tool, nil
}

// navigate opens url, retrying per the retry policy and recording every attempt.
func (e *Extractor) navigate(ctx context.Context, page browser.Page, url string) error {
	policy := &e.cfg.Retry
	opts := browser.NavigateOptions{
		WaitUntil: e.cfg.Browser.WaitUntil,
		Timeout:   policy.GetTimeout(),
	}

	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := page.Wait(ctx, policy.GetRetryDelay(attempt)); err != nil {
				return err
			}
		}

		startTime := time.Now()
		err := page.Navigate(ctx, url, opts)
		e.tracker.RecordAttempt(url, err, time.Since(startTime))

		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		e.log.Debug("navigation failed", "url", url, "attempt", attempt, "error", err)

		if browser.Retried(err) {
			break
		}
	}

	return fmt.Errorf("%w: %s: %w", ErrDetailUnavailable, url, lastErr)
}
