package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"toolharvest/internal/categories"
	"toolharvest/internal/crawler"
	"toolharvest/internal/models"
	"toolharvest/internal/normalizer"
	"toolharvest/internal/output"
	"toolharvest/internal/report"
)

// pipeline carries stage results between stages of one invocation.
type pipeline struct {
	rt  *runtime
	out io.Writer

	discovery *crawler.DiscoveryResult
	items     []models.DiscoveredItem
	raw       []models.Tool
	failed    []string
	tools     []models.Tool
	stats     *normalizer.Stats
	result    *categories.Result
}

func newPipeline(rt *runtime, out io.Writer) *pipeline {
	return &pipeline{rt: rt, out: out}
}

// runAll executes every stage on one browser session.
func (p *pipeline) runAll(ctx context.Context) error {
	client, session, err := newCrawler(ctx, p.rt)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := p.discover(ctx, client); err != nil {
		return err
	}

	if err := p.extract(ctx, client); err != nil {
		return err
	}

	client.Tracker().LogVisitSummary(p.rt.log)

	if err := p.normalize(); err != nil {
		return err
	}

	if err := p.reconcile(ctx); err != nil {
		return err
	}

	return p.report()
}

func (p *pipeline) discover(ctx context.Context, client *crawler.Client) error {
	result, err := client.Discover(ctx)
	if result != nil {
		p.discovery = result
		p.items = result.Items.Items()

		if writeErr := p.rt.writer.WriteDiscovery(p.items); writeErr != nil {
			return errors.Join(err, writeErr)
		}

		printTable(p.out, "Discovery", [][2]any{
			{"Items", len(p.items)},
			{"Iterations", result.Iterations},
			{"Stop reason", result.StopReason},
			{"Logo conflicts", client.Registry().Conflicts()},
		})
	}

	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	return nil
}

func (p *pipeline) extract(ctx context.Context, client *crawler.Client) error {
	if p.items == nil {
		items, err := output.ReadJSON[[]models.DiscoveredItem](p.rt.writer.Dir(), output.DiscoveryFile)
		if err != nil {
			return err
		}

		p.items = items
		seedRegistry(client.Registry(), items, p.rt.cfg.LogoDedupEnabled())
	}

	start := time.Now()

	tools, failed, err := client.ExtractAll(ctx, p.items)
	p.raw, p.failed = tools, failed

	if writeErr := p.rt.writer.WriteRawTools(tools); writeErr != nil {
		return errors.Join(err, writeErr)
	}

	printTable(p.out, "Extraction", [][2]any{
		{"Requested", len(p.items)},
		{"Extracted", len(tools)},
		{"Failed", len(failed)},
		{"Duration", time.Since(start).Round(time.Millisecond)},
	})

	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	return nil
}

func (p *pipeline) normalize() error {
	if p.raw == nil {
		raw, err := output.ReadJSON[[]models.Tool](p.rt.writer.Dir(), output.RawToolsFile)
		if err != nil {
			return err
		}

		p.raw = raw
	}

	tools, stats := normalizer.NewProcessor(p.rt.cfg, p.rt.log).Normalize(p.raw)
	p.tools, p.stats = tools, &stats

	if err := p.rt.writer.WriteTools(tools); err != nil {
		return err
	}

	rows := [][2]any{
		{"Input", stats.Input},
		{"Merged", stats.Merged},
		{"Output", stats.Output},
	}
	for _, reason := range slices.Sorted(maps.Keys(stats.Dropped)) {
		rows = append(rows, [2]any{"Dropped: " + reason, stats.Dropped[reason]})
	}

	printTable(p.out, "Normalization", rows)

	return nil
}

func (p *pipeline) reconcile(ctx context.Context) error {
	if p.tools == nil {
		tools, err := output.ReadJSON[[]models.Tool](p.rt.writer.Dir(), output.ToolsFile)
		if err != nil {
			return err
		}

		p.tools = tools
	}

	src, err := categories.NewSource(p.rt.cfg.Categories, p.rt.cfg.Retry.GetTimeout())
	if err != nil {
		p.rt.log.Warn("category source unusable", "error", err)
	}

	if closer, ok := src.(io.Closer); ok {
		defer closer.Close()
	}

	authoritative := categories.LoadAuthoritative(ctx, src, p.rt.log)
	result := categories.Reconcile(p.tools, authoritative)
	p.result = &result

	if err := p.rt.writer.WriteCategoryMapping(result.Mapping); err != nil {
		return err
	}

	if err := p.rt.writer.WriteNewCategories(result.NewCategories); err != nil {
		return err
	}

	printTable(p.out, "Categories", [][2]any{
		{"Authoritative", len(authoritative)},
		{"Distinct", len(result.Mapping)},
		{"Matched", len(result.Mapping) - countNew(result.Mapping)},
		{"New", len(result.NewCategories)},
	})

	return nil
}

// report renders report.md from whatever this invocation produced, reading
// earlier artifacts for the stages it did not run.
func (p *pipeline) report() error {
	dir := p.rt.writer.Dir()

	if p.items == nil {
		p.items, _ = output.ReadJSON[[]models.DiscoveredItem](dir, output.DiscoveryFile)
	}

	if p.raw == nil {
		p.raw, _ = output.ReadJSON[[]models.Tool](dir, output.RawToolsFile)
	}

	if p.failed == nil {
		p.failed = missingIdentifiers(p.items, p.raw)
	}

	if p.stats == nil {
		tools, stats := normalizer.NewProcessor(p.rt.cfg, p.rt.log).Normalize(p.raw)
		p.stats = &stats

		if p.tools == nil {
			p.tools = tools
		}
	}

	if p.result == nil {
		mapping, _ := output.ReadJSON[[]models.CategoryMappingEntry](dir, output.CategoryMappingFile)
		created, _ := output.ReadJSON[[]models.CategoryRecord](dir, output.NewCategoriesFile)
		p.result = &categories.Result{Mapping: mapping, NewCategories: created}
	}

	summary := report.Summary{
		RunID:          p.rt.runID,
		GeneratedAt:    time.Now(),
		ListingURL:     p.rt.cfg.Source.ListingURL,
		Discovered:     len(p.items),
		Extracted:      len(p.raw),
		Failed:         p.failed,
		NormalizeInput: p.stats.Input,
		Merged:         p.stats.Merged,
		Dropped:        p.stats.Dropped,
		Tools:          p.tools,
		Mapping:        p.result.Mapping,
		NewCategories:  p.result.NewCategories,
	}

	if p.discovery != nil {
		summary.Iterations = p.discovery.Iterations
		summary.StopReason = p.discovery.StopReason
	}

	if err := p.rt.writer.WriteFile(output.ReportFile, []byte(report.Render(summary)), len(p.tools)); err != nil {
		return err
	}

	p.rt.log.Info("📝 Report written", "path", filepath.Join(dir, output.ReportFile))

	return nil
}

func missingIdentifiers(items []models.DiscoveredItem, raw []models.Tool) []string {
	extracted := make(map[string]bool, len(raw))
	for _, tool := range raw {
		extracted[tool.Identifier] = true
	}

	var missing []string

	for _, item := range items {
		if !extracted[item.Identifier] {
			missing = append(missing, item.Identifier)
		}
	}

	return missing
}

func countNew(mapping []models.CategoryMappingEntry) int {
	n := 0

	for _, entry := range mapping {
		if entry.IsNew {
			n++
		}
	}

	return n
}
