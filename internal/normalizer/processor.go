// Package normalizer cleans raw tool records, merges duplicates and drops
// incomplete records.
package normalizer

import (
	"fmt"

	"toolharvest/internal/config"
	"toolharvest/internal/logger"
	"toolharvest/internal/models"
)

// Stats summarizes one normalization pass.
type Stats struct {
	Input   int            `json:"input"`
	Merged  int            `json:"merged"`
	Dropped map[string]int `json:"dropped"`
	Output  int            `json:"output"`
}

// String returns a one-line summary.
func (s Stats) String() string {
	dropped := 0
	for _, n := range s.Dropped {
		dropped += n
	}

	return fmt.Sprintf("in: %d, merged: %d, dropped: %d, out: %d", s.Input, s.Merged, dropped, s.Output)
}

// Processor runs the full pipeline: transform, deduplicate, validate.
type Processor struct {
	validator   *Validator
	transformer *Transformer
	log         *logger.Logger
}

// NewProcessor creates a processor from the normalize and source settings.
func NewProcessor(cfg *config.Config, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Discard()
	}

	urls := NewURLNormalizer(cfg.Source.BaseURL, cfg.Normalize.TrackingParam, cfg.Source.TrackingToken, cfg.Normalize.AttributionValue)

	return &Processor{
		validator:   NewValidator(),
		transformer: NewTransformer(cfg.Normalize, urls),
		log:         log.With("component", "normalizer"),
	}
}

// Normalize cleans every record, merges duplicates into the first record
// sharing their dedup key and drops records missing a required field. Order
// of first appearance is kept. Normalizing the output again returns it
// unchanged.
func (p *Processor) Normalize(raw []models.Tool) ([]models.Tool, Stats) {
	stats := Stats{Input: len(raw), Dropped: make(map[string]int)}

	cleaned := make([]models.Tool, 0, len(raw))
	for _, tool := range raw {
		cleaned = append(cleaned, p.transformer.Transform(tool))
	}

	unique, merged := Deduplicate(cleaned)
	stats.Merged = merged

	out := make([]models.Tool, 0, len(unique))

	for _, tool := range unique {
		if err := p.validator.Validate(tool); err != nil {
			stats.Dropped[err.Error()]++
			p.log.Debug("dropping incomplete tool", "identifier", tool.Identifier, "name", tool.Name, "reason", err)

			continue
		}

		out = append(out, tool)
	}

	stats.Output = len(out)

	return out, stats
}

// Deduplicate keeps the first record per dedup key. A later duplicate only
// fills the canonical record's empty website, logo and short description.
// It returns the canonical records in order and the number merged away.
func Deduplicate(tools []models.Tool) ([]models.Tool, int) {
	index := make(map[string]int)
	out := make([]models.Tool, 0, len(tools))
	merged := 0

	for _, tool := range tools {
		key := tool.DedupKey
		if key == "" {
			key = DedupKey(tool)
		}

		if key == "" {
			out = append(out, tool)

			continue
		}

		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, tool)

			continue
		}

		canonical := &out[i]
		if canonical.WebsiteURL == "" {
			canonical.WebsiteURL = tool.WebsiteURL
		}

		if canonical.LogoURL == "" {
			canonical.LogoURL = tool.LogoURL
		}

		if canonical.ShortDescription == "" {
			canonical.ShortDescription = tool.ShortDescription
		}

		merged++
	}

	return out, merged
}
