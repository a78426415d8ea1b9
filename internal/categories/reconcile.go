package categories

import (
	"strings"

	"github.com/antzucaro/matchr"

	"toolharvest/internal/models"
)

// Defaults for categories created downstream.
const (
	DefaultIcon       = "sparkles"
	descriptionPrefix = "AI tools for "
)

// suggestionThreshold is the Jaro-Winkler similarity a new category needs to
// an authoritative name before that name is offered as a hint.
const suggestionThreshold = 0.85

// Result holds the reconciliation artifacts.
type Result struct {
	Mapping       []models.CategoryMappingEntry
	NewCategories []models.CategoryRecord
}

// Reconcile maps every distinct category of records, in first-seen order,
// onto authoritative. The first authoritative entry whose name equals the
// category (ignoring case), whose slug equals the category slug, or whose
// name contains or is contained in the category name wins. Unmatched
// categories are returned as new.
func Reconcile(records []models.Tool, authoritative []models.AuthoritativeCategory) Result {
	result := Result{
		Mapping:       []models.CategoryMappingEntry{},
		NewCategories: []models.CategoryRecord{},
	}

	seenNames := make(map[string]bool)
	newSlugs := make(map[string]bool)

	for _, record := range records {
		name := strings.TrimSpace(record.Category)
		if name == "" || seenNames[name] {
			continue
		}

		seenNames[name] = true
		slug := Slugify(name)

		entry := models.CategoryMappingEntry{SourceName: name, SourceSlug: slug}

		if target, ok := Match(name, slug, authoritative); ok {
			id := target.ID
			entry.TargetCategoryID = &id
		} else {
			entry.IsNew = true

			if !newSlugs[slug] {
				newSlugs[slug] = true
				result.NewCategories = append(result.NewCategories, newCategory(name, slug, authoritative))
			}
		}

		result.Mapping = append(result.Mapping, entry)
	}

	return result
}

// Match returns the first authoritative category matching name or slug.
func Match(name, slug string, authoritative []models.AuthoritativeCategory) (models.AuthoritativeCategory, bool) {
	lowerName := strings.ToLower(strings.TrimSpace(name))

	for _, candidate := range authoritative {
		candidateName := strings.ToLower(strings.TrimSpace(candidate.Name))

		nameEqual := candidateName != "" && candidateName == lowerName
		slugEqual := candidate.Slug != "" && strings.EqualFold(candidate.Slug, slug)
		contains := candidateName != "" && lowerName != "" &&
			(strings.Contains(candidateName, lowerName) || strings.Contains(lowerName, candidateName))

		if nameEqual || slugEqual || contains {
			return candidate, true
		}
	}

	return models.AuthoritativeCategory{}, false
}

func newCategory(name, slug string, authoritative []models.AuthoritativeCategory) models.CategoryRecord {
	return models.CategoryRecord{
		Name:           name,
		Slug:           slug,
		Description:    descriptionPrefix + name,
		Icon:           DefaultIcon,
		SuggestedMatch: suggest(name, authoritative),
	}
}

// suggest returns the most similar authoritative name, if similar enough.
// It is a reviewer hint only and never affects matching.
func suggest(name string, authoritative []models.AuthoritativeCategory) string {
	best, bestScore := "", 0.0

	for _, candidate := range authoritative {
		score := matchr.JaroWinkler(strings.ToLower(name), strings.ToLower(candidate.Name), false)
		if score >= suggestionThreshold && score > bestScore {
			best, bestScore = candidate.Name, score
		}
	}

	return best
}
